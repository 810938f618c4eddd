package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/arielsz/jarvisz/pkg/assistant"
	"github.com/arielsz/jarvisz/pkg/bus"
	"github.com/arielsz/jarvisz/pkg/channels"
	"github.com/arielsz/jarvisz/pkg/checkin"
	"github.com/arielsz/jarvisz/pkg/config"
	"github.com/arielsz/jarvisz/pkg/format"
	"github.com/arielsz/jarvisz/pkg/gateway"
	"github.com/arielsz/jarvisz/pkg/interactions"
	"github.com/arielsz/jarvisz/pkg/logger"
	"github.com/arielsz/jarvisz/pkg/providers"
	"github.com/arielsz/jarvisz/pkg/reminders"
	"github.com/arielsz/jarvisz/pkg/session"
	"github.com/arielsz/jarvisz/pkg/sources"
	"github.com/arielsz/jarvisz/pkg/timers"
	"github.com/chzyer/readline"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "jarvisz"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// formatBuildInfo returns build time and go version info
func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Printf("  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Printf("  Go: %s\n", goVer)
	}
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func onboard() {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		fmt.Print("Overwrite? (y/n): ")
		reader := bufio.NewReader(os.Stdin)
		response, readErr := reader.ReadString('\n')
		if readErr != nil {
			fmt.Printf("Error reading input: %v\n", readErr)
			fmt.Println("Aborted.")
			return
		}
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDirPath(), 0755); err != nil {
		fmt.Printf("Error creating data directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s is ready!\n", appName)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your chat provider API key to", configPath)
	fmt.Println("     (providers.chat.api_key, Groq or any OpenAI-compatible endpoint)")
	fmt.Println("  2. (Gateway mode) Add your Telegram bot token to channels.telegram.token")
	fmt.Println("  3. (Optional) Drop your Google OAuth token at", cfg.GoogleTokenPath())
	fmt.Println("  4. Chat locally: jarvisz chat -m \"Hola!\"")
	fmt.Println("  5. Run gateway: jarvisz gateway")
	fmt.Println("  6. Check readiness: jarvisz status")
}

func validateRuntimeConfig(cfg *config.Config, requireTelegram bool) error {
	configPath := getConfigPath()
	if strings.TrimSpace(cfg.Providers.Chat.APIKey) == "" {
		return fmt.Errorf("providers.chat.api_key is required in %s or JARVISZ_PROVIDERS_CHAT_API_KEY", configPath)
	}
	if requireTelegram && strings.TrimSpace(cfg.Channels.Telegram.Token) == "" {
		return fmt.Errorf("channels.telegram.token is required in %s or JARVISZ_CHANNELS_TELEGRAM_TOKEN", configPath)
	}
	return nil
}

// buildRuntime wires the full message pipeline from config. Channels are not
// part of it; the caller decides whether messages come from Telegram/Discord
// or a local prompt.
type runtimeDeps struct {
	bus          *bus.MessageBus
	assistant    *assistant.Assistant
	timers       *timers.Manager
	interactions *interactions.Store
	checkins     *checkin.Store
	location     *time.Location
}

func buildRuntime(cfg *config.Config) (*runtimeDeps, error) {
	loc, err := time.LoadLocation(cfg.Assistant.Timezone)
	if err != nil {
		logger.WarnCF("cli", "Invalid timezone, falling back to UTC",
			map[string]interface{}{"timezone": cfg.Assistant.Timezone, "error": err.Error()})
		loc = time.UTC
	}

	chat := providers.FromConfig(cfg.Providers.Chat)
	var breakdown providers.LLMProvider = chat
	if strings.TrimSpace(cfg.Providers.Breakdown.APIKey) != "" {
		breakdown = providers.FromConfig(cfg.Providers.Breakdown)
	}

	gw := gateway.New(chat, breakdown, loc, cfg.KnowledgeBasePath())

	dataDir := cfg.DataDirPath()
	interactionStore, err := interactions.NewStore(filepath.Join(dataDir, "interactions.db"))
	if err != nil {
		return nil, fmt.Errorf("open interaction log: %w", err)
	}
	checkinStore, err := checkin.NewStore(filepath.Join(dataDir, "checkins.db"))
	if err != nil {
		_ = interactionStore.Close()
		return nil, fmt.Errorf("open checkin store: %w", err)
	}

	google := sources.NewGoogleClient(cfg.Sources.Google, cfg.GoogleTokenPath(), loc)
	var bio sources.Biometrics
	if garmin := sources.NewGarminClient(cfg.Sources.Garmin); garmin.Enabled() {
		bio = garmin
	}

	msgBus := bus.NewMessageBus()
	timerManager := timers.NewManager(msgBus)

	asst := assistant.New(assistant.Deps{
		Bus:          msgBus,
		Gateway:      gw,
		Calendar:     google,
		Tasks:        google,
		Biometrics:   bio,
		Sessions:     session.NewStore(),
		Splitter:     format.NewSplitter(cfg.Format.MaxCharsPerBubble, cfg.Format.MaxBubblesPerBatch),
		Timers:       timerManager,
		Interactions: interactionStore,
		Checkins:     checkinStore,
		Location:     loc,
	})

	return &runtimeDeps{
		bus:          msgBus,
		assistant:    asst,
		timers:       timerManager,
		interactions: interactionStore,
		checkins:     checkinStore,
		location:     loc,
	}, nil
}

func (r *runtimeDeps) close() {
	r.timers.StopAll()
	_ = r.checkins.Close()
	_ = r.interactions.Close()
	r.bus.Close()
}

func chatCmd() {
	message := ""
	sessionKey := "cli:default"

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--debug", "-d":
			logger.SetLevel(logger.DEBUG)
			fmt.Println("🔍 Debug mode enabled")
		case "-m", "--message":
			if i+1 < len(args) {
				message = args[i+1]
				i++
			}
		case "-s", "--session":
			if i+1 < len(args) {
				sessionKey = args[i+1]
				i++
			}
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := validateRuntimeConfig(cfg, false); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		fmt.Printf("Error initializing runtime: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go rt.assistant.Run(ctx)

	replies := make(chan string, 16)
	go func() {
		for {
			out, ok := rt.bus.SubscribeOutbound(ctx)
			if !ok {
				close(replies)
				return
			}
			replies <- renderLocal(out)
		}
	}()

	sendLocal := func(text string) {
		rt.bus.PublishInbound(bus.InboundMessage{
			Channel:    "cli",
			SenderID:   "ariel",
			ChatID:     "direct",
			Content:    text,
			SessionKey: sessionKey,
		})
	}

	if message != "" {
		sendLocal(message)
		printUntilQuiet(replies, 60*time.Second)
		return
	}

	fmt.Printf("%s Interactive mode (Ctrl+C to exit)\n\n", appName)
	interactiveMode(sendLocal, replies)
}

// renderLocal flattens an outbound message for terminal display, printing
// inline buttons the way a Telegram client would show them.
func renderLocal(out bus.OutboundMessage) string {
	var b strings.Builder
	b.WriteString(out.Content)
	for _, label := range out.Buttons {
		b.WriteString("\n  👉 ")
		b.WriteString(label)
	}
	return b.String()
}

// printUntilQuiet drains replies until the assistant stops producing bubbles.
// A reply can fan out to several outbound messages, so one receive is not
// enough.
func printUntilQuiet(replies <-chan string, max time.Duration) {
	deadline := time.NewTimer(max)
	defer deadline.Stop()

	received := false
	for {
		quiet := 20 * time.Second
		if received {
			quiet = 1500 * time.Millisecond
		}
		select {
		case reply, ok := <-replies:
			if !ok {
				return
			}
			received = true
			fmt.Printf("\n%s %s\n", appName, reply)
		case <-time.After(quiet):
			return
		case <-deadline.C:
			return
		}
	}
}

func interactiveMode(send func(string), replies <-chan string) {
	prompt := fmt.Sprintf("%s You: ", appName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".jarvisz_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})

	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(send, replies)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nChau!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if input == "exit" || input == "quit" {
			fmt.Println("Chau!")
			return
		}

		send(input)
		printUntilQuiet(replies, 60*time.Second)
		fmt.Println()
	}
}

func simpleInteractiveMode(send func(string), replies <-chan string) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s You: ", appName)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nChau!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if input == "exit" || input == "quit" {
			fmt.Println("Chau!")
			return
		}

		send(input)
		printUntilQuiet(replies, 60*time.Second)
		fmt.Println()
	}
}

func gatewayCmd() {
	// Check for --debug flag
	args := os.Args[2:]
	for _, arg := range args {
		if arg == "--debug" || arg == "-d" {
			logger.SetLevel(logger.DEBUG)
			fmt.Println("🔍 Debug mode enabled")
			break
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := validateRuntimeConfig(cfg, true); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		fmt.Printf("Error initializing runtime: %v\n", err)
		os.Exit(1)
	}

	channelManager, err := channels.NewManager(cfg, rt.bus)
	if err != nil {
		fmt.Printf("Error creating channel manager: %v\n", err)
		rt.close()
		os.Exit(1)
	}

	scheduler, err := reminders.NewScheduler(rt.bus, cfg.Reminders, rt.location)
	if err != nil {
		fmt.Printf("Error configuring reminders: %v\n", err)
		rt.close()
		os.Exit(1)
	}

	enabledChannels := channelManager.GetEnabledChannels()
	fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabledChannels, ", "))
	fmt.Printf("✓ Timezone: %s\n", rt.location)
	if cfg.Reminders.Enabled {
		fmt.Printf("✓ Check-in reminders: %s / %s\n", cfg.Reminders.MorningCron, cfg.Reminders.EveningCron)
	}
	fmt.Println("Press Ctrl+C to stop")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := channelManager.StartAll(ctx); err != nil {
		fmt.Printf("Error starting channels: %v\n", err)
		cancel()
		rt.close()
		os.Exit(1)
	}

	go rt.assistant.Run(ctx)
	go scheduler.Run(ctx)

	logger.InfoCF("cli", "Gateway started", map[string]interface{}{
		"channels": strings.Join(enabledChannels, ","),
		"timezone": rt.location.String(),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	_ = channelManager.StopAll(context.Background())
	rt.close()
	fmt.Println("✓ Gateway stopped")
}

func reviewCmd() {
	limit := 20

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--limit", "-n":
			if i+1 < len(args) {
				if v, err := strconv.Atoi(args[i+1]); err == nil && v > 0 {
					limit = v
				}
				i++
			}
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	store, err := interactions.NewStore(filepath.Join(cfg.DataDirPath(), "interactions.db"))
	if err != nil {
		fmt.Printf("Error opening interaction log: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	records, err := store.Unreviewed(ctx, limit)
	if err != nil {
		fmt.Printf("Error reading interactions: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("Nothing to review. 🎉")
		return
	}

	rl, err := readline.New("> ")
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Printf("%d interaction(s) pending review. Enter skips, 'q' quits.\n", len(records))

	for i, rec := range records {
		fmt.Printf("\n--- %d/%d · %s · lane=%s ---\n", i+1, len(records), rec.Timestamp.Format("2006-01-02 15:04"), rec.Lane)
		fmt.Printf("User: %s\n", rec.UserMessage)
		fmt.Printf("Bot:  %s\n", rec.BotResponse)

		category, quit := promptField(rl, "Category (good/bad/meh)")
		if quit {
			return
		}
		if category == "" {
			continue
		}
		rating, quit := promptField(rl, "Rating (1-5)")
		if quit {
			return
		}
		notes, quit := promptField(rl, "Notes")
		if quit {
			return
		}

		if err := store.UpdateReview(ctx, rec.ID, category, rating, notes); err != nil {
			fmt.Printf("Error saving review: %v\n", err)
			continue
		}
		fmt.Println("Saved.")
	}
	fmt.Println("\nDone.")
}

func promptField(rl *readline.Instance, label string) (value string, quit bool) {
	rl.SetPrompt(label + ": ")
	line, err := rl.Readline()
	if err != nil {
		return "", true
	}
	line = strings.TrimSpace(line)
	if line == "q" || line == "quit" {
		return "", true
	}
	return line, false
}

func statusCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	configPath := getConfigPath()

	fmt.Printf("%s Status\n", appName)
	fmt.Printf("Version: %s\n", formatVersion())
	build, _ := formatBuildInfo()
	if build != "" {
		fmt.Printf("Build: %s\n", build)
	}
	fmt.Println()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config:", configPath, "✓")
	} else {
		fmt.Println("Config:", configPath, "✗")
	}

	dataDir := cfg.DataDirPath()
	if _, err := os.Stat(dataDir); err == nil {
		fmt.Println("Data dir:", dataDir, "✓")
	} else {
		fmt.Println("Data dir:", dataDir, "✗")
	}

	interactionsDB := filepath.Join(dataDir, "interactions.db")
	if _, err := os.Stat(interactionsDB); err == nil {
		fmt.Println("Interaction log:", interactionsDB, "✓")
		if store, err := interactions.NewStore(interactionsDB); err == nil {
			if total, unreviewed, err := store.Count(context.Background()); err == nil {
				fmt.Printf("  %d logged, %d pending review\n", total, unreviewed)
			}
			_ = store.Close()
		}
	} else {
		fmt.Println("Interaction log:", interactionsDB, "not initialized")
	}

	status := func(enabled bool) string {
		if enabled {
			return "✓"
		}
		return "not set"
	}

	chatReady := strings.TrimSpace(cfg.Providers.Chat.APIKey) != ""
	telegramReady := strings.TrimSpace(cfg.Channels.Telegram.Token) != ""
	discordReady := strings.TrimSpace(cfg.Channels.Discord.Token) != ""
	garminReady := strings.TrimSpace(cfg.Sources.Garmin.Token) != ""
	_, googleErr := os.Stat(cfg.GoogleTokenPath())

	fmt.Println()
	fmt.Println("Chat model:", cfg.Providers.Chat.Model)
	fmt.Println("Chat API:", status(chatReady))
	fmt.Println("Breakdown API:", status(strings.TrimSpace(cfg.Providers.Breakdown.APIKey) != ""), "(falls back to chat)")
	fmt.Println("Telegram token:", status(telegramReady))
	fmt.Println("Discord token:", status(discordReady))
	fmt.Println("Google token:", status(googleErr == nil))
	fmt.Println("Garmin token:", status(garminReady))
	fmt.Println("Chat ready:", status(chatReady))
	fmt.Println("Gateway ready:", status(chatReady && telegramReady))
}

func getConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".jarvisz", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}
