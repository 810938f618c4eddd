package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Assistant AssistantConfig `json:"assistant"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Sources   SourcesConfig   `json:"sources"`
	Format    FormatConfig    `json:"format"`
	Reminders RemindersConfig `json:"reminders"`
	mu        sync.RWMutex
}

type AssistantConfig struct {
	DataDir       string `json:"data_dir" env:"JARVISZ_ASSISTANT_DATA_DIR"`
	Timezone      string `json:"timezone" env:"JARVISZ_ASSISTANT_TIMEZONE"`
	KnowledgeBase string `json:"knowledge_base" env:"JARVISZ_ASSISTANT_KNOWLEDGE_BASE"`
	HistoryTurns  int    `json:"history_turns" env:"JARVISZ_ASSISTANT_HISTORY_TURNS"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Token     string              `json:"token" env:"JARVISZ_CHANNELS_TELEGRAM_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"JARVISZ_CHANNELS_TELEGRAM_ALLOW_FROM"`
}

type DiscordConfig struct {
	Token     string              `json:"token" env:"JARVISZ_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"JARVISZ_CHANNELS_DISCORD_ALLOW_FROM"`
}

type ProvidersConfig struct {
	// Chat drives classification, extraction and conversational replies.
	Chat ProviderConfig `json:"chat"`
	// Breakdown drives the 5-step task decomposition lane.
	Breakdown ProviderConfig `json:"breakdown"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
	Model   string `json:"model"`
}

type SourcesConfig struct {
	Google GoogleConfig `json:"google"`
	Garmin GarminConfig `json:"garmin"`
}

// GoogleConfig points at an externally provisioned OAuth token file. The
// refresh flow only needs the client pair plus the refresh token inside it.
type GoogleConfig struct {
	TokenFile    string `json:"token_file" env:"JARVISZ_SOURCES_GOOGLE_TOKEN_FILE"`
	ClientID     string `json:"client_id" env:"JARVISZ_SOURCES_GOOGLE_CLIENT_ID"`
	ClientSecret string `json:"client_secret" env:"JARVISZ_SOURCES_GOOGLE_CLIENT_SECRET"`
}

type GarminConfig struct {
	APIBase string `json:"api_base" env:"JARVISZ_SOURCES_GARMIN_API_BASE"`
	Token   string `json:"token" env:"JARVISZ_SOURCES_GARMIN_TOKEN"`
}

type FormatConfig struct {
	MaxCharsPerBubble  int `json:"max_chars_per_bubble" env:"JARVISZ_FORMAT_MAX_CHARS_PER_BUBBLE"`
	MaxBubblesPerBatch int `json:"max_bubbles_per_batch" env:"JARVISZ_FORMAT_MAX_BUBBLES_PER_BATCH"`
}

type RemindersConfig struct {
	Enabled     bool   `json:"enabled" env:"JARVISZ_REMINDERS_ENABLED"`
	MorningCron string `json:"morning_cron" env:"JARVISZ_REMINDERS_MORNING_CRON"`
	EveningCron string `json:"evening_cron" env:"JARVISZ_REMINDERS_EVENING_CRON"`
	Channel     string `json:"channel" env:"JARVISZ_REMINDERS_CHANNEL"`
	ChatID      string `json:"chat_id" env:"JARVISZ_REMINDERS_CHAT_ID"`
}

func DefaultConfig() *Config {
	return &Config{
		Assistant: AssistantConfig{
			DataDir:       "~/.jarvisz/data",
			Timezone:      "America/Argentina/Buenos_Aires",
			KnowledgeBase: "~/.jarvisz/knowledge_base.md",
			HistoryTurns:  10,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{AllowFrom: FlexibleStringSlice{}},
			Discord:  DiscordConfig{AllowFrom: FlexibleStringSlice{}},
		},
		Providers: ProvidersConfig{
			Chat: ProviderConfig{
				APIBase: "https://api.groq.com/openai/v1",
				Model:   "llama-3.3-70b-versatile",
			},
			Breakdown: ProviderConfig{
				APIBase: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
		},
		Sources: SourcesConfig{
			Google: GoogleConfig{TokenFile: "~/.jarvisz/google_token.json"},
			Garmin: GarminConfig{APIBase: "https://connectapi.garmin.com"},
		},
		Format: FormatConfig{
			MaxCharsPerBubble:  280,
			MaxBubblesPerBatch: 3,
		},
		Reminders: RemindersConfig{
			Enabled:     false,
			MorningCron: "0 9 * * *",
			EveningCron: "30 21 * * *",
			Channel:     "telegram",
		},
	}
}

func envTagsFor(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return err
	}
	// The provider blocks share a struct type, so their env names are bound here.
	if v := os.Getenv("JARVISZ_PROVIDERS_CHAT_API_KEY"); v != "" {
		cfg.Providers.Chat.APIKey = v
	}
	if v := os.Getenv("JARVISZ_PROVIDERS_BREAKDOWN_API_KEY"); v != "" {
		cfg.Providers.Breakdown.APIKey = v
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := envTagsFor(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := envTagsFor(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) DataDirPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Assistant.DataDir)
}

func (c *Config) KnowledgeBasePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Assistant.KnowledgeBase)
}

func (c *Config) GoogleTokenPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Sources.Google.TokenFile)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
