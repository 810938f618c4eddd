package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/arielsz/jarvisz/pkg/bus"
	"github.com/arielsz/jarvisz/pkg/config"
	"github.com/arielsz/jarvisz/pkg/logger"
)

const (
	telegramAPIBase   = "https://api.telegram.org"
	pollTimeout       = 30
	maxCallbackData   = 64
	telegramSendLimit = 4096
)

type TelegramChannel struct {
	*BaseChannel
	cfg        config.TelegramConfig
	apiBase    string
	httpClient *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	offset int64
}

type tgUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgMessage struct {
	MessageID int64   `json:"message_id"`
	From      *tgUser `json:"from"`
	Chat      tgChat  `json:"chat"`
	Text      string  `json:"text"`
}

type tgCallback struct {
	ID      string     `json:"id"`
	From    *tgUser    `json:"from"`
	Message *tgMessage `json:"message"`
	Data    string     `json:"data"`
}

type tgUpdate struct {
	UpdateID      int64       `json:"update_id"`
	Message       *tgMessage  `json:"message"`
	CallbackQuery *tgCallback `json:"callback_query"`
}

func NewTelegramChannel(cfg config.TelegramConfig, bus *bus.MessageBus) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", bus, cfg.AllowFrom),
		cfg:         cfg,
		apiBase:     telegramAPIBase,
		httpClient:  &http.Client{Timeout: time.Duration(pollTimeout+10) * time.Second},
	}, nil
}

func (c *TelegramChannel) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.cfg.Token, method)
}

func (c *TelegramChannel) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var envelope struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s: %s", method, envelope.Description)
	}
	if out != nil {
		return json.Unmarshal(envelope.Result, out)
	}
	return nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot")

	var me tgUser
	if err := c.call(ctx, "getMe", map[string]interface{}{}, &me); err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	logger.InfoCF("telegram", "Telegram bot connected", map[string]interface{}{
		"username": me.Username,
		"user_id":  me.ID,
	})

	pollCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.setRunning(true)
	c.wg.Add(1)
	go c.pollLoop(pollCtx)

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot")
	c.setRunning(false)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *TelegramChannel) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := c.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WarnCF("telegram", "Poll failed, backing off", map[string]interface{}{
				"error": err.Error(),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= c.offset {
				c.offset = update.UpdateID + 1
			}
			c.handleUpdate(ctx, update)
		}
	}
}

func (c *TelegramChannel) getUpdates(ctx context.Context) ([]tgUpdate, error) {
	payload := map[string]interface{}{
		"timeout":         pollTimeout,
		"offset":          c.offset,
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []tgUpdate
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *TelegramChannel) handleUpdate(ctx context.Context, update tgUpdate) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		m := update.Message
		if m.Text == "" {
			return
		}
		senderID := compoundSenderID(m.From)
		logger.DebugCF("telegram", "Received message", map[string]interface{}{
			"sender_id": senderID,
			"chat_id":   m.Chat.ID,
		})
		c.HandleMessage(senderID, strconv.FormatInt(m.Chat.ID, 10), m.Text, map[string]string{
			"message_id": strconv.FormatInt(m.MessageID, 10),
			"user_id":    strconv.FormatInt(m.From.ID, 10),
			"username":   m.From.Username,
		})

	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		cb := update.CallbackQuery
		// Dismiss the client-side spinner before doing anything else.
		if err := c.call(ctx, "answerCallbackQuery", map[string]interface{}{"callback_query_id": cb.ID}, nil); err != nil {
			logger.WarnCF("telegram", "answerCallbackQuery failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		if cb.Message == nil || cb.Data == "" {
			return
		}
		senderID := compoundSenderID(cb.From)
		c.HandleMessage(senderID, strconv.FormatInt(cb.Message.Chat.ID, 10), cb.Data, map[string]string{
			"callback": "1",
			"user_id":  strconv.FormatInt(cb.From.ID, 10),
			"username": cb.From.Username,
		})
	}
}

func compoundSenderID(u *tgUser) string {
	id := strconv.FormatInt(u.ID, 10)
	if u.Username != "" {
		return id + "|" + u.Username
	}
	return id
}

// Send delivers one outbound message, rendering Buttons as an inline
// keyboard with one button per row.
func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("chat ID is empty")
	}
	content := msg.Content
	if content == "" {
		return nil
	}
	if len(content) > telegramSendLimit {
		content = content[:telegramSendLimit]
	}

	payload := map[string]interface{}{
		"chat_id":    msg.ChatID,
		"text":       content,
		"parse_mode": "Markdown",
	}
	if len(msg.Buttons) > 0 {
		payload["reply_markup"] = inlineKeyboard(msg.Buttons)
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.call(sendCtx, "sendMessage", payload, nil)
}

func inlineKeyboard(labels []string) map[string]interface{} {
	rows := make([][]map[string]string, 0, len(labels))
	for _, label := range labels {
		data := truncateBytes(label, maxCallbackData)
		rows = append(rows, []map[string]string{{
			"text":          label,
			"callback_data": data,
		}})
	}
	return map[string]interface{}{"inline_keyboard": rows}
}

// truncateBytes caps s at max bytes without splitting a rune. The callback
// data limit is a byte limit on the wire.
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
