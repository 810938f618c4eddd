package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/arielsz/jarvisz/pkg/bus"
	"github.com/arielsz/jarvisz/pkg/config"
)

func newTestTelegram(t *testing.T, b *bus.MessageBus, handler http.Handler) *TelegramChannel {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ch, err := NewTelegramChannel(config.TelegramConfig{Token: "test-token"}, b)
	if err != nil {
		t.Fatalf("NewTelegramChannel: %v", err)
	}
	ch.apiBase = srv.URL
	return ch
}

func consumeInbound(t *testing.T, b *bus.MessageBus) bus.InboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no inbound message")
	}
	return msg
}

func TestHandleUpdateTextMessage(t *testing.T) {
	b := bus.NewMessageBus()
	ch := newTestTelegram(t, b, http.NewServeMux())

	ch.handleUpdate(context.Background(), tgUpdate{
		UpdateID: 1,
		Message: &tgMessage{
			MessageID: 7,
			From:      &tgUser{ID: 123, Username: "ariel"},
			Chat:      tgChat{ID: 456},
			Text:      "hola",
		},
	})

	msg := consumeInbound(t, b)
	if msg.Channel != "telegram" || msg.ChatID != "456" || msg.Content != "hola" {
		t.Fatalf("unexpected inbound: %+v", msg)
	}
	if msg.SenderID != "123|ariel" {
		t.Fatalf("compound sender id expected, got %q", msg.SenderID)
	}
	if msg.IsCallback() {
		t.Fatal("plain message flagged as callback")
	}
}

func TestHandleUpdateCallbackQuery(t *testing.T) {
	b := bus.NewMessageBus()
	answered := false
	mux := http.NewServeMux()
	mux.HandleFunc("/bottest-token/answerCallbackQuery", func(w http.ResponseWriter, r *http.Request) {
		answered = true
		w.Write([]byte(`{"ok":true,"result":true}`))
	})
	ch := newTestTelegram(t, b, mux)

	ch.handleUpdate(context.Background(), tgUpdate{
		UpdateID: 2,
		CallbackQuery: &tgCallback{
			ID:      "cb1",
			From:    &tgUser{ID: 123},
			Message: &tgMessage{Chat: tgChat{ID: 456}},
			Data:    "Leer más ⬇️",
		},
	})

	if !answered {
		t.Fatal("callback query not answered")
	}
	msg := consumeInbound(t, b)
	if msg.Content != "Leer más ⬇️" {
		t.Fatalf("callback data not forwarded: %q", msg.Content)
	}
	if !msg.IsCallback() {
		t.Fatal("callback metadata missing")
	}
}

func TestHandleUpdateAllowlist(t *testing.T) {
	b := bus.NewMessageBus()
	ch, err := NewTelegramChannel(config.TelegramConfig{
		Token:     "test-token",
		AllowFrom: config.FlexibleStringSlice{"999"},
	}, b)
	if err != nil {
		t.Fatalf("NewTelegramChannel: %v", err)
	}

	ch.handleUpdate(context.Background(), tgUpdate{
		Message: &tgMessage{
			From: &tgUser{ID: 123, Username: "intruso"},
			Chat: tgChat{ID: 456},
			Text: "hola",
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if msg, ok := b.ConsumeInbound(ctx); ok {
		t.Fatalf("disallowed sender leaked through: %+v", msg)
	}
}

func TestSendRendersInlineKeyboard(t *testing.T) {
	var got map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/bottest-token/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	b := bus.NewMessageBus()
	ch := newTestTelegram(t, b, mux)
	ch.setRunning(true)

	err := ch.Send(context.Background(), bus.OutboundMessage{
		Channel: "telegram",
		ChatID:  "456",
		Content: "¿Confirmás?",
		Buttons: []string{"Sí", "No"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got["text"] != "¿Confirmás?" || got["chat_id"] != "456" {
		t.Fatalf("payload wrong: %v", got)
	}
	markup, ok := got["reply_markup"].(map[string]interface{})
	if !ok {
		t.Fatalf("reply_markup missing: %v", got)
	}
	rows, ok := markup["inline_keyboard"].([]interface{})
	if !ok || len(rows) != 2 {
		t.Fatalf("expected 2 keyboard rows: %v", markup)
	}
	first := rows[0].([]interface{})[0].(map[string]interface{})
	if first["text"] != "Sí" || first["callback_data"] != "Sí" {
		t.Fatalf("button wrong: %v", first)
	}
}

func TestInlineKeyboardCallbackDataByteLimit(t *testing.T) {
	label := strings.Repeat("é", 40) // 80 bytes, past the 64-byte limit
	markup := inlineKeyboard([]string{label})
	rows := markup["inline_keyboard"].([][]map[string]string)
	btn := rows[0][0]

	if btn["text"] != label {
		t.Fatalf("display text must keep the full label: %q", btn["text"])
	}
	data := btn["callback_data"]
	if len(data) > maxCallbackData {
		t.Fatalf("callback_data is %d bytes, max %d", len(data), maxCallbackData)
	}
	if !utf8.ValidString(data) {
		t.Fatalf("callback_data cut mid-rune: %q", data)
	}
	if data != strings.Repeat("é", 32) {
		t.Fatalf("callback_data = %q", data)
	}
}

func TestSendNotRunning(t *testing.T) {
	b := bus.NewMessageBus()
	ch := newTestTelegram(t, b, http.NewServeMux())
	if err := ch.Send(context.Background(), bus.OutboundMessage{ChatID: "1", Content: "x"}); err == nil {
		t.Fatal("expected error when not running")
	}
}

func TestIsAllowedCompoundID(t *testing.T) {
	base := NewBaseChannel("telegram", bus.NewMessageBus(), []string{"@ariel", "777"})

	cases := []struct {
		sender string
		want   bool
	}{
		{"123|ariel", true},
		{"777|otro", true},
		{"777", true},
		{"123|intruso", false},
		{"123", false},
	}
	for _, tc := range cases {
		if got := base.IsAllowed(tc.sender); got != tc.want {
			t.Errorf("IsAllowed(%q) = %v, want %v", tc.sender, got, tc.want)
		}
	}
}

func TestIsAllowedEmptyListAllowsAll(t *testing.T) {
	base := NewBaseChannel("telegram", bus.NewMessageBus(), nil)
	if !base.IsAllowed("anyone") {
		t.Fatal("empty allowlist should allow everyone")
	}
}
