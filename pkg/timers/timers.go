package timers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arielsz/jarvisz/pkg/bus"
	"github.com/arielsz/jarvisz/pkg/logger"
)

var timerTagRe = regexp.MustCompile(`<<TIMER:\s*(\d+)[mM]?\s*,\s*(.*?)>>`)

// ParseTimerTag extracts an optional <<TIMER: 15m, Label>> directive.
// Returns the text with the tag stripped; ok is false when no tag is present.
func ParseTimerTag(text string) (clean string, minutes int, label string, ok bool) {
	m := timerTagRe.FindStringSubmatchIndex(text)
	if m == nil {
		return text, 0, "", false
	}
	minutes, _ = strconv.Atoi(text[m[2]:m[3]])
	label = strings.TrimSpace(text[m[4]:m[5]])
	clean = strings.TrimSpace(text[:m[0]] + text[m[1]:])
	return clean, minutes, label, true
}

// Manager owns one pending focus-block timer per chat. Timers live in memory
// only: a restart drops them, which is the documented trade-off for this
// feature.
type Manager struct {
	bus    *bus.MessageBus
	mu     sync.Mutex
	active map[string]*time.Timer
}

func NewManager(b *bus.MessageBus) *Manager {
	return &Manager{bus: b, active: make(map[string]*time.Timer)}
}

// Set schedules the end-of-block notification, replacing any previous timer
// for the chat.
func (m *Manager) Set(channel, chatID string, minutes int, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.active[chatID]; ok {
		prev.Stop()
	}

	logger.InfoCF("timers", "Timer set", map[string]interface{}{
		"chat_id": chatID,
		"minutes": minutes,
		"label":   label,
	})

	m.active[chatID] = time.AfterFunc(time.Duration(minutes)*time.Minute, func() {
		m.mu.Lock()
		delete(m.active, chatID)
		m.mu.Unlock()

		m.bus.PublishOutbound(bus.OutboundMessage{
			Channel: channel,
			ChatID:  chatID,
			Content: fmt.Sprintf("🔔 **TIEMPO CUMPLIDO**\n\nTerminó el bloque de: %s.\n\n¿Cómo te fue?", label),
		})
	})
}

// Cancel stops the chat's pending timer, if any. Returns whether one existed.
func (m *Manager) Cancel(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	timer, ok := m.active[chatID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(m.active, chatID)
	logger.InfoCF("timers", "Timer cancelled", map[string]interface{}{"chat_id": chatID})
	return true
}

// Active reports whether a timer is pending for the chat.
func (m *Manager) Active(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[chatID]
	return ok
}

// StopAll cancels everything, used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, timer := range m.active {
		timer.Stop()
		delete(m.active, id)
	}
}
