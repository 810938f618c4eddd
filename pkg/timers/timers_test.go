package timers

import (
	"testing"

	"github.com/arielsz/jarvisz/pkg/bus"
)

func TestParseTimerTag(t *testing.T) {
	clean, minutes, label, ok := ParseTimerTag("Dale, arrancamos. <<TIMER: 25m, Ordenar escritorio>> Avisame.")
	if !ok {
		t.Fatalf("expected a timer tag")
	}
	if minutes != 25 || label != "Ordenar escritorio" {
		t.Fatalf("minutes=%d label=%q", minutes, label)
	}
	if clean != "Dale, arrancamos.  Avisame." && clean != "Dale, arrancamos. Avisame." {
		t.Fatalf("clean = %q", clean)
	}
}

func TestParseTimerTag_NoSuffixAndNoTag(t *testing.T) {
	_, minutes, _, ok := ParseTimerTag("<<TIMER: 5, foco>>")
	if !ok || minutes != 5 {
		t.Fatalf("minutes=%d ok=%v", minutes, ok)
	}

	text := "sin directivas acá"
	clean, _, _, ok := ParseTimerTag(text)
	if ok || clean != text {
		t.Fatalf("unexpected parse: %q ok=%v", clean, ok)
	}
}

func TestManager_SetReplacesAndCancelStops(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	m := NewManager(mb)
	defer m.StopAll()

	m.Set("telegram", "chat1", 60, "bloque A")
	m.Set("telegram", "chat1", 60, "bloque B")
	if !m.Active("chat1") {
		t.Fatalf("expected an active timer")
	}

	if !m.Cancel("chat1") {
		t.Fatalf("cancel should report an existing timer")
	}
	if m.Active("chat1") {
		t.Fatalf("timer still active after cancel")
	}
	if m.Cancel("chat1") {
		t.Fatalf("second cancel should be a no-op")
	}
}
