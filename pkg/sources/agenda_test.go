package sources

import (
	"strings"
	"testing"
	"time"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestFormatAgendaEmpty(t *testing.T) {
	got := FormatAgenda(nil, time.Now(), 7, time.UTC)
	if got != "No hay eventos próximos." {
		t.Fatalf("got %q", got)
	}
}

func TestFormatAgendaTimedEvent(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2026, time.January, 20, 10, 0, 0, 0, loc)

	events := []Event{
		{
			Summary: "Reunión con Juan",
			Start:   time.Date(2026, time.January, 20, 15, 0, 0, 0, loc),
			End:     time.Date(2026, time.January, 20, 16, 0, 0, 0, loc),
		},
		{
			Summary: "Gimnasio",
			Start:   time.Date(2026, time.January, 20, 7, 0, 0, 0, loc),
			End:     time.Date(2026, time.January, 20, 8, 30, 0, 0, loc),
		},
	}
	got := FormatAgenda(events, now, 7, loc)

	if !strings.Contains(got, "🗓 **20 ENE, MAR**") {
		t.Fatalf("day header missing:\n%s", got)
	}
	gym := strings.Index(got, "🔵 07:00 - 08:30 | Gimnasio")
	meet := strings.Index(got, "🔵 15:00 - 16:00 | Reunión con Juan")
	if gym == -1 || meet == -1 {
		t.Fatalf("event lines missing:\n%s", got)
	}
	if gym > meet {
		t.Fatalf("events not sorted by start time:\n%s", got)
	}
}

func TestFormatAgendaMultiDayAllDay(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, loc)

	// Three day trip, exclusive end date per the calendar API.
	events := []Event{{
		Summary: "Viaje a Córdoba",
		AllDay:  true,
		Start:   time.Date(2026, time.March, 3, 0, 0, 0, 0, loc),
		End:     time.Date(2026, time.March, 6, 0, 0, 0, 0, loc),
	}}
	got := FormatAgenda(events, now, 7, loc)

	if n := strings.Count(got, "🔵 Todo el día | Viaje a Córdoba"); n != 3 {
		t.Fatalf("expected event under 3 days, got %d:\n%s", n, got)
	}
	for _, header := range []string{"**3 MAR, MAR**", "**4 MAR, MIÉ**", "**5 MAR, JUE**"} {
		if !strings.Contains(got, header) {
			t.Fatalf("header %q missing:\n%s", header, got)
		}
	}
}

func TestFormatAgendaClampsToRange(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, loc)

	events := []Event{{
		Summary: "Vacaciones",
		AllDay:  true,
		Start:   time.Date(2026, time.February, 25, 0, 0, 0, 0, loc),
		End:     time.Date(2026, time.March, 20, 0, 0, 0, 0, loc),
	}}
	got := FormatAgenda(events, now, 2, loc)

	// Only today plus 2 days fall inside the window.
	if n := strings.Count(got, "Todo el día | Vacaciones"); n != 3 {
		t.Fatalf("expected clamp to 3 days, got %d:\n%s", n, got)
	}
}

func TestFormatTasks(t *testing.T) {
	loc := mustLoc(t)
	due := time.Date(2026, time.April, 5, 12, 0, 0, 0, time.UTC)

	got := FormatTasks([]Task{
		{Title: "Pagar alquiler", Due: due, ListName: "My Tasks"},
		{Title: "Comprar yerba", ListName: "Casa"},
		{},
	}, loc)

	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines:\n%s", got)
	}
	if !strings.Contains(lines[0], "📋 Pagar alquiler (vence: 05/04/2026)") {
		t.Fatalf("due date formatting wrong: %q", lines[0])
	}
	if strings.Contains(lines[0], "[My Tasks]") {
		t.Fatalf("default list name should be hidden: %q", lines[0])
	}
	if !strings.Contains(lines[1], "[Casa]") {
		t.Fatalf("list name missing: %q", lines[1])
	}
	if !strings.Contains(lines[2], "Sin título") {
		t.Fatalf("untitled fallback missing: %q", lines[2])
	}
}

func TestFormatTasksEmpty(t *testing.T) {
	if got := FormatTasks(nil, time.UTC); got != "Sin tareas pendientes" {
		t.Fatalf("got %q", got)
	}
}
