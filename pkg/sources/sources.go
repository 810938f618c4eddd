package sources

import (
	"context"
	"time"

	"github.com/arielsz/jarvisz/pkg/gateway"
)

// Event is a normalized calendar event.
type Event struct {
	ID      string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
}

// Task is a normalized pending task.
type Task struct {
	ID       string
	ListID   string
	ListName string
	Title    string
	Notes    string
	Due      time.Time
}

// Biometrics reads today's wearable metrics.
type Biometrics interface {
	TodayMetrics(ctx context.Context) (*gateway.Metrics, error)
}

// Calendar is the agenda source and mutation target.
type Calendar interface {
	// Agenda returns the next daysAhead days as a preformatted agenda view.
	Agenda(ctx context.Context, daysAhead int) (string, error)
	// AddEvent creates a one hour event starting at startISO (RFC3339).
	AddEvent(ctx context.Context, summary, startISO string) error
	// FindNextEvent returns the next upcoming event whose summary contains
	// query, or nil when nothing matches.
	FindNextEvent(ctx context.Context, query string) (*Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// Tasks is the pending task source and mutation target.
type Tasks interface {
	// PendingList returns all pending tasks as a preformatted list.
	PendingList(ctx context.Context) (string, error)
	// CreateTask adds a pending task. dueISO is an optional ISO 8601 due
	// date; empty means no deadline.
	CreateTask(ctx context.Context, title, dueISO string) error
	// FindTask returns the first pending task whose title contains query,
	// or nil when nothing matches.
	FindTask(ctx context.Context, query string) (*Task, error)
	DeleteTask(ctx context.Context, taskID, listID string) error
}
