package gateway

import "errors"

// Lane is the routing destination for one incoming message.
type Lane string

const (
	LaneCasual     Lane = "casual"
	LaneManagement Lane = "management"
	LaneBreakdown  Lane = "breakdown"
	LaneConsultant Lane = "consultant"
)

// ActionKind enumerates the management-lane actions the extractor may emit.
type ActionKind string

const (
	ActionCreateEvent  ActionKind = "create_event"
	ActionDeleteEvent  ActionKind = "delete_event"
	ActionCreateTask   ActionKind = "create_task"
	ActionDeleteTask   ActionKind = "delete_task"
	ActionReadCalendar ActionKind = "read_calendar"
	ActionReadTasks    ActionKind = "read_tasks"
)

// Mutating reports whether the action requires a confirmation round trip.
func (k ActionKind) Mutating() bool {
	switch k {
	case ActionCreateEvent, ActionDeleteEvent, ActionCreateTask, ActionDeleteTask:
		return true
	}
	return false
}

// ActionRequest is the validated extraction result for a management message.
type ActionRequest struct {
	Action    ActionKind
	Summary   string
	StartTime string // ISO 8601, optional
}

// Turn is one prior exchange half used as conditioning context.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Metrics is the biometric snapshot attached to consultant prompts.
type Metrics struct {
	BodyBattery *int
	StressAvg   *int
	SleepScore  *int
	RestingHR   *int
}

// Context carries the best-effort external data for a consultant reply.
// Empty fields are simply omitted from the prompt.
type Context struct {
	Biometrics *Metrics
	Agenda     string
	Tasks      string
}

// ErrExtraction marks a malformed or incomplete structured-intent payload.
var ErrExtraction = errors.New("could not extract a management intent")
