package session

import (
	"sync"

	"github.com/arielsz/jarvisz/pkg/gateway"
)

// MaxHistoryTurns bounds the rolling conversation memory: the 10 most recent
// turns, i.e. the last 5 exchanges.
const MaxHistoryTurns = 10

// PendingAction is the single in-flight mutating action awaiting a yes/no
// reply. TargetID/ListID are filled for delete actions after resolution.
type PendingAction struct {
	Kind      gateway.ActionKind
	Summary   string
	StartTime string
	TargetID  string
	ListID    string
}

// CheckinPhase tracks an in-flight guided check-in conversation.
type CheckinPhase int

const (
	CheckinIdle CheckinPhase = iota
	CheckinSleepHours
	CheckinBodyBattery
	CheckinMood
	CheckinInteroception
	CheckinDayScore
	CheckinStress
	CheckinReflection
)

type CheckinState struct {
	Phase   CheckinPhase
	Evening bool
	Answers map[string]interface{}
}

// Session is one user's mutable state. It is only ever touched inside
// Store.Do, which serializes access per user.
type Session struct {
	history []gateway.Turn

	Pending *PendingAction

	// Pagination state for the smart-response pipeline.
	Remaining    []string
	FinalButtons string

	Checkin *CheckinState
}

// History returns the rolling turn window, oldest first.
func (s *Session) History() []gateway.Turn {
	return s.history
}

// AppendExchange records one user/assistant pair and evicts the oldest turns
// beyond the window.
func (s *Session) AppendExchange(userText, assistantText string) {
	s.history = append(s.history,
		gateway.Turn{Role: "user", Content: userText},
		gateway.Turn{Role: "assistant", Content: assistantText},
	)
	if len(s.history) > MaxHistoryTurns {
		s.history = s.history[len(s.history)-MaxHistoryTurns:]
	}
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// Store keys sessions by user id and serializes all access to one user's
// session. Two concurrent messages from the same user cannot interleave their
// state mutations; different users proceed independently.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (st *Store) entryFor(userID string) *entry {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.entries[userID]
	if !ok {
		e = &entry{}
		st.entries[userID] = e
	}
	return e
}

// Do runs fn with exclusive access to the user's session.
func (st *Store) Do(userID string, fn func(s *Session)) {
	e := st.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.session)
}
