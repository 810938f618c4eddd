package checkin

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one completed check-in.
type Entry struct {
	ID        string
	Timestamp time.Time
	UserID    string
	Kind      string // "morning" or "evening"

	SleepScore  int
	BodyBattery int
	MoodScore   int
	Emotion     string
	Sensation   string
	DayScore    int
	Stress      int
	Reflection  string
	Notes       string
}

// FromAnswers builds a storable entry from the answers a finished flow
// collected in the session state.
func FromAnswers(userID string, evening bool, answers map[string]interface{}) Entry {
	e := Entry{UserID: userID, Kind: "morning"}
	if evening {
		e.Kind = "evening"
	}

	if v, ok := answers["body_battery"].(int); ok {
		e.BodyBattery = v
	}
	if v, ok := answers["mood_score"].(int); ok {
		e.MoodScore = v
	}
	if v, ok := answers["emotion"].(string); ok {
		e.Emotion = v
	}
	if v, ok := answers["sensation"].(string); ok {
		e.Sensation = v
	}
	if v, ok := answers["day_score"].(int); ok {
		e.DayScore = v
		// Rough 1-10 day score to 1-5 mood mapping for evening entries.
		if evening && e.MoodScore == 0 {
			m := (v + 1) / 2
			if m < 1 {
				m = 1
			}
			if m > 5 {
				m = 5
			}
			e.MoodScore = m
		}
	}
	if v, ok := answers["stress_level"].(int); ok {
		e.Stress = v
	}
	if v, ok := answers["reflection"].(string); ok {
		e.Reflection = v
	}

	switch {
	case hasInt(answers, "sleep_score"):
		e.SleepScore = answers["sleep_score"].(int)
		e.Notes = fmt.Sprintf("Garmin Score: %d", e.SleepScore)
	case hasFloat(answers, "sleep_hours"):
		hours := answers["sleep_hours"].(float64)
		e.SleepScore = int(hours * 10)
		e.Notes = fmt.Sprintf("Manual Hours: %g", hours)
	default:
		if !evening {
			e.Notes = "No sleep data"
		}
	}
	return e
}

func hasInt(m map[string]interface{}, k string) bool {
	_, ok := m[k].(int)
	return ok
}

func hasFloat(m map[string]interface{}, k string) bool {
	_, ok := m[k].(float64)
	return ok
}

// Store persists completed check-ins in SQLite.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkin db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS checkins (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			sleep_score INTEGER NOT NULL DEFAULT 0,
			body_battery INTEGER NOT NULL DEFAULT 0,
			mood_score INTEGER NOT NULL DEFAULT 0,
			emotion TEXT NOT NULL DEFAULT '',
			sensation TEXT NOT NULL DEFAULT '',
			day_score INTEGER NOT NULL DEFAULT 0,
			stress INTEGER NOT NULL DEFAULT 0,
			reflection TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_checkins_user_ts ON checkins(user_id, ts);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init checkins schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkins
			(id, ts, user_id, kind, sleep_score, body_battery, mood_score,
			 emotion, sensation, day_score, stress, reflection, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.Format(time.RFC3339Nano), e.UserID, e.Kind,
		e.SleepScore, e.BodyBattery, e.MoodScore,
		e.Emotion, e.Sensation, e.DayScore, e.Stress, e.Reflection, e.Notes,
	)
	if err != nil {
		return "", fmt.Errorf("insert checkin: %w", err)
	}
	return e.ID, nil
}

// Recent returns a user's latest check-ins, newest first.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 7
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, user_id, kind, sleep_score, body_battery, mood_score,
		       emotion, sensation, day_score, stress, reflection, notes
		FROM checkins
		WHERE user_id = ?
		ORDER BY ts DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query checkins: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.UserID, &e.Kind, &e.SleepScore, &e.BodyBattery,
			&e.MoodScore, &e.Emotion, &e.Sensation, &e.DayScore, &e.Stress,
			&e.Reflection, &e.Notes); err != nil {
			return nil, fmt.Errorf("scan checkin: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
