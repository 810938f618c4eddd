package interactions

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

// Record is one logged exchange. The hot path only ever inserts; the review
// fields are filled later by the offline workflow.
type Record struct {
	ID          string
	Timestamp   time.Time
	UserID      string
	Channel     string
	Lane        string
	UserMessage string
	BotResponse string

	HasBiometrics bool
	HasCalendar   bool
	HasTasks      bool

	Reviewed bool
	Category string
	Rating   string
	Notes    string
}

// Store is the append-only interaction log backed by SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates/opens the interaction database at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create interactions db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process log. One shared connection avoids writer lock contention
	// with SQLite under concurrent goroutines.
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
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL DEFAULT '',
			lane TEXT NOT NULL DEFAULT '',
			user_message TEXT NOT NULL,
			bot_response TEXT NOT NULL,
			has_biometrics INTEGER NOT NULL DEFAULT 0,
			has_calendar INTEGER NOT NULL DEFAULT 0,
			has_tasks INTEGER NOT NULL DEFAULT 0,
			reviewed INTEGER NOT NULL DEFAULT 0,
			category TEXT NOT NULL DEFAULT '',
			rating TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_reviewed ON interactions(reviewed, ts);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init interactions schema: %w", err)
		}
	}
	return nil
}

// Log appends one exchange. The record's ID and timestamp are assigned here
// when empty.
func (s *Store) Log(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions
			(id, ts, user_id, channel, lane, user_message, bot_response,
			 has_biometrics, has_calendar, has_tasks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.Format(time.RFC3339Nano), rec.UserID, rec.Channel, rec.Lane,
		rec.UserMessage, rec.BotResponse,
		boolInt(rec.HasBiometrics), boolInt(rec.HasCalendar), boolInt(rec.HasTasks),
	)
	if err != nil {
		return "", fmt.Errorf("insert interaction: %w", err)
	}
	return rec.ID, nil
}

// Unreviewed returns up to limit unreviewed records, oldest first.
func (s *Store) Unreviewed(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, user_id, channel, lane, user_message, bot_response,
		       has_biometrics, has_calendar, has_tasks, reviewed, category, rating, notes
		FROM interactions
		WHERE reviewed = 0
		ORDER BY ts ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unreviewed: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var ts string
		var bio, cal, tasks, reviewed int
		if err := rows.Scan(&rec.ID, &ts, &rec.UserID, &rec.Channel, &rec.Lane,
			&rec.UserMessage, &rec.BotResponse, &bio, &cal, &tasks,
			&reviewed, &rec.Category, &rec.Rating, &rec.Notes); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		rec.HasBiometrics = bio != 0
		rec.HasCalendar = cal != 0
		rec.HasTasks = tasks != 0
		rec.Reviewed = reviewed != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateReview marks one record reviewed with its annotation.
func (s *Store) UpdateReview(ctx context.Context, id, category, rating, notes string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE interactions
		SET reviewed = 1, category = ?, rating = ?, notes = ?
		WHERE id = ?`, category, rating, notes, id)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("interaction %s not found", id)
	}
	return nil
}

// Count returns total and unreviewed row counts, for the status command.
func (s *Store) Count(ctx context.Context) (total, unreviewed int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&total); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions WHERE reviewed = 0`).Scan(&unreviewed); err != nil {
		return 0, 0, err
	}
	return total, unreviewed, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
