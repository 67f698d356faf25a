package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file SQLite-backed Store, grounded on the
// teacher's graph/store/sqlite.go backend (WAL mode, busy-timeout, single
// writer connection pool), adapted from step/checkpoint rows to the
// append-only events table this spec requires.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path and
// ensures the events schema exists. path may be ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("event: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("event: apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			task_id TEXT NOT NULL,
			run_id TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMP NOT NULL,
			type TEXT NOT NULL,
			mode TEXT NOT NULL,
			stage TEXT NOT NULL,
			payload TEXT NOT NULL,
			evidence_ids TEXT NOT NULL DEFAULT '[]',
			parent_event_id TEXT NOT NULL DEFAULT ''
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("event: create events table: %w", err)
	}
	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id)",
		"CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_events_event_id ON events(event_id)",
	} {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("event: create index: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("event: marshal payload: %w", err)
	}
	evidence, err := json.Marshal(e.EvidenceIDs)
	if err != nil {
		return fmt.Errorf("event: marshal evidence_ids: %w", err)
	}
	runID, _ := e.Payload["run_id"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (event_id, task_id, run_id, timestamp, type, mode, stage, payload, evidence_ids, parent_event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.TaskID, runID, e.Timestamp.UTC(), string(e.Type), string(e.Mode), string(e.Stage),
		string(payload), string(evidence), e.ParentEventID,
	)
	if err != nil {
		return fmt.Errorf("event: insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, taskID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, task_id, timestamp, type, mode, stage, payload, evidence_ids, parent_event_id
		FROM events WHERE task_id = ? ORDER BY seq ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("event: list: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) ListByRun(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, task_id, timestamp, type, mode, stage, payload, evidence_ids, parent_event_id
		FROM events WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("event: list by run: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) Get(ctx context.Context, eventID string) (Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, task_id, timestamp, type, mode, stage, payload, evidence_ids, parent_event_id
		FROM events WHERE event_id = ?`, eventID)
	e, err := scanEventRow(row)
	if err == sql.ErrNoRows {
		return Event{}, ErrNotFound
	}
	return e, err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event: scan rows: %w", err)
	}
	return out, nil
}

func scanEventRow(r rowScanner) (Event, error) {
	var e Event
	var ts time.Time
	var typ, mode, stage, payload, evidence string
	if err := r.Scan(&e.EventID, &e.TaskID, &ts, &typ, &mode, &stage, &payload, &evidence, &e.ParentEventID); err != nil {
		return Event{}, err
	}
	e.Timestamp = ts
	e.Type = Type(typ)
	e.Mode = Mode(mode)
	e.Stage = Stage(stage)
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return Event{}, fmt.Errorf("event: unmarshal payload: %w", err)
		}
	}
	if evidence != "" {
		if err := json.Unmarshal([]byte(evidence), &e.EvidenceIDs); err != nil {
			return Event{}, fmt.Errorf("event: unmarshal evidence_ids: %w", err)
		}
	}
	return e, nil
}
