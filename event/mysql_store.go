package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB-backed Store for production deployments
// needing a shared, durable journal across worker processes, grounded on
// the teacher's graph/store/mysql.go connection-pool and DSN conventions.
//
// DSN format: [username[:password]@][protocol[(address)]]/dbname[?params].
// Credentials are never hardcoded; pass them through the DSN from the
// environment.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a MySQL connection and ensures the events schema
// exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("event: open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("event: ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			event_id VARCHAR(128) NOT NULL UNIQUE,
			task_id VARCHAR(128) NOT NULL,
			run_id VARCHAR(128) NOT NULL DEFAULT '',
			timestamp DATETIME(6) NOT NULL,
			type VARCHAR(64) NOT NULL,
			mode VARCHAR(16) NOT NULL,
			stage VARCHAR(16) NOT NULL,
			payload JSON NOT NULL,
			evidence_ids JSON NOT NULL,
			parent_event_id VARCHAR(128) NOT NULL DEFAULT '',
			INDEX idx_events_task (task_id),
			INDEX idx_events_run (run_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("event: create events table: %w", err)
	}
	return nil
}

func (s *MySQLStore) Append(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("event: marshal payload: %w", err)
	}
	evidence, err := json.Marshal(e.EvidenceIDs)
	if err != nil {
		return fmt.Errorf("event: marshal evidence_ids: %w", err)
	}
	runID, _ := e.Payload["run_id"].(string)

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

func (s *MySQLStore) List(ctx context.Context, taskID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, task_id, timestamp, type, mode, stage, payload, evidence_ids, parent_event_id
		FROM events WHERE task_id = ? ORDER BY seq ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("event: list: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *MySQLStore) ListByRun(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, task_id, timestamp, type, mode, stage, payload, evidence_ids, parent_event_id
		FROM events WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("event: list by run: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *MySQLStore) Get(ctx context.Context, eventID string) (Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, task_id, timestamp, type, mode, stage, payload, evidence_ids, parent_event_id
		FROM events WHERE event_id = ?`, eventID)
	e, err := scanEventRow(row)
	if err == sql.ErrNoRows {
		return Event{}, ErrNotFound
	}
	return e, err
}

func (s *MySQLStore) Close() error { return s.db.Close() }
