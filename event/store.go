package event

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested event or checkpoint reference
// does not exist in the store.
var ErrNotFound = errors.New("event: not found")

// Store is the append-only journal persistence contract (spec §4.1, §6).
// Append must return only after the event is durably recorded; the Bus
// never fans out an event that Append has not yet confirmed.
//
// Implementations: MemoryStore (tests), SQLiteStore, MySQLStore — mirroring
// the teacher's multi-backend Store[S] split between memory/sqlite/mysql.
type Store interface {
	// Append durably records e. The store must assign no defaults; the
	// caller (Bus) is responsible for EventID/Timestamp population so
	// that append order always equals temporal order (spec §3).
	Append(ctx context.Context, e Event) error

	// List returns events for a task in insertion order. Insertion order
	// equals temporal order (spec §3 invariant).
	List(ctx context.Context, taskID string) ([]Event, error)

	// ListByRun returns events correlated by run_id (stored under
	// payload["run_id"]), in insertion order, giving the total order
	// compatible with append order required by spec §5.
	ListByRun(ctx context.Context, runID string) ([]Event, error)

	// Get returns a single event by id, or ErrNotFound.
	Get(ctx context.Context, eventID string) (Event, error)

	// Close releases any resources held by the store (db handles, files).
	Close() error
}
