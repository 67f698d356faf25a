// Package checkpoint implements CheckpointManager (spec §4.10): byte-exact
// snapshot and restore of a declared file-path scope, persisted so a
// freshly-constructed manager in a new process can restore without the
// instance that created the checkpoint.
//
// Generalized from the teacher's graph.Checkpoint[S] (a generic snapshot
// of accumulated state, frontier, and recorded I/O keyed by an
// idempotency hash) into a snapshot of file bytes keyed by an explicit
// checkpoint id — the "durable-before-mutation, restorable exactly"
// shape survives the move from in-memory state to on-disk file content.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	agentcoreerrors "github.com/kalyank1144/agentcore/errors"
	"github.com/kalyank1144/agentcore/event"
	"github.com/kalyank1144/agentcore/internal/idgen"
	"github.com/kalyank1144/agentcore/metrics"
)

// RestoreMethod is how a checkpoint restores its scope. "snapshot" is the
// only method spec.md defines; the field exists so a later restore
// strategy (e.g. diff-based) can be added without breaking the format.
type RestoreMethod string

const (
	RestoreSnapshot RestoreMethod = "snapshot"
)

// FileSnapshot is one path's captured content (spec §3 Checkpoint:
// "mapping from path → exact bytes at capture time, including
// 'file-was-absent' sentinel").
type FileSnapshot struct {
	Present bool   `json:"present"`
	Bytes   []byte `json:"bytes,omitempty"`
}

// Checkpoint is the full persisted record for one snapshot (spec §3).
type Checkpoint struct {
	CheckpointID  string                  `json:"checkpoint_id"`
	TaskID        string                  `json:"task_id"`
	Description   string                  `json:"description"`
	Scope         []string                `json:"scope"`
	RestoreMethod RestoreMethod           `json:"restore_method"`
	Snapshot      map[string]FileSnapshot `json:"snapshot"`
	CreatedAt     time.Time               `json:"created_at"`
}

// indexEntry is one row of the on-disk index file (spec §7 "Checkpoint
// files: an index file mapping checkpoint_id → scope + method").
type indexEntry struct {
	CheckpointID  string        `json:"checkpoint_id"`
	TaskID        string        `json:"task_id"`
	Description   string        `json:"description"`
	Scope         []string      `json:"scope"`
	RestoreMethod RestoreMethod `json:"restore_method"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Manager is CheckpointManager (spec §4.10): it owns on-disk snapshot
// files under Dir, an index file, and the currently-active checkpoint id
// for the task it serves.
type Manager struct {
	Dir      string
	Bus      *event.Bus
	IDGen    idgen.Generator
	Metrics  *metrics.Metrics
	activeID string
}

// NewManager constructs a Manager rooted at dir, creating dir if absent.
func NewManager(dir string, bus *event.Bus, idGen idgen.Generator) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "create checkpoint directory", err)
	}
	return &Manager{Dir: dir, Bus: bus, IDGen: idGen}, nil
}

func (m *Manager) indexPath() string { return filepath.Join(m.Dir, "index.json") }

func (m *Manager) checkpointPath(id string) string {
	return filepath.Join(m.Dir, id+".json")
}

// CreateCheckpoint snapshots every path in scope, persists the snapshot
// and an index row, emits checkpoint_created, and marks the new
// checkpoint active (spec §4.10 createCheckpoint steps 1-5).
func (m *Manager) CreateCheckpoint(ctx context.Context, taskID string, mode event.Mode, stage event.Stage, description string, scope []string) (Checkpoint, error) {
	snapshot := make(map[string]FileSnapshot, len(scope))
	for _, path := range scope {
		fs, err := captureFile(path)
		if err != nil {
			return Checkpoint{}, err
		}
		snapshot[path] = fs
	}

	cp := Checkpoint{
		CheckpointID:  m.IDGen.NewCheckpointID(),
		TaskID:        taskID,
		Description:   description,
		Scope:         scope,
		RestoreMethod: RestoreSnapshot,
		Snapshot:      snapshot,
		CreatedAt:     m.IDGen.Now(),
	}

	if err := m.writeCheckpointFile(cp); err != nil {
		return Checkpoint{}, err
	}
	if err := m.appendIndex(indexEntry{
		CheckpointID:  cp.CheckpointID,
		TaskID:        cp.TaskID,
		Description:   cp.Description,
		Scope:         cp.Scope,
		RestoreMethod: cp.RestoreMethod,
		CreatedAt:     cp.CreatedAt,
	}); err != nil {
		return Checkpoint{}, err
	}

	if m.Bus != nil {
		if _, err := m.Bus.Publish(ctx, event.Event{
			TaskID: taskID,
			Type:   event.TypeCheckpointCreated,
			Mode:   mode,
			Stage:  stage,
			Payload: map[string]any{
				"checkpoint_id": cp.CheckpointID,
				"description":   description,
				"scope":         scope,
			},
		}); err != nil {
			return Checkpoint{}, agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "emit checkpoint_created", err)
		}
	}

	m.activeID = cp.CheckpointID
	m.Metrics.RecordCheckpointCreated(taskID)
	return cp, nil
}

// RestoreCheckpoint restores every path in the checkpoint's scope to its
// captured bytes, character-exact and idempotent, then emits
// checkpoint_restored (spec §4.10 restoreCheckpoint). Works from a
// freshly constructed Manager that has never called CreateCheckpoint in
// this process: it reads the checkpoint's own snapshot file under Dir
// directly and does not consult the index.
func (m *Manager) RestoreCheckpoint(ctx context.Context, taskID string, mode event.Mode, stage event.Stage, checkpointID string) error {
	cp, err := m.loadCheckpointFile(checkpointID)
	if err != nil {
		m.Metrics.RecordRestore(taskID, false)
		return err
	}
	m.Metrics.RecordRestore(taskID, true)

	for path, fs := range cp.Snapshot {
		if err := restoreFile(path, fs); err != nil {
			return err
		}
	}

	if m.Bus != nil {
		if _, err := m.Bus.Publish(ctx, event.Event{
			TaskID:  taskID,
			Type:    event.TypeCheckpointRestored,
			Mode:    mode,
			Stage:   stage,
			Payload: map[string]any{"checkpoint_id": checkpointID},
		}); err != nil {
			return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "emit checkpoint_restored", err)
		}
	}

	m.activeID = checkpointID
	return nil
}

// ActiveCheckpointID returns the id set by the most recent
// CreateCheckpoint or RestoreCheckpoint call in this Manager instance.
func (m *Manager) ActiveCheckpointID() string { return m.activeID }

// LoadCheckpointMetadata replays the index file, returning every known
// checkpoint's metadata (without its snapshot bytes) so a fresh Manager
// can answer "what checkpoints exist" before any restore (spec §7
// "Restoration from a fresh manager must replay the index before any
// restore").
func (m *Manager) LoadCheckpointMetadata() ([]Checkpoint, error) {
	entries, err := m.readIndex()
	if err != nil {
		return nil, err
	}
	out := make([]Checkpoint, 0, len(entries))
	for _, e := range entries {
		out = append(out, Checkpoint{
			CheckpointID:  e.CheckpointID,
			TaskID:        e.TaskID,
			Description:   e.Description,
			Scope:         e.Scope,
			RestoreMethod: e.RestoreMethod,
			CreatedAt:     e.CreatedAt,
		})
	}
	return out, nil
}

func (m *Manager) writeCheckpointFile(cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "marshal checkpoint", err)
	}
	if err := os.WriteFile(m.checkpointPath(cp.CheckpointID), data, 0o644); err != nil {
		return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "write checkpoint file", err)
	}
	return nil
}

func (m *Manager) loadCheckpointFile(id string) (Checkpoint, error) {
	data, err := os.ReadFile(m.checkpointPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, agentcoreerrors.New(agentcoreerrors.KindValidationError, "checkpoint_not_found: "+id)
		}
		return Checkpoint{}, agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "read checkpoint file", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "unmarshal checkpoint file", err)
	}
	return cp, nil
}

// appendIndex appends one row to the index file, tolerant of a
// partially-written prior row: each line is a standalone JSON object, so
// a crash mid-write only corrupts the last (unreadable) line rather than
// the whole file (spec §7 "length-prefixed records for partial-write
// tolerance" — realized here as one-JSON-object-per-line instead of
// explicit length prefixes, since the result is equally resumable and
// stays human-readable).
func (m *Manager) appendIndex(e indexEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "marshal index entry", err)
	}
	f, err := os.OpenFile(m.indexPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "open index file", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "append index entry", err)
	}
	return nil
}

func (m *Manager) readIndex() ([]indexEntry, error) {
	data, err := os.ReadFile(m.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "read index file", err)
	}
	var entries []indexEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var e indexEntry
		if err := dec.Decode(&e); err != nil {
			break
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func captureFile(path string) (FileSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileSnapshot{Present: false}, nil
		}
		return FileSnapshot{}, agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "capture file "+path, err)
	}
	return FileSnapshot{Present: true, Bytes: data}, nil
}

func restoreFile(path string, fs FileSnapshot) error {
	if !fs.Present {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "remove file "+path, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "create parent dir for "+path, err)
	}
	if err := os.WriteFile(path, fs.Bytes, 0o644); err != nil {
		return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "restore file "+path, err)
	}
	return nil
}

// MarshalBase64 is exposed for callers that need to hand a snapshot's
// bytes to a transport that cannot carry raw binary (spec §7's JSON
// checkpoint format: "bytes: base64|text"); json.Marshal already
// base64-encodes a []byte field, so this exists only for callers
// constructing the wire format outside of Go's own json package.
func (fs FileSnapshot) MarshalBase64() string {
	return base64.StdEncoding.EncodeToString(fs.Bytes)
}
