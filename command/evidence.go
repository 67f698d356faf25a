package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	agentcoreerrors "github.com/kalyank1144/agentcore/errors"
)

// EvidenceWriter persists a command's stdout/stderr transcript and
// returns an id CommandPhase attaches to the command_completed event's
// evidence_ids (spec §4.13 "writes a transcript as evidence").
type EvidenceWriter interface {
	Write(ctx context.Context, taskID, commandID, transcript string) (evidenceID string, err error)
}

// FileEvidenceWriter writes one transcript file per command under Dir,
// the same plain-file persistence checkpoint.Manager uses for snapshots
// rather than a database, since evidence here is opaque text, not a
// queryable record.
type FileEvidenceWriter struct {
	Dir string
	Now func() time.Time
}

func (w *FileEvidenceWriter) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *FileEvidenceWriter) Write(ctx context.Context, taskID, commandID, transcript string) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "create evidence directory", err)
	}
	id := fmt.Sprintf("ev_%s_%d", commandID, w.now().UnixNano())
	path := filepath.Join(w.Dir, id+".txt")
	if err := os.WriteFile(path, []byte(transcript), 0o644); err != nil {
		return "", agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "write evidence transcript", err)
	}
	return id, nil
}
