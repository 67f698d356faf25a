package event

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_AppendAndList(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	e1 := Event{EventID: "e1", TaskID: "t1", Type: TypeIntentReceived, Mode: ModeAnswer, Stage: StageNone, Timestamp: time.Now()}
	e2 := Event{EventID: "e2", TaskID: "t1", Type: TypeStageChanged, Mode: ModeAnswer, Stage: StagePlan, Timestamp: time.Now()}
	require.NoError(t, store.Append(ctx, e1))
	require.NoError(t, store.Append(ctx, e2))

	got, err := store.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "e1", got[0].EventID)
	require.Equal(t, "e2", got[1].EventID)
}

func TestSQLiteStore_GetReturnsErrNotFound(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(context.Background(), "nonexistent")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListByRun(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	inRun := Event{EventID: "e1", TaskID: "t1", Type: TypeIntentReceived, Mode: ModeAnswer, Payload: map[string]any{"run_id": "r1"}, Timestamp: time.Now()}
	otherRun := Event{EventID: "e2", TaskID: "t1", Type: TypeIntentReceived, Mode: ModeAnswer, Payload: map[string]any{"run_id": "r2"}, Timestamp: time.Now()}
	require.NoError(t, store.Append(ctx, inRun))
	require.NoError(t, store.Append(ctx, otherRun))

	got, err := store.ListByRun(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "e1", got[0].EventID)
}

func TestSQLiteStore_PayloadAndEvidenceRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	e := Event{
		EventID:     "e1",
		TaskID:      "t1",
		Type:        TypeCommandCompleted,
		Mode:        ModeMission,
		Stage:       StageCommand,
		Payload:     map[string]any{"exit_code": float64(0)},
		EvidenceIDs: []string{"ev-1", "ev-2"},
		Timestamp:   time.Now(),
	}
	require.NoError(t, store.Append(ctx, e))

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, float64(0), got.Payload["exit_code"])
	require.Equal(t, []string{"ev-1", "ev-2"}, got.EvidenceIDs)
}

func TestSQLiteStore_CloseIsIdempotent(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
