package event

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// MySQL tests run only against a live server: set TEST_MYSQL_DSN to enable
// them, matching the teacher's getTestDSN skip-when-unset convention.
func testMySQLDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skipping MySQL store tests: TEST_MYSQL_DSN not set")
	}
	return dsn
}

func TestMySQLStore_AppendAndList(t *testing.T) {
	dsn := testMySQLDSN(t)
	store, err := NewMySQLStore(dsn)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	e := Event{EventID: "mysql-e1", TaskID: "mysql-t1", Type: TypeIntentReceived, Mode: ModeAnswer, Timestamp: time.Now()}
	require.NoError(t, store.Append(ctx, e))

	got, err := store.List(ctx, "mysql-t1")
	require.NoError(t, err)
	require.NotEmpty(t, got)
	require.Equal(t, "mysql-e1", got[len(got)-1].EventID)
}

func TestMySQLStore_GetReturnsErrNotFound(t *testing.T) {
	dsn := testMySQLDSN(t)
	store, err := NewMySQLStore(dsn)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(context.Background(), "does-not-exist-mysql")
	require.ErrorIs(t, err, ErrNotFound)
}
