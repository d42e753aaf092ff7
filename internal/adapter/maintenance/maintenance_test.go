package maintenance

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asqlite"
)

func newTestRunner(t *testing.T) (*Runner, *asqlite.Conn) {
	t.Helper()

	conn := asqlite.NewTestConn(t)
	return New(conn, slog.New(slog.DiscardHandler)), conn
}

func TestCheckpoint(t *testing.T) {
	r, conn := newTestRunner(t)

	_, err := conn.Execute(t.Context(), "CREATE TABLE items (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	_, err = conn.Execute(t.Context(), "INSERT INTO items DEFAULT VALUES")
	require.NoError(t, err)

	require.NoError(t, r.Checkpoint(t.Context()))

	// Данные остаются на месте после checkpoint.
	cur, err := conn.Execute(t.Context(), "SELECT COUNT(*) FROM items")
	require.NoError(t, err)
	row, err := cur.FetchOne(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.Index(0))
}

func TestCheckpoint_WALFile(t *testing.T) {
	conn, _ := asqlite.NewTestConnFile(t)
	r := New(conn, slog.New(slog.DiscardHandler))

	_, err := conn.Execute(t.Context(), "CREATE TABLE items (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	require.NoError(t, r.Checkpoint(t.Context()))
}

func TestSchedule(t *testing.T) {
	r, _ := newTestRunner(t)

	require.NoError(t, r.Schedule("@every 15m"))
	r.Start()
	r.Stop()
}

func TestSchedule_InvalidSpec(t *testing.T) {
	r, _ := newTestRunner(t)

	err := r.Schedule("not a schedule")
	assert.Error(t, err)
}

func TestCheckpoint_ClosedConnection(t *testing.T) {
	r, conn := newTestRunner(t)

	require.NoError(t, conn.Close())

	err := r.Checkpoint(t.Context())
	assert.ErrorIs(t, err, asqlite.ErrConnClosed)
}
