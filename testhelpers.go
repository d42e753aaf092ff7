package asqlite

import (
	"context"
	"os"
	"testing"
)

// NewTestConn создает соединение с in-memory базой для тестов.
// Соединение автоматически закрывается после завершения теста.
func NewTestConn(t *testing.T) *Conn {
	t.Helper()

	opts := DefaultOptions()
	opts.WALMode = false // WAL не поддерживается для in-memory БД

	conn, err := ConnectWithOptions(context.Background(), ":memory:", opts)
	if err != nil {
		t.Fatalf("Failed to create in-memory test connection: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

// NewTestConnFile создает соединение с файловой базой для тестов.
// База создается во временной директории и удаляется после теста.
func NewTestConnFile(t *testing.T) (*Conn, string) {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), "test_db_*.sqlite")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	path := tmpFile.Name()
	_ = tmpFile.Close()

	conn, err := Connect(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to create file test connection: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn, path
}
