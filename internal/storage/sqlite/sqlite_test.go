package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/FranksOps/vetter/internal/storage/storagetest"
)

func TestSQLiteBackend(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	storagetest.Run(t, b)
}

func TestSQLiteBackend_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	b, err := New(path)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// Schema creation must be idempotent.
	b, err = New(path)
	if err != nil {
		t.Fatalf("Failed to reopen SQLite backend: %v", err)
	}
	defer b.Close()
}
