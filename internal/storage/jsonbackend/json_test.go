package jsonbackend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/vetter/internal/storage"
	"github.com/FranksOps/vetter/internal/storage/storagetest"
)

func TestJSONBackend(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "runs.ndjson"))
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	defer b.Close()

	storagetest.Run(t, b)
}

func TestJSONBackend_OneLinePerRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.ndjson")
	b, err := New(path)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := b.Save(ctx, storagetest.SampleRun(id, "widgets", time.Now())); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"domain_age":{"https://bolt.io":"Error: unexpected status 500"`) {
		t.Errorf("record lacks the aggregate result shape: %s", lines[0])
	}

	// Appends still land after a query has read the file.
	if _, err := b.Query(ctx, storage.Filter{}); err != nil {
		t.Fatal(err)
	}
	if err := b.Save(ctx, storagetest.SampleRun("c", "widgets", time.Now())); err != nil {
		t.Fatal(err)
	}
	runs, _ := b.Query(ctx, storage.Filter{})
	if len(runs) != 3 {
		t.Errorf("expected 3 runs, got %d", len(runs))
	}
}

func TestJSONBackend_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.ndjson")
	ctx := context.Background()

	b, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Save(ctx, storagetest.SampleRun("a", "widgets", time.Now())); err != nil {
		t.Fatal(err)
	}
	b.Close()

	b, err = New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	runs, err := b.Query(ctx, storage.Filter{Topic: "WIDGETS"})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "a" {
		t.Errorf("expected run a after reopening, got %v", runs)
	}
}

func TestJSONBackend_CorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.ndjson")
	if err := os.WriteFile(path, []byte("{not json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, err := b.Query(context.Background(), storage.Filter{}); err == nil {
		t.Error("expected a decode error")
	}
}
