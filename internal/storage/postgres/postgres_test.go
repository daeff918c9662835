package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/FranksOps/vetter/internal/storage/storagetest"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if VETTER_TEST_POSTGRES_DSN is set
	dsn := os.Getenv("VETTER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: VETTER_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	// The conformance check expects an empty table.
	pb := b.(*postgresBackend)
	if _, err := pb.pool.Exec(ctx, `TRUNCATE enrichment_runs`); err != nil {
		t.Fatalf("Failed to truncate: %v", err)
	}

	storagetest.Run(t, b)
}
