package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS enrichment_runs (
	id TEXT PRIMARY KEY,
	topic TEXT NOT NULL,
	country TEXT NOT NULL,
	queries TEXT NOT NULL,
	candidates TEXT NOT NULL,
	result TEXT,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS enrichment_runs_created_at ON enrichment_runs (created_at);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, run *storage.Run) error {
	queriesJSON, err := json.Marshal(run.Queries)
	if err != nil {
		return fmt.Errorf("sqlite: encode queries: %w", err)
	}
	candidatesJSON, err := json.Marshal(run.Candidates)
	if err != nil {
		return fmt.Errorf("sqlite: encode candidates: %w", err)
	}
	var result sql.NullString
	if run.Result != nil {
		data, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("sqlite: encode result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}

	query := `
	INSERT INTO enrichment_runs (
		id, topic, country, queries, candidates, result, duration_ms, created_at, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = b.db.ExecContext(ctx, query,
		run.ID,
		run.Topic,
		run.Country,
		string(queriesJSON),
		string(candidatesJSON),
		result,
		run.Duration.Milliseconds(),
		run.CreatedAt.UTC(),
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert run: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Run, error) {
	query := `SELECT id, topic, country, queries, candidates, result, duration_ms, created_at, error FROM enrichment_runs WHERE 1=1`
	args := []any{}

	if filter.Topic != "" {
		query += ` AND topic = ? COLLATE NOCASE`
		args = append(args, filter.Topic)
	}
	if filter.Country != "" {
		query += ` AND country = ? COLLATE NOCASE`
		args = append(args, filter.Country)
	}
	if filter.Failed != nil {
		if *filter.Failed {
			query += ` AND error <> ''`
		} else {
			query += ` AND error = ''`
		}
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC`

	// SQLite only accepts OFFSET after a LIMIT.
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query runs: %w", err)
	}
	defer rows.Close()

	var runs []*storage.Run
	for rows.Next() {
		var (
			r              storage.Run
			queriesJSON    string
			candidatesJSON string
			result         sql.NullString
			durationMs     int64
		)

		err := rows.Scan(
			&r.ID, &r.Topic, &r.Country, &queriesJSON, &candidatesJSON, &result,
			&durationMs, &r.CreatedAt, &r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan run: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(queriesJSON), &r.Queries); err != nil {
			return nil, fmt.Errorf("sqlite: decode queries of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(candidatesJSON), &r.Candidates); err != nil {
			return nil, fmt.Errorf("sqlite: decode candidates of %s: %w", r.ID, err)
		}
		if result.Valid {
			r.Result = &model.AggregateResult{}
			if err := json.Unmarshal([]byte(result.String), r.Result); err != nil {
				return nil, fmt.Errorf("sqlite: decode result of %s: %w", r.ID, err)
			}
		}

		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate runs: %w", err)
	}

	return runs, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
