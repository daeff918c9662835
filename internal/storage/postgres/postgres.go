package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS enrichment_runs (
	id TEXT PRIMARY KEY,
	topic TEXT NOT NULL,
	country TEXT NOT NULL,
	queries JSONB NOT NULL,
	candidates JSONB NOT NULL,
	result JSONB,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS enrichment_runs_created_at ON enrichment_runs (created_at DESC);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	_, err = pool.Exec(ctx, schema)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, run *storage.Run) error {
	queriesJSON, err := json.Marshal(run.Queries)
	if err != nil {
		return fmt.Errorf("postgres: encode queries: %w", err)
	}
	candidatesJSON, err := json.Marshal(run.Candidates)
	if err != nil {
		return fmt.Errorf("postgres: encode candidates: %w", err)
	}
	var resultJSON []byte
	if run.Result != nil {
		if resultJSON, err = json.Marshal(run.Result); err != nil {
			return fmt.Errorf("postgres: encode result: %w", err)
		}
	}

	query := `
	INSERT INTO enrichment_runs (
		id, topic, country, queries, candidates, result, duration_ms, created_at, error
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = b.pool.Exec(ctx, query,
		run.ID,
		run.Topic,
		run.Country,
		queriesJSON,
		candidatesJSON,
		resultJSON,
		run.Duration.Milliseconds(),
		run.CreatedAt,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert run: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Run, error) {
	query := `SELECT id, topic, country, queries, candidates, result, duration_ms, created_at, error FROM enrichment_runs WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Topic != "" {
		query += fmt.Sprintf(` AND LOWER(topic) = LOWER($%d)`, paramCount)
		args = append(args, filter.Topic)
		paramCount++
	}
	if filter.Country != "" {
		query += fmt.Sprintf(` AND LOWER(country) = LOWER($%d)`, paramCount)
		args = append(args, filter.Country)
		paramCount++
	}
	if filter.Failed != nil {
		if *filter.Failed {
			query += ` AND error <> ''`
		} else {
			query += ` AND error = ''`
		}
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query runs: %w", err)
	}
	defer rows.Close()

	var runs []*storage.Run
	for rows.Next() {
		var (
			r              storage.Run
			queriesJSON    []byte
			candidatesJSON []byte
			resultJSON     []byte
			durationMs     int64
		)

		err := rows.Scan(
			&r.ID, &r.Topic, &r.Country, &queriesJSON, &candidatesJSON, &resultJSON,
			&durationMs, &r.CreatedAt, &r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal(queriesJSON, &r.Queries); err != nil {
			return nil, fmt.Errorf("postgres: decode queries of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal(candidatesJSON, &r.Candidates); err != nil {
			return nil, fmt.Errorf("postgres: decode candidates of %s: %w", r.ID, err)
		}
		if resultJSON != nil {
			r.Result = &model.AggregateResult{}
			if err := json.Unmarshal(resultJSON, r.Result); err != nil {
				return nil, fmt.Errorf("postgres: decode result of %s: %w", r.ID, err)
			}
		}

		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate runs: %w", err)
	}

	return runs, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
