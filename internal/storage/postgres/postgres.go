// Package postgres mirrors results into a PostgreSQL table through a pgx
// connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/firstlink/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS query_results (
	run_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	query TEXT NOT NULL,
	url TEXT NOT NULL,
	kind TEXT NOT NULL,
	reason TEXT NOT NULL,
	engine TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, idx)
);
CREATE INDEX IF NOT EXISTS query_results_created_at ON query_results (created_at);
`

const upsert = `
INSERT INTO query_results (run_id, idx, query, url, kind, reason, engine, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (run_id, idx) DO UPDATE SET
	query = EXCLUDED.query,
	url = EXCLUDED.url,
	kind = EXCLUDED.kind,
	reason = EXCLUDED.reason,
	engine = EXCLUDED.engine,
	duration_ms = EXCLUDED.duration_ms,
	created_at = EXCLUDED.created_at
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

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

// Save upserts the results in a single batch.
func (b *postgresBackend) Save(ctx context.Context, results ...*storage.Result) error {
	if len(results) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range results {
		batch.Queue(upsert,
			r.RunID,
			r.Index,
			r.Query,
			r.URL,
			r.Kind,
			r.Reason,
			r.Engine,
			r.Duration.Milliseconds(),
			r.CreatedAt,
		)
	}

	if err := b.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: save %d results: %w", len(results), err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Result, error) {
	query := `SELECT run_id, idx, query, url, kind, reason, engine, duration_ms, created_at FROM query_results WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, paramCount)
		args = append(args, filter.RunID)
		paramCount++
	}
	if filter.Query != "" {
		query += fmt.Sprintf(` AND query = $%d`, paramCount)
		args = append(args, filter.Query)
		paramCount++
	}
	if filter.Found != nil {
		if *filter.Found {
			query += ` AND url <> ''`
		} else {
			query += ` AND url = ''`
		}
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at, run_id, idx`

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
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var results []*storage.Result
	for rows.Next() {
		var r storage.Result
		var durationMs int64

		err := rows.Scan(
			&r.RunID, &r.Index, &r.Query, &r.URL, &r.Kind, &r.Reason,
			&r.Engine, &durationMs, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
