// Package sqlite mirrors results into a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FranksOps/firstlink/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
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
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, idx)
);
CREATE INDEX IF NOT EXISTS query_results_created_at ON query_results (created_at);
`

const columns = `run_id, idx, query, url, kind, reason, engine, duration_ms, created_at`

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

func (b *sqliteBackend) Save(ctx context.Context, results ...*storage.Result) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO query_results (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		_, err = stmt.ExecContext(ctx,
			r.RunID,
			r.Index,
			r.Query,
			r.URL,
			r.Kind,
			r.Reason,
			r.Engine,
			r.Duration.Milliseconds(),
			r.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert result %d: %w", r.Index, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Result, error) {
	query := `SELECT ` + columns + ` FROM query_results WHERE 1=1`
	args := []any{}

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Query != "" {
		query += ` AND query = ?`
		args = append(args, filter.Query)
	}
	if filter.Found != nil {
		if *filter.Found {
			query += ` AND url <> ''`
		} else {
			query += ` AND url = ''`
		}
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at, run_id, idx`

	// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
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
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
