// Package db provides the optional Postgres delivery archive: a
// connection helper, idempotent schema migration, and the append-only
// store of relayed batches. The archive is an audit surface only; the
// relay's tracking state never persists and is never read back from
// here.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for the given DSN. Callers skip
// the archive entirely when no DSN is configured.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty database dsn")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for the archive table and
// its indices. Safe to run on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS relayed_messages (
			id SERIAL PRIMARY KEY,
			stream_id TEXT NOT NULL,
			destination_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			event_ids TEXT NOT NULL,
			event_count INTEGER NOT NULL DEFAULT 0,
			content TEXT,
			delivered_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relayed_stream_time ON relayed_messages(stream_id, delivered_at)`,
		`CREATE INDEX IF NOT EXISTS idx_relayed_dest_time ON relayed_messages(destination_id, delivered_at)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
