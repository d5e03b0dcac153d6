package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sethvargo/go-retry"
)

// DB wraps the Postgres connection pool used for run history
type DB struct {
	*sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS training_runs (
	id            UUID PRIMARY KEY,
	model_name    TEXT NOT NULL,
	epochs        INTEGER NOT NULL,
	batch_size    INTEGER NOT NULL,
	status        TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	metrics_path  TEXT NOT NULL DEFAULT '',
	artifact_uris TEXT[] NOT NULL DEFAULT '{}',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS training_runs_started_at_idx ON training_runs (started_at DESC);

CREATE TABLE IF NOT EXISTS training_run_events (
	id          BIGSERIAL PRIMARY KEY,
	run_id      UUID NOT NULL REFERENCES training_runs (id) ON DELETE CASCADE,
	at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	from_status TEXT,
	to_status   TEXT NOT NULL,
	reason      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS training_run_events_run_id_idx ON training_run_events (run_id, at);
`

// NewDB opens the database and waits for it to accept connections
func NewDB(ctx context.Context, databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	backoff := retry.WithMaxRetries(5, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// EnsureSchema creates the run history tables when they do not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
