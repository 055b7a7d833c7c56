package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"

	"signbridge/internal/platform/config"
)

// Schema is applied at startup; statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id                   TEXT PRIMARY KEY,
	email                TEXT NOT NULL,
	name                 TEXT NOT NULL DEFAULT '',
	role                 TEXT NOT NULL,
	roll_number          TEXT NOT NULL UNIQUE CHECK (roll_number ~ '^[1-9][0-9]{5}$'),
	email_confirmed      BOOLEAN NOT NULL DEFAULT FALSE,
	confirmation_sent_at TIMESTAMPTZ NULL,
	email_confirmed_at   TIMESTAMPTZ NULL,
	attributes           JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS profiles_unconfirmed_sent_at
	ON profiles (confirmation_sent_at) WHERE email_confirmed = FALSE;
`

// Open connects with the pgx stdlib driver and applies Schema.
// Returns nil if the URL is empty (Postgres not configured).
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
