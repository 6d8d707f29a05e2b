// Package postgres implements the persistence collaborators (users,
// accounts, sessions) on PostgreSQL via database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, errors.New("[postgres.Open] database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "[postgres.Open] open")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[postgres.Open] ping")
	}
	return db, nil
}

// Migrate applies the schema. Idempotent; safe to run at every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email          TEXT NOT NULL UNIQUE,
	username       TEXT NOT NULL DEFAULT '',
	name           TEXT NOT NULL DEFAULT '',
	image          TEXT NOT NULL DEFAULT '',
	email_verified TIMESTAMPTZ,
	roles          TEXT[] NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS accounts (
	id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id             UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	provider            TEXT NOT NULL,
	provider_account_id TEXT NOT NULL DEFAULT '',
	password_hash       TEXT NOT NULL DEFAULT '',
	access_token        TEXT NOT NULL DEFAULT '',
	refresh_token       TEXT NOT NULL DEFAULT '',
	expires_in          BIGINT NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, provider)
);

CREATE TABLE IF NOT EXISTS sessions (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	session_token TEXT NOT NULL UNIQUE,
	user_id       UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "[postgres.Migrate]")
	}
	return nil
}
