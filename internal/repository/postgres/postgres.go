package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txExecutor is a pgExecutor able to open transactions; satisfied by *pgxpool.Pool and pgxmock.
type txExecutor interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store wraps pgx pool for repositories.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an established pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the auth schema objects when missing.
func (s *Store) Migrate(ctx context.Context) error {
	return migrate(ctx, s.pool)
}

// Ping verifies connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// Close releases resources associated with the store.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func migrate(ctx context.Context, exec pgExecutor) error {
	for i, stmt := range schemaStatements {
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS auth`,
	`CREATE TABLE IF NOT EXISTS auth.accounts (
		id                TEXT        NOT NULL,
		kind              TEXT        NOT NULL,
		name              TEXT        NOT NULL,
		email             TEXT        NOT NULL,
		phone             TEXT        NOT NULL,
		password_hash     TEXT,
		email_verified    BOOLEAN     NOT NULL DEFAULT FALSE,
		phone_verified    BOOLEAN     NOT NULL DEFAULT FALSE,
		confirmed_account BOOLEAN     NOT NULL DEFAULT FALSE,
		active            BOOLEAN     NOT NULL DEFAULT TRUE,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (kind, id),
		CONSTRAINT accounts_kind_email_key UNIQUE (kind, email),
		CONSTRAINT accounts_kind_phone_key UNIQUE (kind, phone)
	)`,
	`CREATE TABLE IF NOT EXISTS auth.refresh_tokens (
		account_kind TEXT        NOT NULL,
		account_id   TEXT        NOT NULL,
		token        TEXT        NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		expires_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS refresh_tokens_account_idx ON auth.refresh_tokens (account_kind, account_id)`,
	`CREATE TABLE IF NOT EXISTS auth.otp_codes (
		account_kind  TEXT        NOT NULL,
		account_id    TEXT        NOT NULL,
		channel       TEXT        NOT NULL,
		destination   TEXT        NOT NULL,
		code          TEXT        NOT NULL,
		expires_at    TIMESTAMPTZ NOT NULL,
		attempt_count INTEGER     NOT NULL DEFAULT 0,
		resend_count  INTEGER     NOT NULL DEFAULT 0,
		locked        BOOLEAN     NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (account_kind, account_id, channel)
	)`,
	`CREATE INDEX IF NOT EXISTS otp_codes_destination_idx ON auth.otp_codes (account_kind, channel, destination)`,
}
