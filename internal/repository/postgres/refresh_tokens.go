package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/repository"
)

// RefreshTokenStore keeps refresh tokens one row per token so concurrent logins never
// overwrite each other.
type RefreshTokenStore struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewRefreshTokenStore(exec pgExecutor) *RefreshTokenStore {
	return &RefreshTokenStore{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append prunes expired rows of the account and inserts the entry in a single statement.
func (s *RefreshTokenStore) Append(ctx context.Context, kind domain.AccountKind, accountID string, entry domain.RefreshTokenEntry, now time.Time) error {
	stmt, args, err := s.builder.Insert("auth.refresh_tokens").
		Prefix(
			"WITH pruned AS (DELETE FROM auth.refresh_tokens WHERE account_kind = ? AND account_id = ? AND expires_at <= ?)",
			string(kind), accountID, now,
		).
		Columns("account_kind", "account_id", "token", "created_at", "expires_at").
		Values(string(kind), accountID, entry.Token, entry.CreatedAt, entry.ExpiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build append refresh token sql: %w", err)
	}

	if _, err := s.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("append refresh token: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) FindLive(ctx context.Context, kind domain.AccountKind, accountID, token string, now time.Time) (*domain.RefreshTokenEntry, error) {
	stmt, args, err := s.builder.Select("token", "created_at", "expires_at").
		From("auth.refresh_tokens").
		Where(squirrel.Eq{"account_kind": string(kind), "account_id": accountID, "token": token}).
		Where(squirrel.Gt{"expires_at": now}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find refresh token sql: %w", err)
	}

	var entry domain.RefreshTokenEntry
	if err := s.exec.QueryRow(ctx, stmt, args...).Scan(&entry.Token, &entry.CreatedAt, &entry.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &entry, nil
}

// Revoke deletes every row carrying token and reports how many were removed.
func (s *RefreshTokenStore) Revoke(ctx context.Context, kind domain.AccountKind, accountID, token string) (int, error) {
	stmt, args, err := s.builder.Delete("auth.refresh_tokens").
		Where(squirrel.Eq{"account_kind": string(kind), "account_id": accountID, "token": token}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke refresh token sql: %w", err)
	}

	tag, err := s.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh token: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *RefreshTokenStore) List(ctx context.Context, kind domain.AccountKind, accountID string) ([]domain.RefreshTokenEntry, error) {
	stmt, args, err := s.builder.Select("token", "created_at", "expires_at").
		From("auth.refresh_tokens").
		Where(squirrel.Eq{"account_kind": string(kind), "account_id": accountID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list refresh tokens sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query refresh tokens: %w", err)
	}
	defer rows.Close()

	var entries []domain.RefreshTokenEntry
	for rows.Next() {
		var entry domain.RefreshTokenEntry
		if err := rows.Scan(&entry.Token, &entry.CreatedAt, &entry.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh tokens: %w", err)
	}
	return entries, nil
}
