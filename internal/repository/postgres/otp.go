package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/repository"
)

var otpColumns = []string{
	"account_kind",
	"account_id",
	"channel",
	"destination",
	"code",
	"expires_at",
	"attempt_count",
	"resend_count",
	"locked",
	"created_at",
	"updated_at",
}

// OTPStore implements port.OTPStore on auth.otp_codes, one row per (kind, account, channel).
type OTPStore struct {
	db      txExecutor
	builder squirrel.StatementBuilderType
}

func NewOTPStore(db txExecutor) *OTPStore {
	return &OTPStore{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Upsert inserts the record or replaces the code in place with a single conditional write.
// The conflict branch only fires while resends remain or the current code has expired.
func (s *OTPStore) Upsert(ctx context.Context, issue domain.OTPIssue) (*domain.OTPRecord, error) {
	stmt, args, err := s.builder.Insert("auth.otp_codes").
		Columns(otpColumns...).
		Values(
			string(issue.Key.Kind),
			issue.Key.AccountID,
			string(issue.Key.Channel),
			issue.Destination,
			issue.Code,
			issue.ExpiresAt,
			0,
			0,
			false,
			issue.IssuedAt,
			issue.IssuedAt,
		).
		Suffix(`ON CONFLICT (account_kind, account_id, channel) DO UPDATE SET
			destination = EXCLUDED.destination,
			code = EXCLUDED.code,
			expires_at = EXCLUDED.expires_at,
			attempt_count = 0,
			resend_count = otp_codes.resend_count + 1,
			locked = FALSE,
			updated_at = EXCLUDED.updated_at
		WHERE otp_codes.resend_count < ? OR otp_codes.expires_at <= ?
		RETURNING `+strings.Join(otpColumns, ", "), issue.MaxResends, issue.IssuedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert otp sql: %w", err)
	}

	record, err := scanOTP(s.db.QueryRow(ctx, stmt, args...))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, repository.ErrResendLimit
	}
	if err != nil {
		return nil, fmt.Errorf("upsert otp: %w", err)
	}
	return record, nil
}

// Attempt locks the located row, applies the attempt and persists the counters in one transaction.
func (s *OTPStore) Attempt(ctx context.Context, lookup domain.OTPLookup, code string, now time.Time, maxAttempts int) (domain.OTPAttempt, error) {
	result := domain.OTPAttempt{Outcome: domain.OTPAttemptNotFound, Key: lookup.Key}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		query := s.builder.Select(otpColumns...).From("auth.otp_codes")
		if lookup.Destination != "" {
			query = query.Where(squirrel.Eq{
				"account_kind": string(lookup.Key.Kind),
				"channel":      string(lookup.Key.Channel),
				"destination":  lookup.Destination,
			}).OrderBy("updated_at DESC")
		} else {
			query = query.Where(keyPredicate(lookup.Key))
		}

		stmt, args, err := query.Limit(1).Suffix("FOR UPDATE").ToSql()
		if err != nil {
			return fmt.Errorf("build select otp sql: %w", err)
		}

		record, err := scanOTP(tx.QueryRow(ctx, stmt, args...))
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		result.Key = record.Key()
		result.Outcome = record.Attempt(code, now, maxAttempts)
		result.AttemptCount = record.AttemptCount
		if !result.Outcome.Consumed() {
			return nil
		}

		update, updateArgs, err := s.builder.Update("auth.otp_codes").
			Set("attempt_count", record.AttemptCount).
			Set("locked", record.Locked).
			Set("updated_at", record.UpdatedAt).
			Where(keyPredicate(result.Key)).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update otp sql: %w", err)
		}
		if _, err := tx.Exec(ctx, update, updateArgs...); err != nil {
			return fmt.Errorf("update otp attempts: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.OTPAttempt{}, fmt.Errorf("attempt otp: %w", err)
	}

	return result, nil
}

func (s *OTPStore) Get(ctx context.Context, key domain.OTPKey) (*domain.OTPRecord, error) {
	stmt, args, err := s.builder.Select(otpColumns...).
		From("auth.otp_codes").
		Where(keyPredicate(key)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select otp sql: %w", err)
	}
	return scanOTP(s.db.QueryRow(ctx, stmt, args...))
}

func (s *OTPStore) Delete(ctx context.Context, key domain.OTPKey, code string) error {
	stmt, args, err := s.builder.Delete("auth.otp_codes").
		Where(keyPredicate(key)).
		Where(squirrel.Eq{"code": code}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete otp sql: %w", err)
	}
	if _, err := s.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}

func keyPredicate(key domain.OTPKey) squirrel.Eq {
	return squirrel.Eq{
		"account_kind": string(key.Kind),
		"account_id":   key.AccountID,
		"channel":      string(key.Channel),
	}
}

func scanOTP(row pgx.Row) (*domain.OTPRecord, error) {
	var (
		record  domain.OTPRecord
		kind    string
		channel string
	)
	if err := row.Scan(
		&kind,
		&record.AccountID,
		&channel,
		&record.Destination,
		&record.Code,
		&record.ExpiresAt,
		&record.AttemptCount,
		&record.ResendCount,
		&record.Locked,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan otp: %w", err)
	}
	record.Kind = domain.AccountKind(kind)
	record.Channel = domain.Channel(channel)
	return &record, nil
}
