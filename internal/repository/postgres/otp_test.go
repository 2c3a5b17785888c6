package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/repository"
)

func otpRow(record domain.OTPRecord) *pgxmock.Rows {
	return pgxmock.NewRows(otpColumns).AddRow(
		string(record.Kind),
		record.AccountID,
		string(record.Channel),
		record.Destination,
		record.Code,
		record.ExpiresAt,
		record.AttemptCount,
		record.ResendCount,
		record.Locked,
		record.CreatedAt,
		record.UpdatedAt,
	)
}

func TestOTPStore_UpsertReturnsRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewOTPStore(mock)
	now := time.Now().UTC()
	issue := domain.OTPIssue{
		Key:         domain.OTPKey{Kind: domain.AccountKindCustomer, AccountID: "acc-1", Channel: domain.ChannelEmail},
		Destination: "a@x.com",
		Code:        "123456",
		IssuedAt:    now,
		ExpiresAt:   now.Add(5 * time.Minute),
		MaxResends:  10,
	}

	mock.ExpectQuery(`INSERT INTO auth\.otp_codes .* ON CONFLICT \(account_kind, account_id, channel\) DO UPDATE SET .* WHERE otp_codes\.resend_count < \$12 OR otp_codes\.expires_at <= \$13`).
		WithArgs("customer", "acc-1", "email", "a@x.com", "123456", issue.ExpiresAt, 0, 0, false, now, now, 10, now).
		WillReturnRows(otpRow(domain.OTPRecord{
			Kind: domain.AccountKindCustomer, AccountID: "acc-1", Channel: domain.ChannelEmail,
			Destination: "a@x.com", Code: "123456", ExpiresAt: issue.ExpiresAt, ResendCount: 3,
			CreatedAt: now, UpdatedAt: now,
		}))

	record, err := store.Upsert(context.Background(), issue)
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if record.ResendCount != 3 || record.Code != "123456" {
		t.Fatalf("unexpected record %+v", record)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOTPStore_UpsertResendLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewOTPStore(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO auth\.otp_codes`).
		WithArgs(anyArgs(13)...).
		WillReturnRows(pgxmock.NewRows(otpColumns))

	_, err = store.Upsert(context.Background(), domain.OTPIssue{
		Key:       domain.OTPKey{Kind: domain.AccountKindCustomer, AccountID: "acc-1", Channel: domain.ChannelPhone},
		Code:      "123456",
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	})
	if !errors.Is(err, repository.ErrResendLimit) {
		t.Fatalf("expected ErrResendLimit, got %v", err)
	}
}

func TestOTPStore_AttemptMismatchPersistsCounter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewOTPStore(mock)
	now := time.Now().UTC()
	key := domain.OTPKey{Kind: domain.AccountKindCustomer, AccountID: "acc-1", Channel: domain.ChannelEmail}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM auth\.otp_codes WHERE account_kind = \$1 AND channel = \$2 AND destination = \$3 ORDER BY updated_at DESC LIMIT 1 FOR UPDATE`).
		WithArgs("customer", "email", "a@x.com").
		WillReturnRows(otpRow(domain.OTPRecord{
			Kind: key.Kind, AccountID: key.AccountID, Channel: key.Channel,
			Destination: "a@x.com", Code: "123456", ExpiresAt: now.Add(time.Minute),
			AttemptCount: 4, CreatedAt: now, UpdatedAt: now,
		}))
	mock.ExpectExec(`UPDATE auth\.otp_codes SET attempt_count = \$1, locked = \$2, updated_at = \$3 WHERE account_id = \$4 AND account_kind = \$5 AND channel = \$6`).
		WithArgs(5, false, now, "acc-1", "customer", "email").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	attempt, err := store.Attempt(context.Background(), domain.OTPLookup{Key: key, Destination: "a@x.com"}, "000000", now, 15)
	if err != nil {
		t.Fatalf("Attempt returned error: %v", err)
	}
	if attempt.Outcome != domain.OTPAttemptMismatch || attempt.AttemptCount != 5 || attempt.Key != key {
		t.Fatalf("unexpected attempt %+v", attempt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOTPStore_AttemptNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewOTPStore(mock)
	key := domain.OTPKey{Kind: domain.AccountKindDriver, AccountID: "acc-9", Channel: domain.ChannelPhone}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM auth\.otp_codes WHERE account_id = \$1 AND account_kind = \$2 AND channel = \$3 LIMIT 1 FOR UPDATE`).
		WithArgs("acc-9", "driver", "phone").
		WillReturnRows(pgxmock.NewRows(otpColumns))
	mock.ExpectCommit()
	mock.ExpectRollback()

	attempt, err := store.Attempt(context.Background(), domain.OTPLookup{Key: key}, "123456", time.Now(), 15)
	if err != nil {
		t.Fatalf("Attempt returned error: %v", err)
	}
	if attempt.Outcome != domain.OTPAttemptNotFound {
		t.Fatalf("expected not found, got %s", attempt.Outcome)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOTPStore_DeleteMatchesCode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewOTPStore(mock)
	key := domain.OTPKey{Kind: domain.AccountKindVendor, AccountID: "acc-2", Channel: domain.ChannelPhone}

	mock.ExpectExec(`DELETE FROM auth\.otp_codes WHERE .*account_id = \$1.* AND code = \$4`).
		WithArgs("acc-2", "vendor", "phone", "111111").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := store.Delete(context.Background(), key, "111111"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
