package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

var testKey = domain.OTPKey{Kind: domain.AccountKindCustomer, AccountID: "acc-1", Channel: domain.ChannelEmail}

func issueAt(now time.Time, code string) domain.OTPIssue {
	return domain.OTPIssue{
		Key:         testKey,
		Destination: "a@x.com",
		Code:        code,
		IssuedAt:    now,
		ExpiresAt:   now.Add(5 * time.Minute),
		MaxResends:  2,
	}
}

func TestOTPStore_UpsertCreatesAndReplaces(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewOTPStore(client, "otp", time.Hour)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	first, err := store.Upsert(ctx, issueAt(now, "111111"))
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if first.ResendCount != 0 || !first.CreatedAt.Equal(now) {
		t.Fatalf("unexpected first record %+v", first)
	}

	if _, err := store.Attempt(ctx, domain.OTPLookup{Key: testKey}, "000000", now, 15); err != nil {
		t.Fatalf("Attempt returned error: %v", err)
	}

	second, err := store.Upsert(ctx, issueAt(now.Add(time.Minute), "222222"))
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if second.ResendCount != 1 || !second.CreatedAt.Equal(now) {
		t.Fatalf("unexpected second record %+v", second)
	}

	stored, err := store.Get(ctx, testKey)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.Code != "222222" || stored.AttemptCount != 0 || stored.Locked {
		t.Fatalf("expected replaced code with reset attempts, got %+v", stored)
	}

	if ttl := server.TTL("otp:customer:acc-1:email"); ttl != time.Hour {
		t.Fatalf("expected retention ttl of 1h, got %v", ttl)
	}
}

func TestOTPStore_ResendLimitOnlyWhileLive(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewOTPStore(client, "otp", time.Hour)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := store.Upsert(ctx, issueAt(now, "111111")); err != nil {
			t.Fatalf("Upsert %d returned error: %v", i, err)
		}
	}

	if _, err := store.Upsert(ctx, issueAt(now, "111111")); !errors.Is(err, repository.ErrResendLimit) {
		t.Fatalf("expected ErrResendLimit, got %v", err)
	}

	later := now.Add(6 * time.Minute)
	record, err := store.Upsert(ctx, issueAt(later, "333333"))
	if err != nil {
		t.Fatalf("expected resend after expiry to succeed, got %v", err)
	}
	if record.ResendCount != 3 {
		t.Fatalf("expected resend count to keep counting, got %d", record.ResendCount)
	}
}

func TestOTPStore_AttemptStateMachine(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewOTPStore(client, "otp", time.Hour)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Upsert(ctx, issueAt(now, "123456")); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	lookup := domain.OTPLookup{Key: domain.OTPKey{Kind: testKey.Kind, Channel: testKey.Channel}, Destination: "a@x.com"}

	for i := 1; i <= 2; i++ {
		attempt, err := store.Attempt(ctx, lookup, "000000", now, 2)
		if err != nil {
			t.Fatalf("Attempt returned error: %v", err)
		}
		if attempt.Outcome != domain.OTPAttemptMismatch || attempt.AttemptCount != i {
			t.Fatalf("attempt %d: unexpected result %+v", i, attempt)
		}
		if attempt.Key != testKey {
			t.Fatalf("expected destination lookup to resolve key, got %+v", attempt.Key)
		}
	}

	attempt, err := store.Attempt(ctx, lookup, "123456", now, 2)
	if err != nil {
		t.Fatalf("Attempt returned error: %v", err)
	}
	if attempt.Outcome != domain.OTPAttemptMaxAttempts {
		t.Fatalf("expected max attempts, got %s", attempt.Outcome)
	}

	attempt, err = store.Attempt(ctx, lookup, "123456", now, 2)
	if err != nil {
		t.Fatalf("Attempt returned error: %v", err)
	}
	if attempt.Outcome != domain.OTPAttemptLocked {
		t.Fatalf("expected locked, got %s", attempt.Outcome)
	}

	attempt, err = store.Attempt(ctx, lookup, "123456", now.Add(6*time.Minute), 2)
	if err != nil {
		t.Fatalf("Attempt returned error: %v", err)
	}
	if attempt.Outcome != domain.OTPAttemptExpired {
		t.Fatalf("expected expired, got %s", attempt.Outcome)
	}
}

func TestOTPStore_VerifyAndDelete(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewOTPStore(client, "otp", time.Hour)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Upsert(ctx, issueAt(now, "123456")); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	attempt, err := store.Attempt(ctx, domain.OTPLookup{Key: testKey}, "123456", now, 15)
	if err != nil {
		t.Fatalf("Attempt returned error: %v", err)
	}
	if attempt.Outcome != domain.OTPAttemptVerified {
		t.Fatalf("expected verified, got %s", attempt.Outcome)
	}

	if err := store.Delete(ctx, testKey, "123456"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if server.Exists("otp:customer:acc-1:email") || server.Exists("otp:dest:customer:email:a@x.com") {
		t.Fatal("expected record and destination index to be removed")
	}

	if _, err := store.Get(ctx, testKey); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	attempt, err = store.Attempt(ctx, domain.OTPLookup{Key: testKey}, "123456", now, 15)
	if err != nil {
		t.Fatalf("Attempt returned error: %v", err)
	}
	if attempt.Outcome != domain.OTPAttemptNotFound {
		t.Fatalf("expected not found after delete, got %s", attempt.Outcome)
	}
}

func TestOTPStore_DeleteKeepsReissuedCode(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewOTPStore(client, "otp", time.Hour)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Upsert(ctx, issueAt(now, "111111")); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if _, err := store.Upsert(ctx, issueAt(now.Add(time.Second), "222222")); err != nil {
		t.Fatalf("resend Upsert returned error: %v", err)
	}

	if err := store.Delete(ctx, testKey, "111111"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	record, err := store.Get(ctx, testKey)
	if err != nil {
		t.Fatalf("expected reissued record to survive, got %v", err)
	}
	if record.Code != "222222" {
		t.Fatalf("expected code 222222, got %s", record.Code)
	}
	if !server.Exists("otp:dest:customer:email:a@x.com") {
		t.Fatal("expected destination index to survive")
	}
}
