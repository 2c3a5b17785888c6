package domain

import (
	"testing"
	"time"
)

func TestOTPRecordAttemptLifecycle(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	record := OTPRecord{Code: "123456", ExpiresAt: now.Add(5 * time.Minute)}

	if got := record.Attempt("000000", now, 2); got != OTPAttemptMismatch {
		t.Fatalf("expected mismatch, got %s", got)
	}
	if got := record.Attempt("000000", now, 2); got != OTPAttemptMismatch {
		t.Fatalf("expected mismatch, got %s", got)
	}
	if got := record.Attempt("123456", now, 2); got != OTPAttemptMaxAttempts {
		t.Fatalf("expected max attempts, got %s", got)
	}
	if !record.Locked || record.AttemptCount != 3 {
		t.Fatalf("expected locked record with 3 attempts, got %+v", record)
	}
	if got := record.Attempt("123456", now, 2); got != OTPAttemptLocked {
		t.Fatalf("expected locked, got %s", got)
	}
	if record.AttemptCount != 3 {
		t.Fatalf("locked attempt must not be counted, got %d", record.AttemptCount)
	}
}

func TestOTPRecordAttemptExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	record := OTPRecord{Code: "123456", ExpiresAt: now}

	if got := record.Attempt("123456", now, 15); got != OTPAttemptVerified {
		t.Fatalf("code is live at its expiry instant, got %s", got)
	}

	record = OTPRecord{Code: "123456", ExpiresAt: now, Locked: true}
	if got := record.Attempt("123456", now.Add(time.Second), 15); got != OTPAttemptExpired {
		t.Fatalf("expiry is checked before the lock, got %s", got)
	}
}

func TestAccountDerivedFlags(t *testing.T) {
	vendor := Account{Kind: AccountKindVendor, EmailVerified: true, PhoneVerified: true}
	if !vendor.FullyVerified() || !vendor.Limited() {
		t.Fatalf("expected verified limited vendor")
	}
	vendor.ConfirmedAccount = true
	if vendor.Limited() {
		t.Fatal("confirmed vendor must not be limited")
	}

	customer := Account{Kind: AccountKindCustomer, EmailVerified: true}
	if customer.FullyVerified() || customer.Limited() {
		t.Fatal("customer with one channel is neither fully verified nor limited")
	}
	if customer.View().ConfirmedAccount != nil {
		t.Fatal("customer view must not expose confirmedAccount")
	}
}

func TestFailureStatusAndMatching(t *testing.T) {
	err := OTPMismatch(-3)
	if err.AttemptsLeft != 0 || err.Error() != "Invalid code. You have 0 attempts left." {
		t.Fatalf("unexpected mismatch failure: %+v", err)
	}
	if !err.Is(ErrOTPMismatch) {
		t.Fatal("expected mismatch to match sentinel")
	}
	if NewFailure(FailureInvalidRefreshToken, "Invalid refresh token").Status() != 401 {
		t.Fatal("invalid refresh token must map to 401")
	}
	if NewFailure(FailureConflict, "x").Status() != 400 {
		t.Fatal("conflict must map to 400")
	}
}
