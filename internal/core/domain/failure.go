package domain

import (
	"fmt"
	"net/http"
)

// FailureKind enumerates every caller-visible failure the auth flows produce.
type FailureKind string

const (
	FailureValidation          FailureKind = "validation"
	FailureConflict            FailureKind = "conflict"
	FailureNotFound            FailureKind = "not_found"
	FailureInvalidCredentials  FailureKind = "invalid_credentials"
	FailureOTPNotFound         FailureKind = "otp_not_found"
	FailureOTPExpired          FailureKind = "otp_expired"
	FailureOTPLocked           FailureKind = "otp_locked"
	FailureOTPMaxAttempts      FailureKind = "otp_max_attempts"
	FailureOTPMismatch         FailureKind = "otp_mismatch"
	FailureResendLimitExceeded FailureKind = "resend_limit_exceeded"
	FailureInvalidRefreshToken FailureKind = "invalid_refresh_token"
	FailureUnauthorized        FailureKind = "unauthorized"
	FailureForbidden           FailureKind = "forbidden"
)

// Failure is the tagged error returned by the auth flows.
type Failure struct {
	Kind    FailureKind
	Message string
	// AttemptsLeft is set for FailureOTPMismatch.
	AttemptsLeft int
}

// Sentinels usable with errors.Is; matching is by kind only.
var (
	ErrValidation          = &Failure{Kind: FailureValidation}
	ErrConflict            = &Failure{Kind: FailureConflict}
	ErrNotFound            = &Failure{Kind: FailureNotFound}
	ErrInvalidCredentials  = &Failure{Kind: FailureInvalidCredentials}
	ErrOTPNotFound         = &Failure{Kind: FailureOTPNotFound}
	ErrOTPExpired          = &Failure{Kind: FailureOTPExpired}
	ErrOTPLocked           = &Failure{Kind: FailureOTPLocked}
	ErrOTPMaxAttempts      = &Failure{Kind: FailureOTPMaxAttempts}
	ErrOTPMismatch         = &Failure{Kind: FailureOTPMismatch}
	ErrResendLimitExceeded = &Failure{Kind: FailureResendLimitExceeded}
	ErrInvalidRefreshToken = &Failure{Kind: FailureInvalidRefreshToken}
	ErrUnauthorized        = &Failure{Kind: FailureUnauthorized}
	ErrForbidden           = &Failure{Kind: FailureForbidden}
)

// NewFailure constructs a failure of the given kind.
func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// OTPMismatch builds the wrong-code failure carrying the remaining attempts.
func OTPMismatch(attemptsLeft int) *Failure {
	if attemptsLeft < 0 {
		attemptsLeft = 0
	}
	return &Failure{
		Kind:         FailureOTPMismatch,
		Message:      fmt.Sprintf("Invalid code. You have %d attempts left.", attemptsLeft),
		AttemptsLeft: attemptsLeft,
	}
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return f.Message
	}
	return string(f.Kind)
}

// Is matches any failure of the same kind.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	return t.Kind == f.Kind
}

// Status maps the failure onto the HTTP status reported to callers.
func (f *Failure) Status() int {
	switch f.Kind {
	case FailureValidation,
		FailureConflict,
		FailureOTPNotFound,
		FailureOTPExpired,
		FailureOTPLocked,
		FailureOTPMaxAttempts,
		FailureOTPMismatch,
		FailureResendLimitExceeded:
		return http.StatusBadRequest
	case FailureInvalidCredentials, FailureInvalidRefreshToken, FailureUnauthorized:
		return http.StatusUnauthorized
	case FailureForbidden:
		return http.StatusForbidden
	case FailureNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
