package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint rejected the write.
	ErrConflict = errors.New("repository: conflict")
	// ErrResendLimit indicates a live OTP record has exhausted its resends.
	ErrResendLimit = errors.New("repository: otp resend limit reached")
)

// ConflictError names the unique field that rejected the write. It matches ErrConflict.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return "repository: conflict on " + e.Field
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
