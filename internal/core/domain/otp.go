package domain

import "time"

// Channel is the verification target of a one-time code.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Valid reports whether the channel is email or phone.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelPhone
}

func (c Channel) String() string {
	return string(c)
}

// OTPKey identifies the single OTP record an account may hold per channel.
type OTPKey struct {
	Kind      AccountKind
	AccountID string
	Channel   Channel
}

// OTPRecord is the stored state of a one-time code.
type OTPRecord struct {
	Kind         AccountKind
	AccountID    string
	Channel      Channel
	Destination  string
	Code         string
	ExpiresAt    time.Time
	AttemptCount int
	ResendCount  int
	Locked       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key returns the identity of the record.
func (r OTPRecord) Key() OTPKey {
	return OTPKey{Kind: r.Kind, AccountID: r.AccountID, Channel: r.Channel}
}

// Expired reports whether the code is dead at the supplied instant.
func (r OTPRecord) Expired(at time.Time) bool {
	return at.After(r.ExpiresAt)
}

// OTPIssue describes a code to be created or to replace the current one.
type OTPIssue struct {
	Key         OTPKey
	Destination string
	Code        string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	// MaxResends caps resendCount while the current code is still live.
	MaxResends int
}

// OTPLookup locates a record by destination when set, else by key.
type OTPLookup struct {
	Key         OTPKey
	Destination string
}

// OTPAttemptOutcome enumerates the results of a verification attempt.
type OTPAttemptOutcome string

const (
	OTPAttemptVerified    OTPAttemptOutcome = "verified"
	OTPAttemptMismatch    OTPAttemptOutcome = "mismatch"
	OTPAttemptNotFound    OTPAttemptOutcome = "not_found"
	OTPAttemptExpired     OTPAttemptOutcome = "expired"
	OTPAttemptLocked      OTPAttemptOutcome = "locked"
	OTPAttemptMaxAttempts OTPAttemptOutcome = "max_attempts"
)

// OTPAttempt is the result of one atomic verification attempt against a record.
type OTPAttempt struct {
	Outcome      OTPAttemptOutcome
	Key          OTPKey
	AttemptCount int
}

// Attempt applies one verification attempt to the record in place and reports the outcome.
// Expired and locked records are left untouched; every other outcome consumes an attempt.
func (r *OTPRecord) Attempt(code string, now time.Time, maxAttempts int) OTPAttemptOutcome {
	if r.Expired(now) {
		return OTPAttemptExpired
	}
	if r.Locked {
		return OTPAttemptLocked
	}

	r.AttemptCount++
	r.UpdatedAt = now
	if r.AttemptCount > maxAttempts {
		r.Locked = true
		return OTPAttemptMaxAttempts
	}
	if r.Code != code {
		return OTPAttemptMismatch
	}
	return OTPAttemptVerified
}

// Consumed reports whether the outcome changed the stored record.
func (o OTPAttemptOutcome) Consumed() bool {
	switch o {
	case OTPAttemptMismatch, OTPAttemptMaxAttempts, OTPAttemptVerified:
		return true
	default:
		return false
	}
}
