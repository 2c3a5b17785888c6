package port

import (
	"context"
	"time"

	"github.com/arklim/marketplace-auth/internal/core/domain"
)

// OTPStore keeps at most one record per (kind, account, channel).
// Implementations must perform Upsert and Attempt as single atomic steps.
type OTPStore interface {
	// Upsert creates the record or replaces its code in place. It returns repository.ErrResendLimit
	// when the existing record is still live and has consumed MaxResends resends.
	Upsert(ctx context.Context, issue domain.OTPIssue) (*domain.OTPRecord, error)
	// Attempt consumes one verification attempt against the located record.
	Attempt(ctx context.Context, lookup domain.OTPLookup, code string, now time.Time, maxAttempts int) (domain.OTPAttempt, error)
	Get(ctx context.Context, key domain.OTPKey) (*domain.OTPRecord, error)
	// Delete removes the record only while it still holds code, so a verification never
	// consumes a code issued after it. A missing or replaced record is not an error.
	Delete(ctx context.Context, key domain.OTPKey, code string) error
}
