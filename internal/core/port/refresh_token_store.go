package port

import (
	"context"
	"time"

	"github.com/arklim/marketplace-auth/internal/core/domain"
)

// RefreshTokenStore holds the outstanding refresh tokens of each account.
// Append and Revoke operate on single entries so concurrent callers never overwrite each other.
type RefreshTokenStore interface {
	// Append removes entries expired at now and adds the new entry in one atomic step.
	Append(ctx context.Context, kind domain.AccountKind, accountID string, entry domain.RefreshTokenEntry, now time.Time) error
	FindLive(ctx context.Context, kind domain.AccountKind, accountID, token string, now time.Time) (*domain.RefreshTokenEntry, error)
	Revoke(ctx context.Context, kind domain.AccountKind, accountID, token string) (int, error)
	List(ctx context.Context, kind domain.AccountKind, accountID string) ([]domain.RefreshTokenEntry, error)
}
