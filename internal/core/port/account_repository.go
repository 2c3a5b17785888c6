package port

import (
	"context"

	"github.com/arklim/marketplace-auth/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts of every kind.
// Lookups by email and phone are scoped to the kind.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, kind domain.AccountKind, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, kind domain.AccountKind, email string) (*domain.Account, error)
	GetByPhone(ctx context.Context, kind domain.AccountKind, phone string) (*domain.Account, error)
	// MarkChannelVerified flips the verified flag of a single channel and returns the updated account.
	MarkChannelVerified(ctx context.Context, kind domain.AccountKind, id string, channel domain.Channel) (*domain.Account, error)
	SetConfirmed(ctx context.Context, kind domain.AccountKind, id string, confirmed bool) (*domain.Account, error)
}
