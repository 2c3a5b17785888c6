package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/core/port"
	"github.com/arklim/marketplace-auth/internal/repository"
)

// RefreshTokenLedger tracks the refresh tokens each account holds.
// Expired entries are pruned only when a new token is appended.
type RefreshTokenLedger struct {
	store port.RefreshTokenStore
	now   func() time.Time
}

func NewRefreshTokenLedger(store port.RefreshTokenStore) *RefreshTokenLedger {
	return &RefreshTokenLedger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (l *RefreshTokenLedger) WithClock(now func() time.Time) *RefreshTokenLedger {
	if now != nil {
		l.now = now
	}
	return l
}

// Append records token as valid for ttlDays.
func (l *RefreshTokenLedger) Append(ctx context.Context, kind domain.AccountKind, accountID, token string, ttlDays int) (domain.RefreshTokenEntry, error) {
	now := l.now()
	entry := domain.RefreshTokenEntry{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.AddDate(0, 0, ttlDays),
	}
	if err := l.store.Append(ctx, kind, accountID, entry, now); err != nil {
		return domain.RefreshTokenEntry{}, fmt.Errorf("append refresh token: %w", err)
	}
	return entry, nil
}

// FindLive returns the unexpired entry holding token, or nil when there is none.
func (l *RefreshTokenLedger) FindLive(ctx context.Context, kind domain.AccountKind, accountID, token string) (*domain.RefreshTokenEntry, error) {
	entry, err := l.store.FindLive(ctx, kind, accountID, token, l.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return entry, nil
}

// Revoke removes every entry holding token. Revoking an unknown token is not an error.
func (l *RefreshTokenLedger) Revoke(ctx context.Context, kind domain.AccountKind, accountID, token string) (bool, error) {
	removed, err := l.store.Revoke(ctx, kind, accountID, token)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return removed > 0, nil
}

func (l *RefreshTokenLedger) List(ctx context.Context, kind domain.AccountKind, accountID string) ([]domain.RefreshTokenEntry, error) {
	entries, err := l.store.List(ctx, kind, accountID)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	return entries, nil
}
