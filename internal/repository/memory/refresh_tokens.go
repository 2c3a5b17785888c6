package memory

import (
	"context"
	"sync"
	"time"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/repository"
)

// RefreshTokenStore keeps each account's ledger in a slice guarded by one mutex.
type RefreshTokenStore struct {
	mu      sync.Mutex
	ledgers map[accountKey][]domain.RefreshTokenEntry
}

func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{ledgers: make(map[accountKey][]domain.RefreshTokenEntry)}
}

func (s *RefreshTokenStore) Append(_ context.Context, kind domain.AccountKind, accountID string, entry domain.RefreshTokenEntry, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{kind: kind, id: accountID}
	current := s.ledgers[key]
	kept := make([]domain.RefreshTokenEntry, 0, len(current)+1)
	for _, e := range current {
		if e.Live(now) {
			kept = append(kept, e)
		}
	}
	s.ledgers[key] = append(kept, entry)
	return nil
}

func (s *RefreshTokenStore) FindLive(_ context.Context, kind domain.AccountKind, accountID, token string, now time.Time) (*domain.RefreshTokenEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.ledgers[accountKey{kind: kind, id: accountID}] {
		if e.Token == token && e.Live(now) {
			found := e
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *RefreshTokenStore) Revoke(_ context.Context, kind domain.AccountKind, accountID, token string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{kind: kind, id: accountID}
	current := s.ledgers[key]
	kept := current[:0]
	removed := 0
	for _, e := range current {
		if e.Token == token {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.ledgers[key] = kept
	return removed, nil
}

func (s *RefreshTokenStore) List(_ context.Context, kind domain.AccountKind, accountID string) ([]domain.RefreshTokenEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.ledgers[accountKey{kind: kind, id: accountID}]
	out := make([]domain.RefreshTokenEntry, len(current))
	copy(out, current)
	return out, nil
}
