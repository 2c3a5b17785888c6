package memory

import (
	"context"
	"sync"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/repository"
)

type accountKey struct {
	kind domain.AccountKind
	id   string
}

// AccountRepository is an in-process port.AccountRepository used in development and tests.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[accountKey]domain.Account
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[accountKey]domain.Account)}
}

func (r *AccountRepository) Create(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, existing := range r.accounts {
		if key.kind != account.Kind {
			continue
		}
		switch {
		case key.id == account.ID:
			return &repository.ConflictError{Field: "id"}
		case existing.Email == account.Email:
			return &repository.ConflictError{Field: "email"}
		case existing.Phone == account.Phone:
			return &repository.ConflictError{Field: "phone"}
		}
	}

	r.accounts[accountKey{kind: account.Kind, id: account.ID}] = account
	return nil
}

func (r *AccountRepository) GetByID(_ context.Context, kind domain.AccountKind, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[accountKey{kind: kind, id: id}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (r *AccountRepository) GetByEmail(_ context.Context, kind domain.AccountKind, email string) (*domain.Account, error) {
	return r.find(kind, func(a domain.Account) bool { return a.Email == email })
}

func (r *AccountRepository) GetByPhone(_ context.Context, kind domain.AccountKind, phone string) (*domain.Account, error) {
	return r.find(kind, func(a domain.Account) bool { return a.Phone == phone })
}

func (r *AccountRepository) MarkChannelVerified(_ context.Context, kind domain.AccountKind, id string, channel domain.Channel) (*domain.Account, error) {
	return r.mutate(kind, id, func(a *domain.Account) {
		if channel == domain.ChannelPhone {
			a.PhoneVerified = true
		} else {
			a.EmailVerified = true
		}
	})
}

func (r *AccountRepository) SetConfirmed(_ context.Context, kind domain.AccountKind, id string, confirmed bool) (*domain.Account, error) {
	return r.mutate(kind, id, func(a *domain.Account) {
		a.ConfirmedAccount = confirmed
	})
}

func (r *AccountRepository) find(kind domain.AccountKind, match func(domain.Account) bool) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for key, account := range r.accounts {
		if key.kind == kind && match(account) {
			found := account
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *AccountRepository) mutate(kind domain.AccountKind, id string, apply func(*domain.Account)) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := accountKey{kind: kind, id: id}
	account, ok := r.accounts[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	apply(&account)
	r.accounts[key] = account
	return &account, nil
}
