package memory

import (
	"context"
	"sync"
	"time"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/repository"
)

// OTPStore is a mutex guarded port.OTPStore.
type OTPStore struct {
	mu      sync.Mutex
	records map[domain.OTPKey]domain.OTPRecord
}

func NewOTPStore() *OTPStore {
	return &OTPStore{records: make(map[domain.OTPKey]domain.OTPRecord)}
}

func (s *OTPStore) Upsert(_ context.Context, issue domain.OTPIssue) (*domain.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[issue.Key]
	if exists {
		if record.ResendCount >= issue.MaxResends && record.ExpiresAt.After(issue.IssuedAt) {
			return nil, repository.ErrResendLimit
		}
		record.ResendCount++
	} else {
		record = domain.OTPRecord{
			Kind:      issue.Key.Kind,
			AccountID: issue.Key.AccountID,
			Channel:   issue.Key.Channel,
			CreatedAt: issue.IssuedAt,
		}
	}

	record.Destination = issue.Destination
	record.Code = issue.Code
	record.ExpiresAt = issue.ExpiresAt
	record.AttemptCount = 0
	record.Locked = false
	record.UpdatedAt = issue.IssuedAt

	s.records[issue.Key] = record
	out := record
	return &out, nil
}

func (s *OTPStore) Attempt(_ context.Context, lookup domain.OTPLookup, code string, now time.Time, maxAttempts int) (domain.OTPAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.locate(lookup)
	if !ok {
		return domain.OTPAttempt{Outcome: domain.OTPAttemptNotFound, Key: lookup.Key}, nil
	}

	record := s.records[key]
	outcome := record.Attempt(code, now, maxAttempts)
	s.records[key] = record

	return domain.OTPAttempt{Outcome: outcome, Key: key, AttemptCount: record.AttemptCount}, nil
}

func (s *OTPStore) locate(lookup domain.OTPLookup) (domain.OTPKey, bool) {
	if lookup.Destination == "" {
		_, ok := s.records[lookup.Key]
		return lookup.Key, ok
	}

	var (
		found  domain.OTPKey
		latest time.Time
		ok     bool
	)
	for key, record := range s.records {
		if key.Kind != lookup.Key.Kind || key.Channel != lookup.Key.Channel || record.Destination != lookup.Destination {
			continue
		}
		if !ok || record.UpdatedAt.After(latest) {
			found, latest, ok = key, record.UpdatedAt, true
		}
	}
	return found, ok
}

func (s *OTPStore) Get(_ context.Context, key domain.OTPKey) (*domain.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &record, nil
}

func (s *OTPStore) Delete(_ context.Context, key domain.OTPKey, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[key]; ok && record.Code == code {
		delete(s.records, key)
	}
	return nil
}
