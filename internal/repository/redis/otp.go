package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/repository"
)

const (
	defaultOTPPrefix    = "otp"
	defaultOTPRetention = 24 * time.Hour

	fieldCode         = "code"
	fieldDestination  = "destination"
	fieldExpiresAt    = "expires_at"
	fieldAttemptCount = "attempt_count"
	fieldResendCount  = "resend_count"
	fieldLocked       = "locked"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"

	errResendLimit = "resend_limit"
)

// upsertOTPLua creates or replaces the code of one record.
// KEYS[1] = record hash, KEYS[2] = destination index
// ARGV[1] = code, ARGV[2] = destination, ARGV[3] = expires_at ms, ARGV[4] = now ms,
// ARGV[5] = max resends, ARGV[6] = retention ms, ARGV[7] = account id
//
// Returns {resend_count, created_at} or error "resend_limit".
var upsertOTPLua = red.NewScript(`
local now = tonumber(ARGV[4])
local resend = 0
if redis.call('EXISTS', KEYS[1]) == 1 then
  local current = tonumber(redis.call('HGET', KEYS[1], 'resend_count') or '0')
  local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at') or '0')
  if current >= tonumber(ARGV[5]) and expires > now then
    return {err='resend_limit'}
  end
  resend = current + 1
else
  redis.call('HSET', KEYS[1], 'created_at', ARGV[4])
end
redis.call('HSET', KEYS[1],
  'code', ARGV[1],
  'destination', ARGV[2],
  'expires_at', ARGV[3],
  'attempt_count', '0',
  'resend_count', tostring(resend),
  'locked', '0',
  'updated_at', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[6])
redis.call('SET', KEYS[2], ARGV[7], 'PX', ARGV[6])
return {resend, redis.call('HGET', KEYS[1], 'created_at')}
`)

// attemptOTPLua consumes one verification attempt.
// KEYS[1] = record hash
// ARGV[1] = supplied code, ARGV[2] = now ms, ARGV[3] = max attempts, ARGV[4] = expected destination or ""
//
// Returns {outcome, attempt_count}.
var attemptOTPLua = red.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {'not_found', 0}
end
if ARGV[4] ~= '' and redis.call('HGET', KEYS[1], 'destination') ~= ARGV[4] then
  return {'not_found', 0}
end
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempt_count') or '0')
local now = tonumber(ARGV[2])
if now > tonumber(redis.call('HGET', KEYS[1], 'expires_at') or '0') then
  return {'expired', attempts}
end
if redis.call('HGET', KEYS[1], 'locked') == '1' then
  return {'locked', attempts}
end
attempts = attempts + 1
redis.call('HSET', KEYS[1], 'attempt_count', tostring(attempts), 'updated_at', ARGV[2])
if attempts > tonumber(ARGV[3]) then
  redis.call('HSET', KEYS[1], 'locked', '1')
  return {'max_attempts', attempts}
end
if redis.call('HGET', KEYS[1], 'code') ~= ARGV[1] then
  return {'mismatch', attempts}
end
return {'verified', attempts}
`)

// OTPStore persists one OTP hash per (kind, account, channel) and performs every
// state transition inside a Lua script so concurrent requests cannot interleave.
type OTPStore struct {
	client    red.UniversalClient
	prefix    string
	retention time.Duration
}

// deleteOTPLua removes a record only when its code still matches.
// KEYS[1] = record hash
// ARGV[1] = verified code, ARGV[2] = destination index prefix, ARGV[3] = account id
//
// Returns 1 when the record was removed, 0 otherwise.
var deleteOTPLua = red.NewScript(`
if redis.call('HGET', KEYS[1], 'code') ~= ARGV[1] then
  return 0
end
local destination = redis.call('HGET', KEYS[1], 'destination')
redis.call('DEL', KEYS[1])
if destination then
  local index = ARGV[2] .. destination
  if redis.call('GET', index) == ARGV[3] then
    redis.call('DEL', index)
  end
end
return 1
`)

// NewOTPStore constructs the store. Records outlive their code by retention so resend
// bookkeeping survives expiry.
func NewOTPStore(client red.UniversalClient, keyPrefix string, retention time.Duration) *OTPStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultOTPPrefix
	}
	if retention <= 0 {
		retention = defaultOTPRetention
	}

	return &OTPStore{
		client:    client,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *OTPStore) Upsert(ctx context.Context, issue domain.OTPIssue) (*domain.OTPRecord, error) {
	retention := s.retention
	if ttl := issue.ExpiresAt.Sub(issue.IssuedAt); ttl > retention {
		retention = ttl
	}

	raw, err := upsertOTPLua.Run(ctx, s.client,
		[]string{s.key(issue.Key), s.destinationKey(issue.Key.Kind, issue.Key.Channel, issue.Destination)},
		issue.Code,
		issue.Destination,
		issue.ExpiresAt.UnixMilli(),
		issue.IssuedAt.UnixMilli(),
		issue.MaxResends,
		retention.Milliseconds(),
		issue.Key.AccountID,
	).Slice()
	if err != nil {
		if isScriptError(err, errResendLimit) {
			return nil, repository.ErrResendLimit
		}
		return nil, fmt.Errorf("redis upsert otp: %w", err)
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("redis upsert otp: unexpected reply %v", raw)
	}

	resendCount, err := toInt(raw[0])
	if err != nil {
		return nil, fmt.Errorf("parse resend_count: %w", err)
	}
	createdAt, err := parseMillis(fmt.Sprint(raw[1]))
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &domain.OTPRecord{
		Kind:        issue.Key.Kind,
		AccountID:   issue.Key.AccountID,
		Channel:     issue.Key.Channel,
		Destination: issue.Destination,
		Code:        issue.Code,
		ExpiresAt:   time.UnixMilli(issue.ExpiresAt.UnixMilli()).UTC(),
		ResendCount: resendCount,
		CreatedAt:   createdAt,
		UpdatedAt:   time.UnixMilli(issue.IssuedAt.UnixMilli()).UTC(),
	}, nil
}

func (s *OTPStore) Attempt(ctx context.Context, lookup domain.OTPLookup, code string, now time.Time, maxAttempts int) (domain.OTPAttempt, error) {
	key := lookup.Key
	if lookup.Destination != "" {
		accountID, err := s.client.Get(ctx, s.destinationKey(key.Kind, key.Channel, lookup.Destination)).Result()
		if errors.Is(err, red.Nil) {
			return domain.OTPAttempt{Outcome: domain.OTPAttemptNotFound, Key: key}, nil
		}
		if err != nil {
			return domain.OTPAttempt{}, fmt.Errorf("redis resolve otp destination: %w", err)
		}
		key.AccountID = accountID
	}

	raw, err := attemptOTPLua.Run(ctx, s.client,
		[]string{s.key(key)},
		code,
		now.UnixMilli(),
		maxAttempts,
		lookup.Destination,
	).Slice()
	if err != nil {
		return domain.OTPAttempt{}, fmt.Errorf("redis attempt otp: %w", err)
	}
	if len(raw) != 2 {
		return domain.OTPAttempt{}, fmt.Errorf("redis attempt otp: unexpected reply %v", raw)
	}

	attempts, err := toInt(raw[1])
	if err != nil {
		return domain.OTPAttempt{}, fmt.Errorf("parse attempt_count: %w", err)
	}

	return domain.OTPAttempt{
		Outcome:      domain.OTPAttemptOutcome(fmt.Sprint(raw[0])),
		Key:          key,
		AttemptCount: attempts,
	}, nil
}

func (s *OTPStore) Get(ctx context.Context, key domain.OTPKey) (*domain.OTPRecord, error) {
	values, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall otp: %w", err)
	}
	if len(values) == 0 || values[fieldCode] == "" {
		return nil, repository.ErrNotFound
	}

	record := &domain.OTPRecord{
		Kind:        key.Kind,
		AccountID:   key.AccountID,
		Channel:     key.Channel,
		Destination: values[fieldDestination],
		Code:        values[fieldCode],
		Locked:      values[fieldLocked] == "1",
	}

	if record.ExpiresAt, err = parseMillis(values[fieldExpiresAt]); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if record.CreatedAt, err = parseMillis(values[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if record.UpdatedAt, err = parseMillis(values[fieldUpdatedAt]); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if record.AttemptCount, err = strconv.Atoi(values[fieldAttemptCount]); err != nil {
		return nil, fmt.Errorf("parse attempt_count: %w", err)
	}
	if record.ResendCount, err = strconv.Atoi(values[fieldResendCount]); err != nil {
		return nil, fmt.Errorf("parse resend_count: %w", err)
	}

	return record, nil
}

// Delete removes the record and its destination index while the record still holds code.
func (s *OTPStore) Delete(ctx context.Context, key domain.OTPKey, code string) error {
	recordKey := s.key(key)
	indexPrefix := fmt.Sprintf("%s:dest:%s:%s:", s.prefix, key.Kind, key.Channel)

	err := deleteOTPLua.Run(ctx, s.client, []string{recordKey}, code, indexPrefix, key.AccountID).Err()
	if err != nil && !errors.Is(err, red.Nil) {
		return fmt.Errorf("redis delete otp: %w", err)
	}
	return nil
}

func (s *OTPStore) key(key domain.OTPKey) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, key.Kind, key.AccountID, key.Channel)
}

func (s *OTPStore) destinationKey(kind domain.AccountKind, channel domain.Channel, destination string) string {
	return fmt.Sprintf("%s:dest:%s:%s:%s", s.prefix, kind, channel, destination)
}

func isScriptError(err error, code string) bool {
	return err != nil && strings.Contains(err.Error(), code)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func parseMillis(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(v).UTC(), nil
}
