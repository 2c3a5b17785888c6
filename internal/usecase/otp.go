package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/core/port"
	"github.com/arklim/marketplace-auth/internal/infra/config"
	"github.com/arklim/marketplace-auth/internal/infra/logger"
	"github.com/arklim/marketplace-auth/internal/infra/security"
	"github.com/arklim/marketplace-auth/internal/infra/telemetry"
	"github.com/arklim/marketplace-auth/internal/repository"
)

const (
	otpTriggerRegister = "register"
	otpTriggerResend   = "resend"
)

// OTPService applies the issue, resend and attempt policy on top of an OTPStore.
type OTPService struct {
	store    port.OTPStore
	notifier port.OTPNotifier
	settings config.AuthSettings
	generate func() (string, error)
	now      func() time.Time
	log      *zap.Logger
	metrics  *telemetry.AuthMetrics
}

// NewOTPService constructs an OTPService. A nil notifier drops codes after issuance.
func NewOTPService(store port.OTPStore, notifier port.OTPNotifier, settings config.AuthSettings) *OTPService {
	return &OTPService{
		store:    store,
		notifier: notifier,
		settings: settings,
		generate: security.GenerateOTPCode,
		now:      func() time.Time { return time.Now().UTC() },
		log:      zap.NewNop(),
	}
}

// WithClock overrides the time source.
func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithCodeGenerator overrides the code generator.
func (s *OTPService) WithCodeGenerator(generate func() (string, error)) *OTPService {
	if generate != nil {
		s.generate = generate
	}
	return s
}

func (s *OTPService) WithLogger(log *zap.Logger) *OTPService {
	if log != nil {
		s.log = log
	}
	return s
}

func (s *OTPService) WithMetrics(metrics *telemetry.AuthMetrics) *OTPService {
	s.metrics = metrics
	return s
}

// Settings returns the policy the service was built with.
func (s *OTPService) Settings() config.AuthSettings {
	return s.settings
}

// IssueOrRefresh creates the code for key or replaces the current one, then hands it to the notifier.
func (s *OTPService) IssueOrRefresh(ctx context.Context, key domain.OTPKey, destination, trigger string) (*domain.OTPRecord, error) {
	code, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("generate otp code: %w", err)
	}

	now := s.now()
	record, err := s.store.Upsert(ctx, domain.OTPIssue{
		Key:         key,
		Destination: destination,
		Code:        code,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.settings.OTPTTL),
		MaxResends:  s.settings.OTPMaxResends,
	})
	if err != nil {
		if errors.Is(err, repository.ErrResendLimit) {
			s.metrics.OTPIssued(key.Kind.String(), key.Channel.String(), "resend_limited")
			return nil, domain.NewFailure(domain.FailureResendLimitExceeded, "Resend limit reached. Wait until code expires.")
		}
		return nil, fmt.Errorf("store otp: %w", err)
	}
	s.metrics.OTPIssued(key.Kind.String(), key.Channel.String(), trigger)

	if s.notifier != nil {
		notification := port.OTPNotification{
			Kind:        key.Kind,
			AccountID:   key.AccountID,
			Channel:     key.Channel,
			Destination: destination,
			Code:        record.Code,
			ExpiresAt:   record.ExpiresAt,
		}
		if err := s.notifier.SendOTP(ctx, notification); err != nil {
			logger.WithContext(ctx, s.log).Warn("otp notification failed",
				zap.String("kind", key.Kind.String()),
				zap.String("channel", key.Channel.String()),
				zap.String("destination", maskDestination(key.Channel, destination)),
				zap.Error(err),
			)
		}
	}

	return record, nil
}

// Verify consumes one attempt against the located record. On success it returns the key of the
// matched record, which the caller must Consume once the account has been updated.
func (s *OTPService) Verify(ctx context.Context, lookup domain.OTPLookup, code string) (domain.OTPKey, error) {
	attempt, err := s.store.Attempt(ctx, lookup, code, s.now(), s.settings.OTPMaxAttempts)
	if err != nil {
		return domain.OTPKey{}, fmt.Errorf("attempt otp: %w", err)
	}
	s.metrics.OTPVerification(lookup.Key.Kind.String(), lookup.Key.Channel.String(), string(attempt.Outcome))

	switch attempt.Outcome {
	case domain.OTPAttemptVerified:
		return attempt.Key, nil
	case domain.OTPAttemptNotFound:
		return domain.OTPKey{}, domain.NewFailure(domain.FailureOTPNotFound, "OTP not found, request a new one")
	case domain.OTPAttemptExpired:
		return domain.OTPKey{}, domain.NewFailure(domain.FailureOTPExpired, "OTP expired, request a new one")
	case domain.OTPAttemptLocked:
		return domain.OTPKey{}, domain.NewFailure(domain.FailureOTPLocked, "Too many attempts, request a new OTP")
	case domain.OTPAttemptMaxAttempts:
		return domain.OTPKey{}, domain.NewFailure(domain.FailureOTPMaxAttempts, "Too many attempts, OTP locked")
	case domain.OTPAttemptMismatch:
		return domain.OTPKey{}, domain.OTPMismatch(s.settings.OTPMaxAttempts - attempt.AttemptCount)
	default:
		return domain.OTPKey{}, fmt.Errorf("attempt otp: unexpected outcome %q", attempt.Outcome)
	}
}

// Consume deletes the record verified with code. A code reissued since then is left in place.
func (s *OTPService) Consume(ctx context.Context, key domain.OTPKey, code string) error {
	if err := s.store.Delete(ctx, key, code); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}

// ResendsLeft reports how many resends remain after record was issued, never below zero.
func (s *OTPService) ResendsLeft(record *domain.OTPRecord) int {
	left := s.settings.OTPMaxResends - record.ResendCount
	if left < 0 {
		return 0
	}
	return left
}

func maskDestination(channel domain.Channel, destination string) string {
	if channel == domain.ChannelPhone {
		return logger.MaskPhone(destination)
	}
	return logger.MaskEmail(destination)
}
