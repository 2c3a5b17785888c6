package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/core/port"
	"github.com/arklim/marketplace-auth/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, kind domain.AccountKind, accountID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published", append([]zap.Field{
		zap.String("event_type", eventType),
		zap.String("account_kind", kind.String()),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
	}, fields...)...)
}

func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logEvent(EventAccountRegistered, event.Kind, event.AccountID, event.RegisteredAt,
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.String("phone", logger.MaskPhone(event.Phone)),
	)
	return nil
}

func (p *StubPublisher) PublishChannelVerified(_ context.Context, event domain.ChannelVerifiedEvent) error {
	p.logEvent(EventChannelVerified, event.Kind, event.AccountID, event.VerifiedAt,
		zap.String("channel", event.Channel.String()),
		zap.Bool("fully_verified", event.FullyVerified),
	)
	return nil
}

func (p *StubPublisher) PublishAccountLoggedIn(_ context.Context, event domain.AccountLoggedInEvent) error {
	p.logEvent(EventAccountLoggedIn, event.Kind, event.AccountID, event.LoggedInAt,
		zap.Bool("fully_verified", event.FullyVerified),
		zap.Bool("limited", event.Limited),
	)
	return nil
}

func (p *StubPublisher) PublishAccountLoggedOut(_ context.Context, event domain.AccountLoggedOutEvent) error {
	p.logEvent(EventAccountLoggedOut, event.Kind, event.AccountID, event.LoggedOut,
		zap.Bool("token_found", event.TokenFound),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
