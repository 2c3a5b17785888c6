package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/core/port"
	"github.com/arklim/marketplace-auth/internal/infra/config"
)

const schemaVersion = "1.0"

const (
	EventAccountRegistered = "auth.account.registered"
	EventChannelVerified   = "auth.account.channel_verified"
	EventAccountLoggedIn   = "auth.account.logged_in"
	EventAccountLoggedOut  = "auth.account.logged_out"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID     string           `json:"event_id"`
	EventType   string           `json:"event_type"`
	AccountID   string           `json:"account_id"`
	AccountKind string           `json:"account_kind"`
	Timestamp   time.Time        `json:"timestamp"`
	Version     string           `json:"version"`
	Payload     any              `json:"payload"`
	Metadata    envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType string, kind domain.AccountKind, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:     id,
		EventType:   eventType,
		AccountID:   accountID,
		AccountKind: kind.String(),
		Timestamp:   ts.UTC(),
		Version:     schemaVersion,
		Payload:     payload,
		Metadata:    metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	// Keyed by account so every event of one account lands on the same partition.
	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(kind.String() + ":" + accountID),
		Value: sarama.ByteEncoder(bytes),
	}

	return p.producer.send(ctx, message)
}

// PublishAccountRegistered publishes auth.account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		AccountID    string    `json:"account_id"`
		Email        string    `json:"email"`
		Phone        string    `json:"phone"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		AccountID:    event.AccountID,
		Email:        event.Email,
		Phone:        event.Phone,
		RegisteredAt: event.RegisteredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventAccountRegistered, event.Kind, event.AccountID, event.RegisteredAt, payload)
}

// PublishChannelVerified publishes auth.account.channel_verified events.
func (p *EventPublisher) PublishChannelVerified(ctx context.Context, event domain.ChannelVerifiedEvent) error {
	payload := struct {
		AccountID     string    `json:"account_id"`
		Channel       string    `json:"channel"`
		FullyVerified bool      `json:"fully_verified"`
		VerifiedAt    time.Time `json:"verified_at"`
	}{
		AccountID:     event.AccountID,
		Channel:       event.Channel.String(),
		FullyVerified: event.FullyVerified,
		VerifiedAt:    event.VerifiedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventChannelVerified, event.Kind, event.AccountID, event.VerifiedAt, payload)
}

// PublishAccountLoggedIn publishes auth.account.logged_in events.
func (p *EventPublisher) PublishAccountLoggedIn(ctx context.Context, event domain.AccountLoggedInEvent) error {
	payload := struct {
		AccountID     string    `json:"account_id"`
		FullyVerified bool      `json:"fully_verified"`
		Limited       bool      `json:"limited"`
		LoggedInAt    time.Time `json:"logged_in_at"`
	}{
		AccountID:     event.AccountID,
		FullyVerified: event.FullyVerified,
		Limited:       event.Limited,
		LoggedInAt:    event.LoggedInAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventAccountLoggedIn, event.Kind, event.AccountID, event.LoggedInAt, payload)
}

// PublishAccountLoggedOut publishes auth.account.logged_out events.
func (p *EventPublisher) PublishAccountLoggedOut(ctx context.Context, event domain.AccountLoggedOutEvent) error {
	payload := struct {
		AccountID   string    `json:"account_id"`
		LoggedOutAt time.Time `json:"logged_out_at"`
		TokenFound  bool      `json:"token_found"`
	}{
		AccountID:   event.AccountID,
		LoggedOutAt: event.LoggedOut.UTC(),
		TokenFound:  event.TokenFound,
	}

	return p.publish(ctx, event.EventID, EventAccountLoggedOut, event.Kind, event.AccountID, event.LoggedOut, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
