package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/infra/config"
)

type fakeAsyncProducer struct {
	input     chan *sarama.ProducerMessage
	errors    chan *sarama.ProducerError
	closeOnce sync.Once
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error {
	f.closeOnce.Do(func() { close(f.errors) })
	return nil
}

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T, prefix string) (*EventPublisher, *fakeAsyncProducer, *Producer) {
	t.Helper()
	asyncProducer := newFakeAsyncProducer()
	producer, err := newProducer(asyncProducer, config.KafkaSettings{TopicPrefix: prefix}, prometheus.NewRegistry(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("newProducer: %v", err)
	}
	t.Cleanup(func() { _ = producer.Close() })

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "marketplace-auth",
		Env:  "test",
	}, zaptest.NewLogger(t))
	return publisher, asyncProducer, producer
}

func decodeEnvelope(t *testing.T, msg *sarama.ProducerMessage) map[string]any {
	t.Helper()
	bytes, err := msg.Value.Encode()
	if err != nil {
		t.Fatalf("Value.Encode returned error: %v", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal(bytes, &envelope); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}
	return envelope
}

func TestPublishAccountRegistered(t *testing.T) {
	publisher, asyncProducer, _ := newTestPublisher(t, "auth")

	registeredAt := time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC)
	event := domain.AccountRegisteredEvent{
		EventID:      "event-123",
		AccountID:    "acc-1",
		Kind:         domain.AccountKindVendor,
		Email:        "shop@x.com",
		Phone:        "5550001111",
		RegisteredAt: registeredAt,
	}

	if err := publisher.PublishAccountRegistered(context.Background(), event); err != nil {
		t.Fatalf("PublishAccountRegistered returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != EventAccountRegistered {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil || string(key) != "vendor:acc-1" {
			t.Fatalf("unexpected key: %s (%v)", key, err)
		}

		envelope := decodeEnvelope(t, msg)
		if envelope["event_id"] != "event-123" || envelope["event_type"] != EventAccountRegistered {
			t.Fatalf("unexpected envelope identity: %v", envelope)
		}
		if envelope["account_id"] != "acc-1" || envelope["account_kind"] != "vendor" {
			t.Fatalf("unexpected account fields: %v", envelope)
		}
		if envelope["timestamp"] != registeredAt.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %v", envelope["timestamp"])
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}
		if payload["email"] != event.Email || payload["phone"] != event.Phone {
			t.Fatalf("unexpected payload: %v", payload)
		}

		metadata, ok := envelope["metadata"].(map[string]any)
		if !ok {
			t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
		}
		if metadata["service"] != "marketplace-auth" || metadata["environment"] != "test" {
			t.Fatalf("unexpected metadata: %v", metadata)
		}
		if _, ok := metadata["trace_id"]; ok {
			t.Fatal("trace_id must be absent without an active span")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestPublishTopicsUsePrefix(t *testing.T) {
	publisher, asyncProducer, _ := newTestPublisher(t, "marketplace")
	ctx := context.Background()

	cases := []struct {
		topic   string
		publish func() error
		field   string
		want    any
	}{
		{
			topic: "marketplace." + EventChannelVerified,
			publish: func() error {
				return publisher.PublishChannelVerified(ctx, domain.ChannelVerifiedEvent{
					AccountID: "acc-2", Kind: domain.AccountKindCustomer, Channel: domain.ChannelPhone, FullyVerified: true,
				})
			},
			field: "channel",
			want:  "phone",
		},
		{
			topic: "marketplace." + EventAccountLoggedIn,
			publish: func() error {
				return publisher.PublishAccountLoggedIn(ctx, domain.AccountLoggedInEvent{
					AccountID: "acc-2", Kind: domain.AccountKindDriver, Limited: true,
				})
			},
			field: "limited",
			want:  true,
		},
		{
			topic: "marketplace." + EventAccountLoggedOut,
			publish: func() error {
				return publisher.PublishAccountLoggedOut(ctx, domain.AccountLoggedOutEvent{
					AccountID: "acc-2", Kind: domain.AccountKindCustomer, TokenFound: false,
				})
			},
			field: "token_found",
			want:  false,
		},
	}

	for _, tc := range cases {
		if err := tc.publish(); err != nil {
			t.Fatalf("%s: publish returned error: %v", tc.topic, err)
		}
		msg := <-asyncProducer.input
		if msg.Topic != tc.topic {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}
		envelope := decodeEnvelope(t, msg)
		if envelope["event_id"] == "" {
			t.Fatal("expected generated event id")
		}
		payload := envelope["payload"].(map[string]any)
		if payload[tc.field] != tc.want {
			t.Fatalf("%s: expected %s=%v, got %v", tc.topic, tc.field, tc.want, payload[tc.field])
		}
	}
}

func TestPublishHonoursContextWhenProducerIsBackedUp(t *testing.T) {
	publisher, asyncProducer, _ := newTestPublisher(t, "auth")
	asyncProducer.input <- &sarama.ProducerMessage{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := publisher.PublishAccountLoggedOut(ctx, domain.AccountLoggedOutEvent{AccountID: "acc-3", Kind: domain.AccountKindVendor})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestProducerCountsDeliveryErrors(t *testing.T) {
	_, asyncProducer, producer := newTestPublisher(t, "auth")

	asyncProducer.errors <- &sarama.ProducerError{
		Msg: &sarama.ProducerMessage{Topic: "auth.account.logged_in"},
		Err: errors.New("leader not available"),
	}

	// Close waits for the drain loop, so the counter is settled afterwards.
	if err := producer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := testutil.ToFloat64(producer.failures.WithLabelValues("auth.account.logged_in")); got != 1 {
		t.Fatalf("expected one counted failure, got %v", got)
	}
}

func TestTopicName(t *testing.T) {
	producer := &Producer{cfg: config.KafkaSettings{TopicPrefix: "auth"}}
	if got := producer.TopicName("auth.account.registered"); got != "auth.account.registered" {
		t.Fatalf("prefixed event type must be kept, got %s", got)
	}
	if got := producer.TopicName("account.registered"); got != "auth.account.registered" {
		t.Fatalf("unexpected topic %s", got)
	}

	producer.cfg.TopicPrefix = ""
	if got := producer.TopicName(EventAccountLoggedIn); got != EventAccountLoggedIn {
		t.Fatalf("unexpected topic %s", got)
	}
}

func TestStubPublisherMasksContacts(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	publisher := NewStubPublisher(zap.New(core))

	err := publisher.PublishAccountRegistered(context.Background(), domain.AccountRegisteredEvent{
		AccountID: "acc-1",
		Kind:      domain.AccountKindCustomer,
		Email:     "a@x.com",
		Phone:     "5551234567",
	})
	if err != nil {
		t.Fatalf("PublishAccountRegistered returned error: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event_type"] != EventAccountRegistered {
		t.Fatalf("unexpected event type %v", fields["event_type"])
	}
	if fields["email"] != "a***@x.com" || fields["phone"] != "55****67" {
		t.Fatalf("contacts must be masked, got %v / %v", fields["email"], fields["phone"])
	}
}
