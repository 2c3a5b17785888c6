package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/marketplace-auth/internal/infra/config"
	"github.com/arklim/marketplace-auth/internal/infra/telemetry"
)

const clientID = "marketplace-auth"

// Producer wraps a Sarama AsyncProducer. Delivery failures are logged and counted per topic.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
	failures *prometheus.CounterVec

	drained   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// SaramaConfig returns the producer settings used for account events.
func SaramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_5_0_0
	sc.ClientID = clientID

	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Compression = sarama.CompressionSnappy
	// Keys are "<kind>:<account id>", so one account's events stay ordered on one partition.
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Flush.Frequency = 100 * time.Millisecond
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Errors = true

	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond
	return sc
}

// NewProducer connects an async producer to cfg.Brokers. A nil registerer uses the global one.
func NewProducer(cfg config.KafkaSettings, reg prometheus.Registerer, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("create kafka producer: no brokers configured")
	}

	async, err := sarama.NewAsyncProducer(cfg.Brokers, SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p, err := newProducer(async, cfg, reg, logger)
	if err != nil {
		_ = async.Close()
		return nil, err
	}
	return p, nil
}

func newProducer(async sarama.AsyncProducer, cfg config.KafkaSettings, reg prometheus.Registerer, logger *zap.Logger) (*Producer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	failures, err := telemetry.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "event_delivery_failures_total",
		Help:      "Account events Kafka could not accept, by topic.",
	}, []string{"topic"}))
	if err != nil {
		return nil, fmt.Errorf("register kafka metrics: %w", err)
	}

	p := &Producer{
		producer: async,
		logger:   logger,
		cfg:      cfg,
		failures: failures,
		drained:  make(chan struct{}),
	}
	go p.drainErrors()
	return p, nil
}

// drainErrors runs until the underlying producer closes its error channel.
func (p *Producer) drainErrors() {
	defer close(p.drained)
	for perr := range p.producer.Errors() {
		if perr == nil {
			continue
		}
		topic := ""
		if perr.Msg != nil {
			topic = perr.Msg.Topic
		}
		p.failures.WithLabelValues(topic).Inc()
		p.logger.Error("kafka delivery failed", zap.String("topic", topic), zap.Error(perr.Err))
	}
}

// send hands message to the producer, giving up when ctx ends first.
func (p *Producer) send(ctx context.Context, message *sarama.ProducerMessage) error {
	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes buffered messages and waits for the error drain to finish.
func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		if err := p.producer.Close(); err != nil {
			p.closeErr = fmt.Errorf("close kafka producer: %w", err)
		}
		<-p.drained
	})
	return p.closeErr
}

// TopicName prefixes eventType with the configured topic prefix unless it already carries it.
func (p *Producer) TopicName(eventType string) string {
	if p.cfg.TopicPrefix == "" {
		return eventType
	}
	prefix := p.cfg.TopicPrefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}
	return prefix + eventType
}
