// Package kafka publishes domain events to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
)

// ErrNoBrokers is returned by Config.Validate when no broker address is set
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// Config holds Kafka configuration
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// ParseConfig splits a comma separated broker list, dropping blank entries.
func ParseConfig(brokers string, topic string) Config {
	var list []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			list = append(list, broker)
		}
	}
	return Config{Brokers: list, Topic: strings.TrimSpace(topic), BatchTimeout: 10 * time.Millisecond}
}

// Validate reports configuration that would make every write fail.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	if c.Topic == "" {
		return errors.New("kafka: topic is required")
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes keyed messages to one topic. Messages that share a key are
// hashed to the same partition and keep their order.
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a synchronous producer for cfg.Topic.
func NewProducer(cfg Config, logger ectologger.Logger) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	logger.Infof("Publishing events to Kafka topic %s via %s", cfg.Topic, strings.Join(cfg.Brokers, ","))
	return newProducer(writer, cfg.Topic, logger), nil
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{writer: writer, logger: logger, topic: topic}
}

// Close flushes pending writes and closes the connection.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Write publishes one message. headers are sent sorted by key, followed by the
// trace context of ctx.
func (p *Producer) Write(ctx context.Context, key string, headers map[string]string, value []byte) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.Write")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.kafka.message_key", key),
	)

	msg := kafka.Message{Key: []byte(key), Value: value}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(headers[k])})
	}
	tracing.Inject(ctx, func(k, v string) {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		tracing.Fail(span, err, "publish failed")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to Kafka topic %s", p.topic)
		return err
	}
	return nil
}
