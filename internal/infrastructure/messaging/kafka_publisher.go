package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/salonhub/salon-notifier/internal/domain/shared"
)

// KafkaConfig configures the audit event producer.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// KafkaPublisher writes event envelopes to a Kafka topic. The aggregate id is
// the message key so events of one notification stay ordered.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher dials the brokers with an idempotent sync producer.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers is empty")
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Retry.Backoff = 100 * time.Millisecond
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.ClientID = strings.TrimSpace(cfg.ClientID)
	if sc.ClientID == "" {
		sc.ClientID = "salon-notifier"
	}

	p, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(p, cfg.Topic)
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(p sarama.SyncProducer, topic string) (*KafkaPublisher, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("kafka topic is empty")
	}
	return &KafkaPublisher{producer: p, topic: topic}, nil
}

var _ shared.EventPublisher = (*KafkaPublisher)(nil)

// Publish implements shared.EventPublisher.
func (k *KafkaPublisher) Publish(ctx context.Context, event shared.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env, err := shared.NewEventEnvelope(event)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.AggregateID()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType())},
		},
		Timestamp: event.OccurredAt(),
	}

	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType(), err)
	}
	return nil
}

// Handle adapts the publisher to an EventHandler.
func (k *KafkaPublisher) Handle(ctx context.Context, event shared.Event) error {
	return k.Publish(ctx, event)
}

// Close flushes and closes the producer.
func (k *KafkaPublisher) Close() error {
	if k == nil || k.producer == nil {
		return nil
	}
	return k.producer.Close()
}
