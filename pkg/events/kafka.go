package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jordanlanch/territoryengine/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the Kafka forwarder.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// KafkaForwarder is a bus Handler that publishes events to a Kafka topic,
// keyed by entity so one entity's events stay ordered within a partition.
type KafkaForwarder struct {
	writer WriterInterface
	logger logger.Logger
}

// NewKafkaForwarder creates a forwarder with a kafka-go writer.
func NewKafkaForwarder(cfg KafkaConfig, log logger.Logger) (*KafkaForwarder, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaForwarderWithWriter(writer, log), nil
}

// NewKafkaForwarderWithWriter creates a forwarder around an existing writer.
func NewKafkaForwarderWithWriter(w WriterInterface, log logger.Logger) *KafkaForwarder {
	if log == nil {
		log = logger.Default()
	}
	return &KafkaForwarder{writer: w, logger: log.With("component", "kafka_forwarder")}
}

// HandleEvent serializes the event and writes it to Kafka.
func (f *KafkaForwarder) HandleEvent(ctx context.Context, evt DomainEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", evt.ID, err)
	}

	key := evt.EntityType + ":" + evt.EntityID
	if evt.EntityID == "" {
		key = evt.TerritoryID
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "event_id", Value: []byte(evt.ID)},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", evt.ID, err)
	}

	f.logger.Debug("Event forwarded", "event_type", evt.Type, "event_id", evt.ID)
	return nil
}

// Close flushes and closes the writer.
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
