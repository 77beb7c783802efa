package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/port"
	"github.com/peacemap/riskengine/pkg/events"
	pkgkafka "github.com/peacemap/riskengine/pkg/kafka"
)

// Header keys carried by every published domain event.
const (
	HeaderEventType     = "event_type"
	HeaderEventID       = "event_id"
	HeaderAggregateType = "aggregate_type"
)

// MessagePublisher is satisfied by *pkgkafka.Producer.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, messages ...pkgkafka.Message) error
}

// Publisher implements port.EventPublisher using Kafka.
type Publisher struct {
	producer MessagePublisher
	logger   *slog.Logger
}

var _ port.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a new Kafka event publisher.
func NewPublisher(producer MessagePublisher, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{producer: producer, logger: logger}
}

// Publish sends domain events to topic, keyed by aggregate ID.
func (p *Publisher) Publish(ctx context.Context, topic string, domainEvents ...events.DomainEvent) error {
	messages := make([]pkgkafka.Message, 0, len(domainEvents))
	for _, evt := range domainEvents {
		payload, err := json.Marshal(events.Wrap(evt))
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", evt.EventType(), err)
		}

		p.logger.DebugContext(ctx, "publishing event",
			slog.String("event_type", evt.EventType()),
			slog.String("topic", topic),
			slog.Int("payload_size", len(payload)),
		)

		messages = append(messages, pkgkafka.Message{
			Key:   []byte(evt.AggregateID().String()),
			Value: payload,
			Headers: map[string]string{
				HeaderEventType:     evt.EventType(),
				HeaderEventID:       evt.EventID().String(),
				HeaderAggregateType: evt.AggregateType(),
			},
		})
	}

	if len(messages) == 0 {
		return nil
	}
	if err := p.producer.Publish(ctx, topic, messages...); err != nil {
		return fmt.Errorf("failed to publish events to topic %s: %w", topic, err)
	}
	return nil
}

// DirectSink publishes domain events straight to Kafka. It stands in for the
// outbox when no database is configured, so delivery is at-most-once.
type DirectSink struct {
	publisher port.EventPublisher
	topic     string
}

var _ port.ScoreSink = (*DirectSink)(nil)

// NewDirectSink creates a sink that publishes to topic.
func NewDirectSink(publisher port.EventPublisher, topic string) *DirectSink {
	return &DirectSink{publisher: publisher, topic: topic}
}

// RecordScore publishes the record's events.
func (s *DirectSink) RecordScore(ctx context.Context, rec port.ScoreRecord) error {
	return s.publisher.Publish(ctx, s.topic, rec.Events...)
}

// RecordAcknowledgement publishes the acknowledgement event.
func (s *DirectSink) RecordAcknowledgement(ctx context.Context, _ model.RiskAlert, evt events.DomainEvent) error {
	if evt == nil {
		return nil
	}
	return s.publisher.Publish(ctx, s.topic, evt)
}
