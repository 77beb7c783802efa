package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEntry is a domain event waiting in the outbox table for relay.
type OutboxEntry struct {
	CreatedAt     time.Time
	PublishedAt   *time.Time
	AggregateType string
	EventType     string
	Topic         string
	Payload       []byte
	ID            uuid.UUID
	AggregateID   uuid.UUID
}

// NewOutboxEntry creates an OutboxEntry bound for topic. The payload is the
// JSON envelope of the event.
func NewOutboxEntry(topic string, event DomainEvent) (OutboxEntry, error) {
	payload, err := json.Marshal(Wrap(event))
	if err != nil {
		return OutboxEntry{}, err
	}
	return OutboxEntry{
		ID:            event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		EventType:     event.EventType(),
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

// OutboxRepository is the port for outbox persistence.
type OutboxRepository interface {
	FetchUnpublished(ctx context.Context, batchSize int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}
