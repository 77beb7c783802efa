package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/peacemap/riskengine/pkg/events"
	pkgkafka "github.com/peacemap/riskengine/pkg/kafka"
)

// Relay defaults.
const (
	DefaultRelayInterval  = time.Second
	DefaultRelayBatchSize = 100
)

// OutboxRelay moves committed outbox entries to Kafka. Entries are published
// before they are marked, so a crash in between re-sends them; consumers
// dedupe on the event_id header.
type OutboxRelay struct {
	repo      events.OutboxRepository
	producer  MessagePublisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// RelayOption customizes an OutboxRelay.
type RelayOption func(*OutboxRelay)

// WithRelayInterval sets the polling interval.
func WithRelayInterval(d time.Duration) RelayOption {
	return func(r *OutboxRelay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRelayBatchSize sets how many entries are fetched per poll.
func WithRelayBatchSize(n int) RelayOption {
	return func(r *OutboxRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewOutboxRelay creates a relay.
func NewOutboxRelay(repo events.OutboxRepository, producer MessagePublisher, logger *slog.Logger, opts ...RelayOption) *OutboxRelay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &OutboxRelay{
		repo:      repo,
		producer:  producer,
		logger:    logger,
		interval:  DefaultRelayInterval,
		batchSize: DefaultRelayBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is canceled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay starting", "interval", r.interval, "batch_size", r.batchSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopping")
			return nil
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were marked.
// Entries are grouped by topic; a failed topic leaves its entries pending.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.repo.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch outbox: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var (
		order   []string
		byTopic = make(map[string][]events.OutboxEntry)
	)
	for _, e := range entries {
		if _, ok := byTopic[e.Topic]; !ok {
			order = append(order, e.Topic)
		}
		byTopic[e.Topic] = append(byTopic[e.Topic], e)
	}

	var (
		published []uuid.UUID
		firstErr  error
	)
	for _, topic := range order {
		batch := byTopic[topic]
		messages := make([]pkgkafka.Message, 0, len(batch))
		for _, e := range batch {
			messages = append(messages, pkgkafka.Message{
				Key:   []byte(e.AggregateID.String()),
				Value: e.Payload,
				Headers: map[string]string{
					HeaderEventType:     e.EventType,
					HeaderEventID:       e.ID.String(),
					HeaderAggregateType: e.AggregateType,
				},
			})
		}

		if err := r.producer.Publish(ctx, topic, messages...); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to relay %d entries to %s: %w", len(batch), topic, err)
			}
			continue
		}
		for _, e := range batch {
			published = append(published, e.ID)
		}
	}

	if len(published) > 0 {
		if err := r.repo.MarkPublished(ctx, published); err != nil {
			return 0, fmt.Errorf("failed to mark outbox published: %w", err)
		}
		r.logger.Debug("outbox entries relayed", "count", len(published))
	}
	return len(published), firstErr
}
