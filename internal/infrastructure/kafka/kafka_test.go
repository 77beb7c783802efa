package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peacemap/riskengine/internal/domain/event"
	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/port"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
	"github.com/peacemap/riskengine/internal/infrastructure/kafka"
	"github.com/peacemap/riskengine/pkg/events"
	pkgkafka "github.com/peacemap/riskengine/pkg/kafka"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type published struct {
	topic    string
	messages []pkgkafka.Message
}

type mockProducer struct {
	mu        sync.Mutex
	calls     []published
	failTopic string
}

func (p *mockProducer) Publish(_ context.Context, topic string, messages ...pkgkafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic == p.failTopic {
		return errors.New("broker unavailable")
	}
	p.calls = append(p.calls, published{topic: topic, messages: messages})
	return nil
}

func sampleScore() model.RiskScore {
	return model.RiskScore{
		ID:           uuid.New(),
		Calculator:   valueobject.CalculatorComposite,
		Region:       "gulf",
		OverallScore: 75,
		RiskLevel:    valueobject.RiskLevelHigh,
		CalculatedAt: testTime,
		Factors:      []model.RiskFactor{},
	}
}

func TestPublisher_Publish(t *testing.T) {
	producer := &mockProducer{}
	pub := kafka.NewPublisher(producer, nil)

	score := sampleScore()
	evt := event.NewScoreCalculated(score)
	require.NoError(t, pub.Publish(context.Background(), "risk.events", evt))

	require.Len(t, producer.calls, 1)
	call := producer.calls[0]
	assert.Equal(t, "risk.events", call.topic)
	require.Len(t, call.messages, 1)

	msg := call.messages[0]
	assert.Equal(t, score.ID.String(), string(msg.Key))
	assert.Equal(t, event.EventTypeScoreCalculated, msg.Headers[kafka.HeaderEventType])
	assert.Equal(t, evt.EventID().String(), msg.Headers[kafka.HeaderEventID])

	var env events.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, evt.EventID(), env.EventID)
	assert.Equal(t, event.AggregateTypeRiskScore, env.AggregateType)
}

func TestPublisher_NoEvents(t *testing.T) {
	producer := &mockProducer{}
	require.NoError(t, kafka.NewPublisher(producer, nil).Publish(context.Background(), "t"))
	assert.Empty(t, producer.calls)
}

func TestPublisher_ProducerFailure(t *testing.T) {
	producer := &mockProducer{failTopic: "t"}
	err := kafka.NewPublisher(producer, nil).Publish(context.Background(), "t", event.NewScoreCalculated(sampleScore()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish events to topic t")
}

func TestDirectSink(t *testing.T) {
	producer := &mockProducer{}
	sink := kafka.NewDirectSink(kafka.NewPublisher(producer, nil), "risk.events")

	score := sampleScore()
	alert := model.NewRiskAlert(score, valueobject.AlertTypeHighRisk, testTime)
	rec := port.ScoreRecord{
		Score:  score,
		Alerts: []model.RiskAlert{alert},
		Events: []events.DomainEvent{event.NewScoreCalculated(score), event.NewAlertRaised(alert)},
	}
	require.NoError(t, sink.RecordScore(context.Background(), rec))

	alert.Acknowledge(testTime)
	require.NoError(t, sink.RecordAcknowledgement(context.Background(), alert, event.NewAlertAcknowledged(alert)))
	require.NoError(t, sink.RecordAcknowledgement(context.Background(), alert, nil))

	require.Len(t, producer.calls, 2)
	assert.Len(t, producer.calls[0].messages, 2)
	assert.Equal(t, event.EventTypeAlertAcknowledged, producer.calls[1].messages[0].Headers[kafka.HeaderEventType])
}

type mockOutbox struct {
	entries  []events.OutboxEntry
	marked   []uuid.UUID
	fetchErr error
}

func (o *mockOutbox) FetchUnpublished(_ context.Context, batchSize int) ([]events.OutboxEntry, error) {
	if o.fetchErr != nil {
		return nil, o.fetchErr
	}
	if batchSize < len(o.entries) {
		return o.entries[:batchSize], nil
	}
	return o.entries, nil
}

func (o *mockOutbox) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	o.marked = append(o.marked, ids...)
	return nil
}

func outboxEntry(t *testing.T, topic string) events.OutboxEntry {
	t.Helper()
	entry, err := events.NewOutboxEntry(topic, event.NewScoreCalculated(sampleScore()))
	require.NoError(t, err)
	return entry
}

func TestOutboxRelay_RelayOnce(t *testing.T) {
	a1, b1, a2 := outboxEntry(t, "a"), outboxEntry(t, "b"), outboxEntry(t, "a")
	repo := &mockOutbox{entries: []events.OutboxEntry{a1, b1, a2}}
	producer := &mockProducer{}

	n, err := kafka.NewOutboxRelay(repo, producer, nil).RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []uuid.UUID{a1.ID, b1.ID, a2.ID}, repo.marked)

	require.Len(t, producer.calls, 2)
	assert.Equal(t, "a", producer.calls[0].topic)
	assert.Len(t, producer.calls[0].messages, 2)
	assert.Equal(t, a1.Payload, producer.calls[0].messages[0].Value)
	assert.Equal(t, a1.ID.String(), producer.calls[0].messages[0].Headers[kafka.HeaderEventID])
}

func TestOutboxRelay_PartialFailureLeavesEntriesPending(t *testing.T) {
	a, b := outboxEntry(t, "a"), outboxEntry(t, "b")
	repo := &mockOutbox{entries: []events.OutboxEntry{a, b}}
	producer := &mockProducer{failTopic: "b"}

	n, err := kafka.NewOutboxRelay(repo, producer, nil).RelayOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{a.ID}, repo.marked)
}

func TestOutboxRelay_BatchSizeAndEmpty(t *testing.T) {
	repo := &mockOutbox{entries: []events.OutboxEntry{outboxEntry(t, "a"), outboxEntry(t, "a")}}
	relay := kafka.NewOutboxRelay(repo, &mockProducer{}, nil, kafka.WithRelayBatchSize(1))

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = kafka.NewOutboxRelay(&mockOutbox{}, &mockProducer{}, nil).RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxRelay_FetchError(t *testing.T) {
	repo := &mockOutbox{fetchErr: errors.New("connection refused")}
	_, err := kafka.NewOutboxRelay(repo, &mockProducer{}, nil).RelayOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch outbox")
}

func TestOutboxRelay_RunStopsOnCancel(t *testing.T) {
	repo := &mockOutbox{entries: []events.OutboxEntry{outboxEntry(t, "a")}}
	relay := kafka.NewOutboxRelay(repo, &mockProducer{}, nil, kafka.WithRelayInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, relay.Run(ctx))
	assert.NotEmpty(t, repo.marked)
}
