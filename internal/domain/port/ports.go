package port

import (
	"context"
	"time"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/pkg/events"
)

// ScoreRecord is everything one recorded calculation produced.
type ScoreRecord struct {
	Score  model.RiskScore
	Alerts []model.RiskAlert
	Events []events.DomainEvent
}

// ScoreSink receives recorded scores and alert state changes after they have
// been committed to the in-memory history. Implementations must not retain
// the slices they are given.
type ScoreSink interface {
	// RecordScore persists or forwards a newly recorded score with the alerts
	// it raised.
	RecordScore(ctx context.Context, rec ScoreRecord) error

	// RecordAcknowledgement mirrors an alert acknowledgement.
	RecordAcknowledgement(ctx context.Context, alert model.RiskAlert, evt events.DomainEvent) error
}

// EventPublisher sends domain events to the messaging infrastructure.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, evts ...events.DomainEvent) error
}

// Metrics records engine-level measurements.
type Metrics interface {
	ScoreRecorded(ctx context.Context, score model.RiskScore, elapsed time.Duration)
	AlertRaised(ctx context.Context, alert model.RiskAlert)
	SinkFailed(ctx context.Context, sink string)
	ModelTrained(ctx context.Context, ok bool, samples int)
}
