package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/port"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
	"github.com/peacemap/riskengine/pkg/events"
	pgutil "github.com/peacemap/riskengine/pkg/postgres"
)

// ErrAlertNotFound is returned when an acknowledgement targets an alert that
// was never persisted.
var ErrAlertNotFound = errors.New("alert not found")

// ScoreRepository persists scores, alerts and their domain events. It
// implements port.ScoreSink and events.OutboxRepository.
type ScoreRepository struct {
	pool  *pgxpool.Pool
	topic string
}

var (
	_ port.ScoreSink          = (*ScoreRepository)(nil)
	_ events.OutboxRepository = (*ScoreRepository)(nil)
)

// NewScoreRepository creates a repository whose outbox rows target topic.
func NewScoreRepository(pool *pgxpool.Pool, topic string) *ScoreRepository {
	return &ScoreRepository{pool: pool, topic: topic}
}

// RecordScore stores the score, its alerts and outbox rows in one transaction.
func (r *ScoreRepository) RecordScore(ctx context.Context, rec port.ScoreRecord) error {
	return pgutil.WithTransaction(ctx, r.pool, pgutil.WriteTx, func(q pgutil.Querier) error {
		return writeScore(ctx, q, r.topic, rec)
	})
}

// RecordAcknowledgement mirrors an in-memory acknowledgement and enqueues its event.
func (r *ScoreRepository) RecordAcknowledgement(ctx context.Context, alert model.RiskAlert, evt events.DomainEvent) error {
	return pgutil.WithTransaction(ctx, r.pool, pgutil.WriteTx, func(q pgutil.Querier) error {
		return writeAcknowledgement(ctx, q, r.topic, alert, evt)
	})
}

func writeScore(ctx context.Context, q pgutil.Querier, topic string, rec port.ScoreRecord) error {
	s := rec.Score
	factors, err := json.Marshal(s.Factors)
	if err != nil {
		return fmt.Errorf("failed to encode factors: %w", err)
	}
	metadata, err := encodeMetadata(s.Metadata)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO risk_scores (
			id, calculator, region, overall_score, risk_level,
			confidence, factors, metadata, calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		s.ID, string(s.Calculator), s.Region, s.OverallScore, s.RiskLevel.String(),
		s.Confidence, factors, metadata, s.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save risk score: %w", err)
	}

	for _, a := range rec.Alerts {
		if err := insertAlert(ctx, q, a); err != nil {
			return err
		}
	}

	for _, e := range rec.Events {
		if err := insertOutbox(ctx, q, topic, e); err != nil {
			return err
		}
	}
	return nil
}

func insertAlert(ctx context.Context, q pgutil.Querier, a model.RiskAlert) error {
	metadata, err := encodeMetadata(a.Metadata)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO risk_alerts (
			id, score_id, region, alert_type, risk_level, risk_score,
			message, metadata, acknowledged, acknowledged_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.ScoreID, a.Region, string(a.AlertType), a.RiskLevel.String(), a.RiskScore,
		a.Message, metadata, a.Acknowledged, a.AcknowledgedAt, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save risk alert: %w", err)
	}
	return nil
}

func writeAcknowledgement(ctx context.Context, q pgutil.Querier, topic string, alert model.RiskAlert, evt events.DomainEvent) error {
	tag, err := q.Exec(ctx, `
		UPDATE risk_alerts
		SET acknowledged = TRUE, acknowledged_at = $2
		WHERE id = $1`,
		alert.ID, alert.AcknowledgedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, alert.ID)
	}

	if evt == nil {
		return nil
	}
	return insertOutbox(ctx, q, topic, evt)
}

func insertOutbox(ctx context.Context, q pgutil.Querier, topic string, e events.DomainEvent) error {
	entry, err := events.NewOutboxEntry(topic, e)
	if err != nil {
		return fmt.Errorf("failed to build outbox entry: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO outbox (
			id, aggregate_id, aggregate_type, event_type, topic, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.AggregateID, entry.AggregateType, entry.EventType,
		entry.Topic, entry.Payload, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save outbox entry: %w", err)
	}
	return nil
}

// FetchUnpublished returns up to batchSize unpublished outbox entries, oldest first.
func (r *ScoreRepository) FetchUnpublished(ctx context.Context, batchSize int) ([]events.OutboxEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, topic, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1`,
		batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var entries []events.OutboxEntry
	for rows.Next() {
		var e events.OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Topic, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps the given outbox entries as published.
func (r *ScoreRepository) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE outbox SET published_at = $2 WHERE id = ANY($1)`, ids, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark outbox published: %w", err)
	}
	return nil
}

// RecentScores returns the latest scores for a calculator, newest first. An
// empty region matches every region.
func (r *ScoreRepository) RecentScores(ctx context.Context, kind valueobject.CalculatorKind, region string, limit int) ([]model.RiskScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, calculator, region, overall_score, risk_level,
			confidence, factors, metadata, calculated_at
		FROM risk_scores
		WHERE calculator = $1 AND ($2 = '' OR region = $2)
		ORDER BY calculated_at DESC
		LIMIT $3`,
		string(kind), region, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk scores: %w", err)
	}
	defer rows.Close()

	var scores []model.RiskScore
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk scores: %w", err)
	}
	return scores, nil
}

func scanScore(row pgx.Row) (model.RiskScore, error) {
	var (
		s          model.RiskScore
		calculator string
		level      string
		factors    []byte
		metadata   []byte
	)
	err := row.Scan(&s.ID, &calculator, &s.Region, &s.OverallScore, &level,
		&s.Confidence, &factors, &metadata, &s.CalculatedAt)
	if err != nil {
		return model.RiskScore{}, fmt.Errorf("failed to scan risk score: %w", err)
	}

	kind, err := valueobject.CalculatorKindFromString(calculator)
	if err != nil {
		return model.RiskScore{}, fmt.Errorf("failed to parse calculator: %w", err)
	}
	s.Calculator = kind

	s.RiskLevel, err = valueobject.RiskLevelFromString(level)
	if err != nil {
		return model.RiskScore{}, fmt.Errorf("failed to parse risk level: %w", err)
	}
	if err := json.Unmarshal(factors, &s.Factors); err != nil {
		return model.RiskScore{}, fmt.Errorf("failed to decode factors: %w", err)
	}
	if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
		return model.RiskScore{}, fmt.Errorf("failed to decode metadata: %w", err)
	}
	s.CalculatedAt = s.CalculatedAt.UTC()
	return s, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return b, nil
}
