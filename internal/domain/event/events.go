package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/pkg/events"
)

const (
	// EventTypeScoreCalculated is emitted when a score is appended to the history.
	EventTypeScoreCalculated = "risk.score.calculated"

	// EventTypeAlertRaised is emitted for every alert a score triggers.
	EventTypeAlertRaised = "risk.alert.raised"

	// EventTypeAlertAcknowledged is emitted the first time an alert is acknowledged.
	EventTypeAlertAcknowledged = "risk.alert.acknowledged"

	AggregateTypeRiskScore = "RiskScore"
	AggregateTypeRiskAlert = "RiskAlert"
)

// ScoreCalculated is published after a risk score has been recorded.
type ScoreCalculated struct {
	events.BaseEvent
	CalculatedAt time.Time `json:"calculated_at"`
	Calculator   string    `json:"calculator"`
	Region       string    `json:"region,omitempty"`
	RiskLevel    string    `json:"risk_level"`
	OverallScore float64   `json:"overall_score"`
	Confidence   float64   `json:"confidence"`
	ScoreID      uuid.UUID `json:"score_id"`
}

// NewScoreCalculated creates a ScoreCalculated event for score.
func NewScoreCalculated(score model.RiskScore) ScoreCalculated {
	e := ScoreCalculated{
		ScoreID:      score.ID,
		Calculator:   string(score.Calculator),
		Region:       score.Region,
		OverallScore: score.OverallScore,
		RiskLevel:    score.RiskLevel.String(),
		Confidence:   score.Confidence,
		CalculatedAt: score.CalculatedAt,
	}
	payload, _ := json.Marshal(e)
	e.BaseEvent = events.NewBaseEventAt(EventTypeScoreCalculated, score.ID, AggregateTypeRiskScore, payload, score.CalculatedAt)
	return e
}

// AlertRaised is published when a score crosses an alert threshold.
type AlertRaised struct {
	events.BaseEvent
	CreatedAt time.Time `json:"created_at"`
	Region    string    `json:"region"`
	AlertType string    `json:"alert_type"`
	RiskLevel string    `json:"risk_level"`
	Message   string    `json:"message"`
	RiskScore float64   `json:"risk_score"`
	AlertID   uuid.UUID `json:"alert_id"`
	ScoreID   uuid.UUID `json:"score_id"`
}

// NewAlertRaised creates an AlertRaised event for alert.
func NewAlertRaised(alert model.RiskAlert) AlertRaised {
	e := AlertRaised{
		AlertID:   alert.ID,
		ScoreID:   alert.ScoreID,
		Region:    alert.Region,
		AlertType: string(alert.AlertType),
		RiskLevel: alert.RiskLevel.String(),
		RiskScore: alert.RiskScore,
		Message:   alert.Message,
		CreatedAt: alert.CreatedAt,
	}
	payload, _ := json.Marshal(e)
	e.BaseEvent = events.NewBaseEventAt(EventTypeAlertRaised, alert.ID, AggregateTypeRiskAlert, payload, alert.CreatedAt)
	return e
}

// AlertAcknowledged is published when an operator acknowledges an alert.
type AlertAcknowledged struct {
	events.BaseEvent
	AcknowledgedAt time.Time `json:"acknowledged_at"`
	Region         string    `json:"region"`
	AlertID        uuid.UUID `json:"alert_id"`
}

// NewAlertAcknowledged creates an AlertAcknowledged event. The alert must
// already be acknowledged.
func NewAlertAcknowledged(alert model.RiskAlert) AlertAcknowledged {
	at := alert.CreatedAt
	if alert.AcknowledgedAt != nil {
		at = *alert.AcknowledgedAt
	}
	e := AlertAcknowledged{
		AlertID:        alert.ID,
		Region:         alert.Region,
		AcknowledgedAt: at,
	}
	payload, _ := json.Marshal(e)
	e.BaseEvent = events.NewBaseEventAt(EventTypeAlertAcknowledged, alert.ID, AggregateTypeRiskAlert, payload, at)
	return e
}
