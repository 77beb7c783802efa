package model

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// RiskAlert records that a score crossed an alert threshold. Alerts are never
// deleted; the only mutation is acknowledgement.
type RiskAlert struct {
	CreatedAt      time.Time             `json:"created_at" yaml:"created_at"`
	AcknowledgedAt *time.Time            `json:"acknowledged_at,omitempty" yaml:"acknowledged_at,omitempty"`
	Metadata       map[string]any        `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	RiskLevel      valueobject.RiskLevel `json:"risk_level" yaml:"risk_level"`
	Region         string                `json:"region" yaml:"region"`
	AlertType      valueobject.AlertType `json:"alert_type" yaml:"alert_type"`
	Message        string                `json:"message" yaml:"message"`
	RiskScore      float64               `json:"risk_score" yaml:"risk_score"`
	ID             uuid.UUID             `json:"id" yaml:"id"`
	ScoreID        uuid.UUID             `json:"score_id" yaml:"score_id"`
	Acknowledged   bool                  `json:"acknowledged" yaml:"acknowledged"`
}

// NewRiskAlert builds an unacknowledged alert for score.
func NewRiskAlert(score RiskScore, alertType valueobject.AlertType, at time.Time) RiskAlert {
	region := score.Region
	if region == "" {
		region = "unknown"
	}

	var message string
	switch alertType {
	case valueobject.AlertTypeCriticalRisk:
		message = fmt.Sprintf("CRITICAL risk detected in %s: %.1f", region, score.OverallScore)
	default:
		message = fmt.Sprintf("High risk detected in %s: %.1f", region, score.OverallScore)
	}

	return RiskAlert{
		ID:        uuid.New(),
		ScoreID:   score.ID,
		Region:    region,
		RiskScore: score.OverallScore,
		RiskLevel: score.RiskLevel,
		AlertType: alertType,
		Message:   message,
		CreatedAt: at,
		Metadata: map[string]any{
			"calculator": string(score.Calculator),
			"confidence": score.Confidence,
		},
	}
}

// Acknowledge marks the alert as handled. It returns false if the alert was
// already acknowledged, leaving the original timestamp in place.
func (a *RiskAlert) Acknowledge(at time.Time) bool {
	if a.Acknowledged {
		return false
	}
	a.Acknowledged = true
	a.AcknowledgedAt = &at
	return true
}

// Clone returns a copy that shares no mutable state with a.
func (a RiskAlert) Clone() RiskAlert {
	out := a
	out.Metadata = maps.Clone(a.Metadata)
	if a.AcknowledgedAt != nil {
		at := *a.AcknowledgedAt
		out.AcknowledgedAt = &at
	}
	return out
}
