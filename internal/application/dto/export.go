package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// FactorRecord is the flat form of a risk factor.
type FactorRecord struct {
	Name        string  `json:"name" yaml:"name"`
	Value       float64 `json:"value" yaml:"value"`
	Weight      float64 `json:"weight" yaml:"weight"`
	Description string  `json:"description" yaml:"description"`
	Source      string  `json:"source" yaml:"source"`
	Confidence  float64 `json:"confidence" yaml:"confidence"`
}

// ScoreRecord is the flat export form of a risk score.
type ScoreRecord struct {
	CalculatedAt time.Time      `json:"calculated_at" yaml:"calculated_at"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	ID           string         `json:"id" yaml:"id"`
	Calculator   string         `json:"calculator" yaml:"calculator"`
	Region       string         `json:"region,omitempty" yaml:"region,omitempty"`
	RiskLevel    string         `json:"risk_level" yaml:"risk_level"`
	Factors      []FactorRecord `json:"factors" yaml:"factors"`
	OverallScore float64        `json:"overall_score" yaml:"overall_score"`
	Confidence   float64        `json:"confidence" yaml:"confidence"`
}

// AlertRecord is the flat export form of a risk alert.
type AlertRecord struct {
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty" yaml:"acknowledged_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	ID             string         `json:"id" yaml:"id"`
	ScoreID        string         `json:"score_id" yaml:"score_id"`
	Region         string         `json:"region" yaml:"region"`
	RiskLevel      string         `json:"risk_level" yaml:"risk_level"`
	AlertType      string         `json:"alert_type" yaml:"alert_type"`
	Message        string         `json:"message" yaml:"message"`
	RiskScore      float64        `json:"risk_score" yaml:"risk_score"`
	Acknowledged   bool           `json:"acknowledged" yaml:"acknowledged"`
}

// ExportDocument is the document produced by an export.
type ExportDocument struct {
	ExportedAt  time.Time     `json:"exported_at" yaml:"exported_at"`
	RiskHistory []ScoreRecord `json:"risk_history" yaml:"risk_history"`
	Alerts      []AlertRecord `json:"alerts" yaml:"alerts"`
}

// FromScore flattens a score.
func FromScore(s model.RiskScore) ScoreRecord {
	factors := make([]FactorRecord, len(s.Factors))
	for i, f := range s.Factors {
		factors[i] = FactorRecord{
			Name:        f.Name,
			Value:       f.Value,
			Weight:      f.Weight,
			Description: f.Description,
			Source:      f.Source,
			Confidence:  f.Confidence,
		}
	}
	return ScoreRecord{
		ID:           s.ID.String(),
		Calculator:   string(s.Calculator),
		Region:       s.Region,
		OverallScore: s.OverallScore,
		RiskLevel:    s.RiskLevel.String(),
		Confidence:   s.Confidence,
		CalculatedAt: s.CalculatedAt.UTC(),
		Factors:      factors,
		Metadata:     s.Metadata,
	}
}

// ToModel restores a score from its flat form.
func (r ScoreRecord) ToModel() (model.RiskScore, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return model.RiskScore{}, err
	}
	kind, err := valueobject.CalculatorKindFromString(r.Calculator)
	if err != nil {
		return model.RiskScore{}, err
	}
	level, err := valueobject.RiskLevelFromString(r.RiskLevel)
	if err != nil {
		return model.RiskScore{}, err
	}

	factors := make([]model.RiskFactor, len(r.Factors))
	for i, f := range r.Factors {
		factors[i] = model.RiskFactor(f)
	}
	return model.RiskScore{
		ID:           id,
		Calculator:   kind,
		Region:       r.Region,
		OverallScore: r.OverallScore,
		RiskLevel:    level,
		Confidence:   r.Confidence,
		CalculatedAt: r.CalculatedAt,
		Factors:      factors,
		Metadata:     r.Metadata,
	}, nil
}

// FromAlert flattens an alert.
func FromAlert(a model.RiskAlert) AlertRecord {
	return AlertRecord{
		ID:             a.ID.String(),
		ScoreID:        a.ScoreID.String(),
		Region:         a.Region,
		RiskScore:      a.RiskScore,
		RiskLevel:      a.RiskLevel.String(),
		AlertType:      string(a.AlertType),
		Message:        a.Message,
		CreatedAt:      a.CreatedAt.UTC(),
		AcknowledgedAt: a.AcknowledgedAt,
		Acknowledged:   a.Acknowledged,
		Metadata:       a.Metadata,
	}
}

// FromScores flattens a slice of scores.
func FromScores(scores []model.RiskScore) []ScoreRecord {
	out := make([]ScoreRecord, len(scores))
	for i, s := range scores {
		out[i] = FromScore(s)
	}
	return out
}

// FromAlerts flattens a slice of alerts.
func FromAlerts(alerts []model.RiskAlert) []AlertRecord {
	out := make([]AlertRecord, len(alerts))
	for i, a := range alerts {
		out[i] = FromAlert(a)
	}
	return out
}
