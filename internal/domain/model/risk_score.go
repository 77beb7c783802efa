package model

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// RiskFactor is one named, weighted contribution to a score.
type RiskFactor struct {
	Name        string  `json:"name" yaml:"name"`
	Value       float64 `json:"value" yaml:"value"`
	Weight      float64 `json:"weight" yaml:"weight"`
	Description string  `json:"description" yaml:"description"`
	Source      string  `json:"source" yaml:"source"`
	Confidence  float64 `json:"confidence" yaml:"confidence"`
}

// RiskScore is the output of one calculator invocation. Scores are treated as
// immutable once built; use Clone before handing one to another owner.
type RiskScore struct {
	CalculatedAt time.Time                  `json:"calculated_at" yaml:"calculated_at"`
	Metadata     map[string]any             `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	RiskLevel    valueobject.RiskLevel      `json:"risk_level" yaml:"risk_level"`
	Calculator   valueobject.CalculatorKind `json:"calculator" yaml:"calculator"`
	Region       string                     `json:"region,omitempty" yaml:"region,omitempty"`
	Factors      []RiskFactor               `json:"factors" yaml:"factors"`
	OverallScore float64                    `json:"overall_score" yaml:"overall_score"`
	Confidence   float64                    `json:"confidence" yaml:"confidence"`
	ID           uuid.UUID                  `json:"id" yaml:"id"`
}

// EmptyRiskScore is the fail-soft result of a calculator that could not run:
// zero score, no factors, zero confidence, region preserved.
func EmptyRiskScore(kind valueobject.CalculatorKind, region string, at time.Time) RiskScore {
	return RiskScore{
		ID:           uuid.New(),
		Calculator:   kind,
		OverallScore: 0,
		RiskLevel:    valueobject.RiskLevelLow,
		Factors:      []RiskFactor{},
		Confidence:   0,
		CalculatedAt: at,
		Region:       region,
		Metadata:     map[string]any{},
	}
}

// Factor returns the factor with the given name.
func (s RiskScore) Factor(name string) (RiskFactor, bool) {
	for _, f := range s.Factors {
		if f.Name == name {
			return f, true
		}
	}
	return RiskFactor{}, false
}

// IsEmpty reports whether the score carries no factors.
func (s RiskScore) IsEmpty() bool {
	return len(s.Factors) == 0
}

// Clone returns a copy that shares no mutable state with s. Metadata values
// are copied shallowly.
func (s RiskScore) Clone() RiskScore {
	out := s
	out.Factors = slices.Clone(s.Factors)
	out.Metadata = maps.Clone(s.Metadata)
	return out
}
