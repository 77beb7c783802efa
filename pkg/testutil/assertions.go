package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peacemap/riskengine/internal/domain/model"
)

// AssertErrorContains checks that err contains the expected substring.
func AssertErrorContains(t *testing.T, err error, expected string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), expected)
	}
}

// AssertValidScore checks the range invariants every calculator output holds.
func AssertValidScore(t *testing.T, s model.RiskScore) {
	t.Helper()
	assert.GreaterOrEqual(t, s.OverallScore, 0.0, "overall score")
	assert.LessOrEqual(t, s.OverallScore, 100.0, "overall score")
	assert.GreaterOrEqual(t, s.Confidence, 0.0, "confidence")
	assert.LessOrEqual(t, s.Confidence, 1.0, "confidence")
	assert.False(t, s.RiskLevel.IsZero(), "risk level")
	for _, f := range s.Factors {
		assert.GreaterOrEqual(t, f.Value, 0.0, f.Name)
		assert.LessOrEqual(t, f.Value, 100.0, f.Name)
		assert.GreaterOrEqual(t, f.Confidence, 0.0, f.Name)
		assert.LessOrEqual(t, f.Confidence, 1.0, f.Name)
	}
}
