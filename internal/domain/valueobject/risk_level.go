package valueobject

import (
	"fmt"
	"strings"
)

// RiskLevel is an immutable value object representing the risk classification.
type RiskLevel struct {
	value string
}

var (
	RiskLevelLow      = RiskLevel{value: "LOW"}
	RiskLevelMedium   = RiskLevel{value: "MEDIUM"}
	RiskLevelHigh     = RiskLevel{value: "HIGH"}
	RiskLevelCritical = RiskLevel{value: "CRITICAL"}
)

// AllRiskLevels lists the levels in ascending order of severity.
func AllRiskLevels() []RiskLevel {
	return []RiskLevel{RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical}
}

// RiskLevelFromString reconstructs a RiskLevel from its string representation.
// Matching is case-insensitive.
func RiskLevelFromString(s string) (RiskLevel, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for _, level := range AllRiskLevels() {
		if level.value == want {
			return level, nil
		}
	}
	return RiskLevel{}, fmt.Errorf("invalid risk level: %s", s)
}

// String returns the string representation.
func (r RiskLevel) String() string {
	return r.value
}

// Rank orders levels: LOW=1 through CRITICAL=4. The zero value ranks 0.
func (r RiskLevel) Rank() int {
	switch r.value {
	case "LOW":
		return 1
	case "MEDIUM":
		return 2
	case "HIGH":
		return 3
	case "CRITICAL":
		return 4
	default:
		return 0
	}
}

// IsZero returns true if the RiskLevel has not been set.
func (r RiskLevel) IsZero() bool {
	return r.value == ""
}

// Equal checks equality with another RiskLevel.
func (r RiskLevel) Equal(other RiskLevel) bool {
	return r.value == other.value
}

// MarshalText implements encoding.TextMarshaler so the level serializes as its
// string value in JSON and YAML.
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RiskLevel) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*r = RiskLevel{}
		return nil
	}
	level, err := RiskLevelFromString(string(text))
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// Thresholds holds the risk band boundaries. Low and Medium are the upper
// bounds of the LOW and MEDIUM bands; High and Critical are the lower bounds of
// the HIGH and CRITICAL bands.
type Thresholds struct {
	Low      float64 `json:"low" yaml:"low" mapstructure:"low"`
	Medium   float64 `json:"medium" yaml:"medium" mapstructure:"medium"`
	High     float64 `json:"high" yaml:"high" mapstructure:"high"`
	Critical float64 `json:"critical" yaml:"critical" mapstructure:"critical"`
}

// DefaultThresholds returns the 30/50/70/90 band boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 30, Medium: 50, High: 70, Critical: 90}
}

// IsZero reports whether no threshold has been configured.
func (t Thresholds) IsZero() bool {
	return t == Thresholds{}
}

// Validate checks the thresholds are non-decreasing.
func (t Thresholds) Validate() error {
	if t.Low > t.Medium || t.Medium > t.High || t.High > t.Critical {
		return fmt.Errorf("thresholds must be non-decreasing: low=%v medium=%v high=%v critical=%v",
			t.Low, t.Medium, t.High, t.Critical)
	}
	return nil
}

// Classify maps a score to a level. Thresholds are checked from the highest
// down and the first >= match wins, so with defaults 30, 50, 70 and 90 land on
// MEDIUM, HIGH, HIGH and CRITICAL.
func (t Thresholds) Classify(score float64) RiskLevel {
	switch {
	case score >= t.Critical:
		return RiskLevelCritical
	case score >= t.High, score >= t.Medium:
		return RiskLevelHigh
	case score >= t.Low:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}
