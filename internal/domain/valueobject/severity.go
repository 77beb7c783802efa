package valueobject

import (
	"fmt"
	"strings"
)

// Severity is the severity label attached to an ingested event.
type Severity struct {
	value string
}

var (
	SeverityLow      = Severity{value: "low"}
	SeverityMedium   = Severity{value: "medium"}
	SeverityHigh     = Severity{value: "high"}
	SeverityCritical = Severity{value: "critical"}
)

// SeverityFromString parses a severity label. Matching is case-insensitive.
func SeverityFromString(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return Severity{}, fmt.Errorf("invalid severity: %s", s)
	}
}

// String returns the string representation.
func (s Severity) String() string {
	return s.value
}

// Score returns the risk contribution of the severity.
// low=20, medium=50, high=80, critical=100. Unset returns 0.
func (s Severity) Score() float64 {
	switch s.value {
	case "low":
		return 20
	case "medium":
		return 50
	case "high":
		return 80
	case "critical":
		return 100
	default:
		return 0
	}
}

// IsZero returns true if the Severity has not been set.
func (s Severity) IsZero() bool {
	return s.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input leaves the
// severity unset.
func (s *Severity) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = Severity{}
		return nil
	}
	parsed, err := SeverityFromString(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
