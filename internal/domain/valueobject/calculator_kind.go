package valueobject

import "fmt"

// CalculatorKind identifies one of the fixed set of risk calculators.
type CalculatorKind string

const (
	CalculatorComposite CalculatorKind = "composite"
	CalculatorRegional  CalculatorKind = "regional"
	CalculatorSupplier  CalculatorKind = "supplier"
	CalculatorAnomaly   CalculatorKind = "anomaly"
)

// CalculatorKinds returns every kind in registry order.
func CalculatorKinds() []CalculatorKind {
	return []CalculatorKind{CalculatorComposite, CalculatorRegional, CalculatorSupplier, CalculatorAnomaly}
}

// CalculatorKindFromString validates a kind name.
func CalculatorKindFromString(s string) (CalculatorKind, error) {
	for _, k := range CalculatorKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("invalid calculator kind: %s", s)
}

// AlertType labels the threshold an alert crossed.
type AlertType string

const (
	AlertTypeHighRisk     AlertType = "high_risk"
	AlertTypeCriticalRisk AlertType = "critical_risk"
)
