package model

import "time"

// TimeSeriesPoint is one observation of a metric over time.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp" validate:"required"`
	Value     float64   `json:"value" yaml:"value"`
}

// Sample is a historical multi-metric observation used to train the anomaly
// detector. Region may be empty.
type Sample struct {
	Metrics map[string]float64 `json:"metrics" yaml:"metrics"`
	Region  string             `json:"region,omitempty" yaml:"region,omitempty"`
}

// MetricStats summarizes one metric's historical distribution. Std is the
// population standard deviation.
type MetricStats struct {
	Mean  float64 `json:"mean" yaml:"mean"`
	Std   float64 `json:"std" yaml:"std"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Count int     `json:"count" yaml:"count"`
}
