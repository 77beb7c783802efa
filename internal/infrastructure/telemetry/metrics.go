// Package telemetry records risk engine measurements through OpenTelemetry
// instruments and native Prometheus gauges.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/port"
)

const meterName = "github.com/peacemap/riskengine"

// Metrics implements port.Metrics.
type Metrics struct {
	scores       metric.Int64Counter
	duration     metric.Float64Histogram
	alerts       metric.Int64Counter
	sinkFailures metric.Int64Counter
	trainings    metric.Int64Counter

	lastScore    *prometheus.GaugeVec
	modelSamples prometheus.Gauge
}

var _ port.Metrics = (*Metrics)(nil)

// NewMetrics creates the instruments on provider and registers gauges on reg.
func NewMetrics(provider metric.MeterProvider, reg prometheus.Registerer) (*Metrics, error) {
	meter := provider.Meter(meterName)
	m := &Metrics{}

	var err error
	if m.scores, err = meter.Int64Counter("riskengine.scores",
		metric.WithDescription("Risk scores recorded, by calculator and level")); err != nil {
		return nil, fmt.Errorf("create scores counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("riskengine.score.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent in a calculator")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	if m.alerts, err = meter.Int64Counter("riskengine.alerts",
		metric.WithDescription("Alerts raised, by type")); err != nil {
		return nil, fmt.Errorf("create alerts counter: %w", err)
	}
	if m.sinkFailures, err = meter.Int64Counter("riskengine.sink.failures",
		metric.WithDescription("Score sink write failures")); err != nil {
		return nil, fmt.Errorf("create sink failures counter: %w", err)
	}
	if m.trainings, err = meter.Int64Counter("riskengine.anomaly.trainings",
		metric.WithDescription("Anomaly model training attempts")); err != nil {
		return nil, fmt.Errorf("create trainings counter: %w", err)
	}

	factory := promauto.With(reg)
	m.lastScore = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "riskengine",
		Name:      "last_overall_score",
		Help:      "Most recent overall score per calculator.",
	}, []string{"calculator"})
	m.modelSamples = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskengine",
		Name:      "anomaly_model_samples",
		Help:      "Samples behind the active anomaly model.",
	})

	return m, nil
}

// ScoreRecorded counts the score and observes its latency.
func (m *Metrics) ScoreRecorded(ctx context.Context, score model.RiskScore, elapsed time.Duration) {
	calc := attribute.String("calculator", string(score.Calculator))
	m.scores.Add(ctx, 1, metric.WithAttributes(calc, attribute.String("level", score.RiskLevel.String())))
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(calc))
	m.lastScore.WithLabelValues(string(score.Calculator)).Set(score.OverallScore)
}

// AlertRaised counts the alert.
func (m *Metrics) AlertRaised(ctx context.Context, alert model.RiskAlert) {
	m.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(alert.AlertType))))
}

// SinkFailed counts a failed sink write.
func (m *Metrics) SinkFailed(ctx context.Context, sink string) {
	m.sinkFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}

// ModelTrained counts a training attempt; successful ones update the sample gauge.
func (m *Metrics) ModelTrained(ctx context.Context, ok bool, samples int) {
	m.trainings.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
	if ok {
		m.modelSamples.Set(float64(samples))
	}
}
