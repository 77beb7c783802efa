package manager

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/port"
	"github.com/peacemap/riskengine/internal/domain/service"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// AlertThresholds are the overall scores at which alerts are raised.
type AlertThresholds struct {
	High     float64 `json:"high" yaml:"high" mapstructure:"high"`
	Critical float64 `json:"critical" yaml:"critical" mapstructure:"critical"`
}

// DefaultAlertThresholds returns high=70, critical=90.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{High: 70, Critical: 90}
}

// Config configures the manager and the calculators it owns.
type Config struct {
	Composite       service.CompositeConfig
	Regional        service.RegionalConfig
	Supplier        service.SupplierConfig
	Anomaly         service.AnomalyConfig
	Disabled        []valueobject.CalculatorKind
	AlertThresholds AlertThresholds
	// HistoryLimit caps the in-memory score history; 0 keeps every score.
	HistoryLimit int
}

// Enabled reports whether kind is registered under this configuration.
func (c Config) Enabled(kind valueobject.CalculatorKind) bool {
	return !slices.Contains(c.Disabled, kind)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used by the manager and its calculators.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTracer sets the tracer used for calculation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics port.Metrics) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithSinks adds score sinks. Sinks are called in order after every recorded
// score and alert acknowledgement.
func WithSinks(sinks ...port.ScoreSink) Option {
	return func(m *Manager) {
		for _, s := range sinks {
			if s != nil {
				m.sinks = append(m.sinks, s)
			}
		}
	}
}

// WithCalculator registers calc in place of the configured calculator of the
// same kind.
func WithCalculator(calc service.Calculator) Option {
	return func(m *Manager) {
		if calc != nil {
			m.overrides = append(m.overrides, calc)
		}
	}
}

func (c Config) validate() error {
	if c.AlertThresholds.High < 0 || c.AlertThresholds.Critical < c.AlertThresholds.High {
		return fmt.Errorf("alert thresholds must satisfy 0 <= high <= critical, got high=%.1f critical=%.1f",
			c.AlertThresholds.High, c.AlertThresholds.Critical)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history limit must be non-negative, got %d", c.HistoryLimit)
	}
	return nil
}

// noopTracer is used when no tracer is configured.
func noopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("riskengine/manager")
}

type noopMetrics struct{}

func (noopMetrics) ScoreRecorded(_ context.Context, _ model.RiskScore, _ time.Duration) {}
func (noopMetrics) AlertRaised(_ context.Context, _ model.RiskAlert)                    {}
func (noopMetrics) SinkFailed(_ context.Context, _ string)                              {}
func (noopMetrics) ModelTrained(_ context.Context, _ bool, _ int)                       {}
