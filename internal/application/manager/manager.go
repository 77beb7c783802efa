// Package manager orchestrates the risk calculators. It owns the calculator
// registry, the append-only score history and alert log, and the queries
// built on them.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/peacemap/riskengine/internal/domain/event"
	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/port"
	"github.com/peacemap/riskengine/internal/domain/service"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
	"github.com/peacemap/riskengine/pkg/events"
)

var (
	// ErrCalculatorUnavailable is returned when a calculator kind is not
	// registered.
	ErrCalculatorUnavailable = errors.New("risk calculator not available")

	// ErrNotInitialized is returned by scoring calls made before Initialize.
	ErrNotInitialized = errors.New("risk manager not initialized")

	// ErrAlertNotFound is returned when acknowledging an unknown alert.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrUnsupportedFormat is returned by Export for unknown formats.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// Manager is the single entry point to risk scoring.
type Manager struct {
	now         func() time.Time
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     port.Metrics
	calculators map[valueobject.CalculatorKind]service.Calculator
	anomaly     *service.AnomalyDetector
	sinks       []port.ScoreSink
	overrides   []service.Calculator
	history     []model.RiskScore
	alerts      []model.RiskAlert
	thresholds  AlertThresholds
	limit       int
	mu          sync.RWMutex
	initialized atomic.Bool
}

// New builds a Manager and its calculator registry from cfg.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.AlertThresholds == (AlertThresholds{}) {
		cfg.AlertThresholds = DefaultAlertThresholds()
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to configure risk manager: %w", err)
	}

	m := &Manager{
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
		tracer:     noopTracer(),
		metrics:    noopMetrics{},
		thresholds: cfg.AlertThresholds,
		limit:      cfg.HistoryLimit,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "risk_manager"))
	m.calculators = m.buildRegistry(cfg)

	m.logger.Info("risk calculators registered", slog.Int("count", len(m.calculators)))
	return m, nil
}

func (m *Manager) buildRegistry(cfg Config) map[valueobject.CalculatorKind]service.Calculator {
	calcOpts := []service.Option{service.WithClock(m.now), service.WithLogger(m.logger)}

	registry := map[valueobject.CalculatorKind]service.Calculator{}
	if cfg.Enabled(valueobject.CalculatorComposite) {
		registry[valueobject.CalculatorComposite] = service.NewCompositeCalculator(cfg.Composite, calcOpts...)
	}
	if cfg.Enabled(valueobject.CalculatorRegional) {
		registry[valueobject.CalculatorRegional] = service.NewRegionalCalculator(cfg.Regional, calcOpts...)
	}
	if cfg.Enabled(valueobject.CalculatorSupplier) {
		registry[valueobject.CalculatorSupplier] = service.NewSupplierCalculator(cfg.Supplier, calcOpts...)
	}
	if cfg.Enabled(valueobject.CalculatorAnomaly) {
		registry[valueobject.CalculatorAnomaly] = service.NewAnomalyDetector(cfg.Anomaly, calcOpts...)
	}
	for _, calc := range m.overrides {
		registry[calc.Kind()] = calc
	}

	if det, ok := registry[valueobject.CalculatorAnomaly].(*service.AnomalyDetector); ok {
		m.anomaly = det
	}
	return registry
}

// Initialize initializes every registered calculator concurrently. Scoring
// calls are rejected until it succeeds.
func (m *Manager) Initialize(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, calc := range m.calculators {
		g.Go(func() error {
			if err := calc.Initialize(ctx); err != nil {
				return fmt.Errorf("failed to initialize %s calculator: %w", calc.Kind(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.initialized.Store(true)
	m.logger.Info("risk manager initialized")
	return nil
}

// Ready reports whether Initialize has completed.
func (m *Manager) Ready() bool {
	return m.initialized.Load()
}

// Kinds returns the registered calculator kinds in registry order.
func (m *Manager) Kinds() []valueobject.CalculatorKind {
	kinds := make([]valueobject.CalculatorKind, 0, len(m.calculators))
	for _, k := range valueobject.CalculatorKinds() {
		if _, ok := m.calculators[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// CalculateCompositeRisk scores an event collection.
func (m *Manager) CalculateCompositeRisk(ctx context.Context, req service.Request) (model.RiskScore, error) {
	return m.calculate(ctx, valueobject.CalculatorComposite, req)
}

// CalculateRegionalRisk scores region.
func (m *Manager) CalculateRegionalRisk(ctx context.Context, region string, req service.Request) (model.RiskScore, error) {
	req.Region = region
	return m.calculate(ctx, valueobject.CalculatorRegional, req)
}

// CalculateSupplierRisk scores one supplier.
func (m *Manager) CalculateSupplierRisk(ctx context.Context, supplier model.Supplier) (model.RiskScore, error) {
	return m.calculate(ctx, valueobject.CalculatorSupplier, service.Request{Supplier: &supplier})
}

// DetectAnomalies runs the anomaly detector.
func (m *Manager) DetectAnomalies(ctx context.Context, req service.Request) (model.RiskScore, error) {
	return m.calculate(ctx, valueobject.CalculatorAnomaly, req)
}

// CalculateAllRisks runs every applicable calculator concurrently. Regional
// scoring needs a region and supplier scoring needs a supplier. A failing
// calculator is logged and left out of the result; the others still run.
func (m *Manager) CalculateAllRisks(ctx context.Context, req service.Request) map[valueobject.CalculatorKind]model.RiskScore {
	var (
		mu      sync.Mutex
		results = map[valueobject.CalculatorKind]model.RiskScore{}
		g       errgroup.Group
	)

	for _, kind := range m.Kinds() {
		switch {
		case kind == valueobject.CalculatorRegional && req.Region == "":
			continue
		case kind == valueobject.CalculatorSupplier && req.Supplier == nil:
			continue
		}

		g.Go(func() error {
			score, err := m.calculate(ctx, kind, req)
			if err != nil {
				m.logger.Error("risk calculation failed",
					slog.String("calculator", string(kind)),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			results[kind] = score
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// TrainAnomalyDetector fits the anomaly model. It returns false when there
// are too few usable samples, leaving any previous model in place.
func (m *Manager) TrainAnomalyDetector(ctx context.Context, samples []model.Sample) (bool, error) {
	if m.anomaly == nil {
		return false, fmt.Errorf("%w: %s", ErrCalculatorUnavailable, valueobject.CalculatorAnomaly)
	}

	_, span := m.tracer.Start(ctx, "risk.train_anomaly_detector",
		trace.WithAttributes(attribute.Int("samples", len(samples))))
	defer span.End()

	ok := m.anomaly.Train(ctx, samples)
	span.SetAttributes(attribute.Bool("trained", ok))
	m.metrics.ModelTrained(ctx, ok, len(samples))
	if !ok {
		m.logger.Warn("anomaly detector training skipped: insufficient samples", slog.Int("samples", len(samples)))
	}
	return ok, nil
}

func (m *Manager) calculate(ctx context.Context, kind valueobject.CalculatorKind, req service.Request) (model.RiskScore, error) {
	calc, ok := m.calculators[kind]
	if !ok {
		return model.RiskScore{}, fmt.Errorf("%w: %s", ErrCalculatorUnavailable, kind)
	}
	if !m.Ready() {
		return model.RiskScore{}, ErrNotInitialized
	}

	ctx, span := m.tracer.Start(ctx, "risk.calculate",
		trace.WithAttributes(
			attribute.String("calculator", string(kind)),
			attribute.String("region", req.Region),
		))
	defer span.End()

	start := time.Now()
	score, err := run(ctx, calc, req)
	if err != nil {
		span.RecordError(err)
		return model.RiskScore{}, err
	}
	elapsed := time.Since(start)

	rec := m.record(score)

	span.SetAttributes(
		attribute.Float64("overall_score", score.OverallScore),
		attribute.String("risk_level", score.RiskLevel.String()),
		attribute.Int("alerts", len(rec.Alerts)),
	)

	m.metrics.ScoreRecorded(ctx, score, elapsed)
	for _, a := range rec.Alerts {
		m.metrics.AlertRaised(ctx, a)
	}
	m.dispatch(ctx, rec)

	return score.Clone(), nil
}

// run shields the manager from a calculator that panics despite its own
// recovery; nothing is recorded for such a call.
func run(ctx context.Context, calc service.Calculator, req service.Request) (score model.RiskScore, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("calculator %s panicked: %v", calc.Kind(), r)
		}
	}()
	return calc.Calculate(ctx, req), nil
}

// record appends score to the history and raises its alerts under a single
// critical section.
func (m *Manager) record(score model.RiskScore) port.ScoreRecord {
	var collector events.EventCollector

	m.mu.Lock()
	m.history = append(m.history, score.Clone())
	if m.limit > 0 && len(m.history) > m.limit {
		m.history = append([]model.RiskScore(nil), m.history[len(m.history)-m.limit:]...)
	}
	collector.Record(event.NewScoreCalculated(score))

	alerts := m.evaluateAlerts(score)
	m.alerts = append(m.alerts, alerts...)
	m.mu.Unlock()

	for _, a := range alerts {
		collector.Record(event.NewAlertRaised(a))
	}
	return port.ScoreRecord{
		Score:  score.Clone(),
		Alerts: cloneAlerts(alerts),
		Events: collector.ClearEvents(),
	}
}

// evaluateAlerts raises a high-risk alert at the high threshold and, for the
// same score, a separate critical alert at the critical threshold.
func (m *Manager) evaluateAlerts(score model.RiskScore) []model.RiskAlert {
	var alerts []model.RiskAlert
	at := m.now()

	if score.OverallScore >= m.thresholds.High {
		alert := model.NewRiskAlert(score, valueobject.AlertTypeHighRisk, at)
		m.logger.Warn("high risk alert", slog.String("alert_id", alert.ID.String()), slog.String("message", alert.Message))
		alerts = append(alerts, alert)
	}
	if score.OverallScore >= m.thresholds.Critical {
		alert := model.NewRiskAlert(score, valueobject.AlertTypeCriticalRisk, at)
		m.logger.Error("critical risk alert", slog.String("alert_id", alert.ID.String()), slog.String("message", alert.Message))
		alerts = append(alerts, alert)
	}
	return alerts
}

// dispatch forwards rec to every sink. It runs outside the history lock and
// never rolls back the recorded score.
func (m *Manager) dispatch(ctx context.Context, rec port.ScoreRecord) {
	for _, sink := range m.sinks {
		if err := sink.RecordScore(ctx, rec); err != nil {
			name := fmt.Sprintf("%T", sink)
			m.metrics.SinkFailed(ctx, name)
			m.logger.Error("score sink failed",
				slog.String("sink", name),
				slog.String("score_id", rec.Score.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// AcknowledgeAlert marks an alert as acknowledged. Acknowledging an already
// acknowledged alert succeeds without changing it.
func (m *Manager) AcknowledgeAlert(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	idx := -1
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	changed := m.alerts[idx].Acknowledge(m.now())
	alert := m.alerts[idx].Clone()
	m.mu.Unlock()

	if !changed {
		return nil
	}
	m.logger.Info("alert acknowledged", slog.String("alert_id", id.String()))

	evt := event.NewAlertAcknowledged(alert)
	for _, sink := range m.sinks {
		if err := sink.RecordAcknowledgement(ctx, alert, evt); err != nil {
			name := fmt.Sprintf("%T", sink)
			m.metrics.SinkFailed(ctx, name)
			m.logger.Error("acknowledgement sink failed",
				slog.String("sink", name),
				slog.String("alert_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// History returns a snapshot of recorded scores, optionally filtered by
// calculator kind and region. Empty filters match everything.
func (m *Manager) History(kind valueobject.CalculatorKind, region string) []model.RiskScore {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.historyLocked(kind, region)
}

// snapshot copies the region's history and the whole alert log under one
// read lock, so a score and the alerts it raised are seen together.
func (m *Manager) snapshot(region string) ([]model.RiskScore, []model.RiskAlert) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.historyLocked("", region), cloneAlerts(m.alerts)
}

// historyLocked requires m.mu to be held.
func (m *Manager) historyLocked(kind valueobject.CalculatorKind, region string) []model.RiskScore {
	out := make([]model.RiskScore, 0, len(m.history))
	for _, s := range m.history {
		if kind != "" && s.Calculator != kind {
			continue
		}
		if region != "" && s.Region != region {
			continue
		}
		out = append(out, s.Clone())
	}
	return out
}

// Alerts returns a snapshot of every alert, acknowledged or not.
func (m *Manager) Alerts() []model.RiskAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAlerts(m.alerts)
}

// GetActiveAlerts returns unacknowledged alerts, optionally for one region.
func (m *Manager) GetActiveAlerts(region string) []model.RiskAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []model.RiskAlert{}
	for _, a := range m.alerts {
		if a.Acknowledged {
			continue
		}
		if region != "" && a.Region != region {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}

// CalculatorStatus reports each registered calculator's configuration.
func (m *Manager) CalculatorStatus() map[valueobject.CalculatorKind]service.Status {
	out := make(map[valueobject.CalculatorKind]service.Status, len(m.calculators))
	for kind, calc := range m.calculators {
		out[kind] = calc.Status()
	}
	return out
}

// Capabilities describes the anomaly detector.
func (m *Manager) Capabilities() (service.Capabilities, error) {
	if m.anomaly == nil {
		return service.Capabilities{}, fmt.Errorf("%w: %s", ErrCalculatorUnavailable, valueobject.CalculatorAnomaly)
	}
	return m.anomaly.Capabilities(), nil
}

func cloneAlerts(alerts []model.RiskAlert) []model.RiskAlert {
	out := make([]model.RiskAlert, len(alerts))
	for i, a := range alerts {
		out[i] = a.Clone()
	}
	return out
}
