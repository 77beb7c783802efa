package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// DefaultDecayFactor is the per-day temporal decay multiplier.
const DefaultDecayFactor = 0.95

// Request carries every input a calculator may read. Each calculator reads
// only the fields relevant to it and treats the rest as absent.
type Request struct {
	Bounds         *model.Bounds
	Supplier       *model.Supplier
	Economic       map[string]float64
	Political      map[string]float64
	Infrastructure map[string]float64
	Metrics        map[string]float64
	Region         string
	Events         []model.Event
	Ports          []model.Port
	TimeSeries     []model.TimeSeriesPoint
	WindowDays     int
}

// Calculator is implemented by every risk calculator. Calculate never returns
// an error: missing or malformed inputs degrade to low-confidence factors.
type Calculator interface {
	Kind() valueobject.CalculatorKind
	Initialize(ctx context.Context) error
	Calculate(ctx context.Context, req Request) model.RiskScore
	Status() Status
}

// Status describes a calculator's configuration.
type Status struct {
	Weights     map[string]float64     `json:"weights" yaml:"weights"`
	Kind        string                 `json:"kind" yaml:"kind"`
	Thresholds  valueobject.Thresholds `json:"thresholds" yaml:"thresholds"`
	Initialized bool                   `json:"initialized" yaml:"initialized"`
}

// BaseConfig is the configuration shared by all calculators.
type BaseConfig struct {
	Weights     map[string]float64
	Thresholds  valueobject.Thresholds
	DecayFactor float64
}

// Option customizes a calculator.
type Option func(*Base)

// WithClock replaces the wall clock used for timestamps and event ages.
func WithClock(now func() time.Time) Option {
	return func(b *Base) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the calculator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// factorResult is the outcome of a single factor computation before it is
// weighted and clamped.
type factorResult struct {
	note       string
	value      float64
	confidence float64
}

func noData(value, confidence float64, note string) factorResult {
	return factorResult{value: value, confidence: confidence, note: note}
}

// Base implements the numeric machinery shared by all calculators.
type Base struct {
	now         func() time.Time
	logger      *slog.Logger
	weights     map[string]float64
	kind        valueobject.CalculatorKind
	thresholds  valueobject.Thresholds
	decayFactor float64
	initialized atomic.Bool
}

// newBase merges configured weights over defaults. A configured weight wins
// for its factor name; unnamed factors keep their default.
func newBase(kind valueobject.CalculatorKind, defaults map[string]float64, cfg BaseConfig, opts ...Option) *Base {
	weights := maps.Clone(defaults)
	maps.Copy(weights, cfg.Weights)

	thresholds := cfg.Thresholds
	if thresholds.IsZero() {
		thresholds = valueobject.DefaultThresholds()
	}

	decay := cfg.DecayFactor
	if decay <= 0 || decay >= 1 {
		decay = DefaultDecayFactor
	}

	b := &Base{
		kind:        kind,
		weights:     weights,
		thresholds:  thresholds,
		decayFactor: decay,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(slog.String("calculator", string(kind)))
	return b
}

// Kind returns the calculator kind.
func (b *Base) Kind() valueobject.CalculatorKind {
	return b.kind
}

// Initialize marks the calculator ready.
func (b *Base) Initialize(_ context.Context) error {
	b.initialized.Store(true)
	b.logger.Debug("calculator initialized")
	return nil
}

// Status reports the calculator's weights and thresholds.
func (b *Base) Status() Status {
	return Status{
		Kind:        string(b.kind),
		Initialized: b.initialized.Load(),
		Weights:     maps.Clone(b.weights),
		Thresholds:  b.thresholds,
	}
}

// Weight returns the configured weight for a factor name.
func (b *Base) Weight(name string) float64 {
	return b.weights[name]
}

// RiskLevel classifies score with the calculator's thresholds.
func (b *Base) RiskLevel(score float64) valueobject.RiskLevel {
	return b.thresholds.Classify(score)
}

// WeightedScore returns Σ(value·weight)/Σweight and the unweighted mean of
// factor confidences. An empty set or zero total weight yields (0, 0).
func WeightedScore(factors []model.RiskFactor) (float64, float64) {
	if len(factors) == 0 {
		return 0, 0
	}

	var totalWeight, weighted, confidence float64
	for _, f := range factors {
		totalWeight += f.Weight
		weighted += f.Value * f.Weight
		confidence += f.Confidence
	}
	if totalWeight == 0 {
		return 0, 0
	}

	return Normalize(weighted/totalWeight, 0, 100), confidence / float64(len(factors))
}

// Normalize clamps value into [lo, hi]. NaN maps to lo.
func Normalize(value, lo, hi float64) float64 {
	if math.IsNaN(value) {
		return lo
	}
	return math.Max(lo, math.Min(hi, value))
}

// Decay applies exponential temporal decay: score·factor^days. Non-positive
// ages return score unchanged.
func Decay(score float64, daysOld int, factor float64) float64 {
	if daysOld <= 0 {
		return score
	}
	return score * math.Pow(factor, float64(daysOld))
}

// decay uses the calculator's configured factor.
func (b *Base) decay(score float64, daysOld int) float64 {
	return Decay(score, daysOld, b.decayFactor)
}

// factor turns a result into a weighted, clamped RiskFactor.
func (b *Base) factor(name, source string, r factorResult) model.RiskFactor {
	return model.RiskFactor{
		Name:        name,
		Value:       Normalize(r.value, 0, 100),
		Weight:      b.weights[name],
		Description: r.note,
		Source:      source,
		Confidence:  Normalize(r.confidence, 0, 1),
	}
}

// build packages factors into a score.
func (b *Base) build(region string, factors []model.RiskFactor, metadata map[string]any) model.RiskScore {
	overall, confidence := WeightedScore(factors)
	if metadata == nil {
		metadata = map[string]any{}
	}
	return model.RiskScore{
		ID:           uuid.New(),
		Calculator:   b.kind,
		OverallScore: overall,
		RiskLevel:    b.RiskLevel(overall),
		Factors:      factors,
		Confidence:   confidence,
		CalculatedAt: b.now(),
		Region:       region,
		Metadata:     metadata,
	}
}

// recoverEmpty converts a panic inside Calculate into the empty score.
// It must be deferred directly.
func (b *Base) recoverEmpty(region string, out *model.RiskScore) {
	if r := recover(); r != nil {
		b.logger.Error("risk calculation failed",
			slog.String("region", region),
			slog.String("error", fmt.Sprint(r)),
		)
		*out = model.EmptyRiskScore(b.kind, region, b.now())
	}
}

func ratio(n, full float64) float64 {
	return math.Min(1, n/full)
}
