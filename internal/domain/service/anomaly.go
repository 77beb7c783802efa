package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"math/rand"
	"slices"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// Anomaly factor names.
const (
	FactorStatisticalAnomaly = "statistical_anomaly"
	FactorTimeSeriesAnomaly  = "time_series_anomaly"
	FactorIsolationAnomaly   = "isolation_anomaly"
	FactorPatternDeviation   = "pattern_deviation"
)

// AnomalyThreshold is the overall score above which a result is flagged as an
// anomaly in its metadata.
const AnomalyThreshold = 70.0

const minTimeSeriesPoints = 3

// DefaultAnomalyWeights are the anomaly factor weights.
func DefaultAnomalyWeights() map[string]float64 {
	return map[string]float64{
		FactorStatisticalAnomaly: 0.30,
		FactorTimeSeriesAnomaly:  0.25,
		FactorIsolationAnomaly:   0.25,
		FactorPatternDeviation:   0.20,
	}
}

// AnomalyConfig configures the anomaly detector.
type AnomalyConfig struct {
	BaseConfig
	Contamination   float64
	WindowSize      int
	MinSamples      int
	ZScoreThreshold float64
	Trees           int
	Seed            int64
}

func (c *AnomalyConfig) applyDefaults() {
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		c.Contamination = 0.1
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 30
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 10
	}
	if c.ZScoreThreshold <= 0 {
		c.ZScoreThreshold = 2.0
	}
	if c.Trees <= 0 {
		c.Trees = 100
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
}

// anomalyModel is everything produced by one training run. It is replaced
// wholesale and never mutated after publication.
type anomalyModel struct {
	trainedAt time.Time
	forest    *isolationForest
	baselines Baselines
	features  []string
	scaler    standardScaler
	samples   int
}

// AnomalyDetector flags deviation from learned baselines. Detection takes a
// read lock; training builds a new model outside the lock and swaps it in.
type AnomalyDetector struct {
	*Base
	model *anomalyModel
	cfg   AnomalyConfig
	mu    sync.RWMutex
}

// NewAnomalyDetector creates an untrained AnomalyDetector.
func NewAnomalyDetector(cfg AnomalyConfig, opts ...Option) *AnomalyDetector {
	cfg.applyDefaults()
	return &AnomalyDetector{
		Base: newBase(valueobject.CalculatorAnomaly, DefaultAnomalyWeights(), cfg.BaseConfig, opts...),
		cfg:  cfg,
	}
}

// IsTrained reports whether a model has been fitted.
func (d *AnomalyDetector) IsTrained() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.model != nil
}

// Train fits the scaler, the isolation forest and the baselines on samples.
// It returns false, leaving any previous model in place, when fewer than
// MinSamples samples carry numeric metrics.
func (d *AnomalyDetector) Train(_ context.Context, samples []model.Sample) bool {
	usable := make([]model.Sample, 0, len(samples))
	for _, s := range samples {
		if len(s.Metrics) > 0 {
			usable = append(usable, s)
		}
	}
	if len(usable) < d.cfg.MinSamples {
		d.logger.Warn("insufficient training data",
			slog.Int("samples", len(usable)),
			slog.Int("min_samples", d.cfg.MinSamples),
		)
		return false
	}

	features := featureNames(usable)
	rows := featureMatrix(usable, features)
	scaler := fitScaler(rows)
	scaled := make([][]float64, len(rows))
	for i, r := range rows {
		scaled[i] = scaler.transform(r)
	}

	rng := rand.New(rand.NewSource(d.cfg.Seed))
	next := &anomalyModel{
		trainedAt: d.now(),
		forest:    fitIsolationForest(scaled, d.cfg.Trees, d.cfg.Contamination, rng),
		baselines: computeBaselines(usable),
		features:  features,
		scaler:    scaler,
		samples:   len(usable),
	}

	d.mu.Lock()
	d.model = next
	d.mu.Unlock()

	d.logger.Info("anomaly model trained",
		slog.Int("samples", next.samples),
		slog.Int("features", len(features)),
		slog.Int("baseline_regions", len(next.baselines.Regional)),
	)
	return true
}

// Calculate scores req.Metrics and req.TimeSeries for req.Region.
func (d *AnomalyDetector) Calculate(_ context.Context, req Request) (score model.RiskScore) {
	defer d.recoverEmpty(req.Region, &score)

	d.mu.RLock()
	m := d.model
	d.mu.RUnlock()

	factors := []model.RiskFactor{
		d.factor(FactorStatisticalAnomaly, "statistical_analysis", d.statistical(req.Metrics, m)),
	}
	if len(req.TimeSeries) > 0 {
		factors = append(factors, d.factor(FactorTimeSeriesAnomaly, "time_series_analysis", d.timeSeries(req.TimeSeries)))
	}
	if m != nil {
		factors = append(factors, d.factor(FactorIsolationAnomaly, "isolation_forest", d.isolation(req.Metrics, m)))
	}
	factors = append(factors, d.factor(FactorPatternDeviation, "pattern_analysis", d.pattern(req.Metrics, req.Region, m)))

	out := d.build(req.Region, factors, nil)
	out.Metadata["anomaly_detected"] = out.OverallScore > AnomalyThreshold
	out.Metadata["detection_methods"] = len(factors)
	out.Metadata["is_trained"] = m != nil
	return out
}

func (d *AnomalyDetector) statistical(metrics map[string]float64, m *anomalyModel) factorResult {
	if len(metrics) == 0 {
		return noData(0, 0, "No metrics supplied")
	}
	if m == nil {
		return noData(0, 0, "No baseline statistics")
	}

	var flagged []float64
	compared := 0
	for _, name := range sortedKeys(metrics) {
		base, ok := m.baselines.Global[name]
		if !ok || base.Std <= 0 {
			continue
		}
		compared++
		z := math.Abs(metrics[name]-base.Mean) / base.Std
		if z > d.cfg.ZScoreThreshold {
			flagged = append(flagged, math.Min(100, z*20))
		}
	}

	switch {
	case compared == 0:
		return noData(0, 0, "No baseline for supplied metrics")
	case len(flagged) == 0:
		return noData(0, 0.5, "No statistical anomalies")
	}

	value := stat.Mean(flagged, nil)
	return factorResult{
		value:      value,
		confidence: 0.8,
		note:       fmt.Sprintf("%d of %d metrics beyond %.1f standard deviations", len(flagged), compared, d.cfg.ZScoreThreshold),
	}
}

// timeSeries fits a linear trend over the most recent WindowSize points and
// scores the largest residual z-score.
func (d *AnomalyDetector) timeSeries(points []model.TimeSeriesPoint) factorResult {
	if len(points) < minTimeSeriesPoints {
		return noData(0, 0.3, "Insufficient time series data")
	}

	ordered := slices.Clone(points)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	if len(ordered) > d.cfg.WindowSize {
		ordered = ordered[len(ordered)-d.cfg.WindowSize:]
	}

	xs := make([]float64, len(ordered))
	ys := make([]float64, len(ordered))
	for i, p := range ordered {
		xs[i] = float64(i)
		ys[i] = p.Value
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	residuals := make([]float64, len(ys))
	for i := range ys {
		residuals[i] = ys[i] - (alpha + beta*xs[i])
	}

	_, std := stat.PopMeanStdDev(residuals, nil)
	tolerance := 1e-9 * math.Max(1, math.Abs(stat.Mean(ys, nil)))
	value := 0.0
	if std > tolerance && !math.IsNaN(std) {
		zs := make([]float64, len(residuals))
		for i, r := range residuals {
			zs[i] = math.Abs(r / std)
		}
		if maxZ := floats.Max(zs); maxZ > d.cfg.ZScoreThreshold {
			value = math.Min(100, maxZ*15)
		}
	}

	return factorResult{
		value:      value,
		confidence: 0.7,
		note:       fmt.Sprintf("Time series anomaly score %.1f over %d points", value, len(ordered)),
	}
}

func (d *AnomalyDetector) isolation(metrics map[string]float64, m *anomalyModel) factorResult {
	x := make([]float64, len(m.features))
	matched := 0
	for j, name := range m.features {
		if v, ok := metrics[name]; ok {
			x[j] = v
			matched++
		} else {
			x[j] = m.scaler.mean[j]
		}
	}
	if matched == 0 {
		return noData(0, 0, "No numeric features available")
	}

	decision := m.forest.decision(m.scaler.transform(x))
	value := 0.0
	if decision < 0 {
		value = math.Min(100, math.Abs(decision)*50)
	}
	return factorResult{
		value:      value,
		confidence: 0.8,
		note:       fmt.Sprintf("Isolation forest anomaly %.1f", value),
	}
}

func (d *AnomalyDetector) pattern(metrics map[string]float64, region string, m *anomalyModel) factorResult {
	if len(metrics) == 0 || m == nil {
		return noData(0, 0, "No baseline data for region")
	}
	base, ok := m.baselines.Regional[region]
	if !ok {
		return noData(0, 0, "No baseline data for region")
	}

	var deviations []float64
	for _, name := range sortedKeys(metrics) {
		s, ok := base[name]
		if !ok || s.Std <= 0 {
			continue
		}
		deviations = append(deviations, math.Abs(metrics[name]-s.Mean)/s.Std)
	}
	if len(deviations) == 0 {
		return noData(0, 0, "No comparable metrics")
	}

	value := math.Min(100, stat.Mean(deviations, nil)*25)
	return factorResult{
		value:      value,
		confidence: 0.7,
		note:       fmt.Sprintf("Pattern deviation %.1f", value),
	}
}

// ModelInfo describes the current trained state.
type ModelInfo struct {
	TrainedAt       *time.Time                   `json:"trained_at,omitempty" yaml:"trained_at,omitempty"`
	GlobalBaseline  map[string]model.MetricStats `json:"global_baseline,omitempty" yaml:"global_baseline,omitempty"`
	Features        []string                     `json:"features" yaml:"features"`
	BaselineRegions []string                     `json:"baseline_regions" yaml:"baseline_regions"`
	Samples         int                          `json:"samples" yaml:"samples"`
	IsTrained       bool                         `json:"is_trained" yaml:"is_trained"`
}

// ModelInfo returns a snapshot of the trained state.
func (d *AnomalyDetector) ModelInfo() ModelInfo {
	d.mu.RLock()
	m := d.model
	d.mu.RUnlock()

	if m == nil {
		return ModelInfo{Features: []string{}, BaselineRegions: []string{}}
	}
	at := m.trainedAt
	return ModelInfo{
		TrainedAt:       &at,
		GlobalBaseline:  maps.Clone(m.baselines.Global),
		Features:        slices.Clone(m.features),
		BaselineRegions: sortedKeys(m.baselines.Regional),
		Samples:         m.samples,
		IsTrained:       true,
	}
}

// Capabilities describes the detector's configuration.
type Capabilities struct {
	SupportedMethods []string `json:"supported_methods" yaml:"supported_methods"`
	Contamination    float64  `json:"contamination" yaml:"contamination"`
	ZScoreThreshold  float64  `json:"z_score_threshold" yaml:"z_score_threshold"`
	WindowSize       int      `json:"window_size" yaml:"window_size"`
	MinSamples       int      `json:"min_samples" yaml:"min_samples"`
	BaselineRegions  int      `json:"baseline_regions" yaml:"baseline_regions"`
	IsTrained        bool     `json:"is_trained" yaml:"is_trained"`
}

// Capabilities returns the detection methods and their thresholds.
func (d *AnomalyDetector) Capabilities() Capabilities {
	info := d.ModelInfo()
	return Capabilities{
		SupportedMethods: []string{
			FactorStatisticalAnomaly,
			FactorTimeSeriesAnomaly,
			FactorIsolationAnomaly,
			FactorPatternDeviation,
		},
		Contamination:   d.cfg.Contamination,
		ZScoreThreshold: d.cfg.ZScoreThreshold,
		WindowSize:      d.cfg.WindowSize,
		MinSamples:      d.cfg.MinSamples,
		BaselineRegions: len(info.BaselineRegions),
		IsTrained:       info.IsTrained,
	}
}
