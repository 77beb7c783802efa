package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/service"
)

func newDetector() *service.AnomalyDetector {
	return service.NewAnomalyDetector(service.AnomalyConfig{Trees: 50}, service.WithClock(fixedClock))
}

func trainingSamples(n int) []model.Sample {
	samples := make([]model.Sample, n)
	for i := range samples {
		region := "north"
		if i >= n/2 {
			region = "south"
		}
		samples[i] = model.Sample{
			Region: region,
			Metrics: map[string]float64{
				"event_rate": 10 + float64(i%3),
				"sentiment":  -0.1 * float64(i%2),
			},
		}
	}
	return samples
}

func TestAnomalyDetector_TrainRequiresMinSamples(t *testing.T) {
	det := newDetector()

	assert.False(t, det.Train(context.Background(), trainingSamples(9)))
	assert.False(t, det.IsTrained())

	score := det.Calculate(context.Background(), service.Request{Metrics: map[string]float64{"event_rate": 11}})
	_, ok := score.Factor(service.FactorIsolationAnomaly)
	assert.False(t, ok)
	assert.Equal(t, false, score.Metadata["is_trained"])
}

func TestAnomalyDetector_TrainedAddsIsolationFactor(t *testing.T) {
	det := newDetector()
	require.True(t, det.Train(context.Background(), trainingSamples(20)))
	assert.True(t, det.IsTrained())

	score := det.Calculate(context.Background(), service.Request{
		Region:  "north",
		Metrics: map[string]float64{"event_rate": 50},
	})

	iso, ok := score.Factor(service.FactorIsolationAnomaly)
	require.True(t, ok)
	assert.InDelta(t, 0.8, iso.Confidence, 1e-9)
	assert.GreaterOrEqual(t, iso.Value, 0.0)
	assert.LessOrEqual(t, iso.Value, 100.0)

	stat, ok := score.Factor(service.FactorStatisticalAnomaly)
	require.True(t, ok)
	assert.InDelta(t, 100.0, stat.Value, 1e-9)
	assert.InDelta(t, 0.8, stat.Confidence, 1e-9)

	pattern, ok := score.Factor(service.FactorPatternDeviation)
	require.True(t, ok)
	assert.InDelta(t, 100.0, pattern.Value, 1e-9)
	assert.InDelta(t, 0.7, pattern.Confidence, 1e-9)

	assert.Equal(t, true, score.Metadata["is_trained"])
	assert.Equal(t, 3, score.Metadata["detection_methods"])
}

func TestAnomalyDetector_FailedRetrainKeepsModel(t *testing.T) {
	det := newDetector()
	require.True(t, det.Train(context.Background(), trainingSamples(12)))
	before := det.ModelInfo()

	assert.False(t, det.Train(context.Background(), trainingSamples(3)))
	assert.True(t, det.IsTrained())
	assert.Equal(t, before.Samples, det.ModelInfo().Samples)
}

func TestAnomalyDetector_StatisticalWithinBaseline(t *testing.T) {
	det := newDetector()
	require.True(t, det.Train(context.Background(), trainingSamples(20)))

	score := det.Calculate(context.Background(), service.Request{Metrics: map[string]float64{"event_rate": 11}})
	f, ok := score.Factor(service.FactorStatisticalAnomaly)
	require.True(t, ok)
	assert.Zero(t, f.Value)
	assert.InDelta(t, 0.5, f.Confidence, 1e-9)
}

func TestAnomalyDetector_NoMetrics(t *testing.T) {
	det := newDetector()
	score := det.Calculate(context.Background(), service.Request{})

	f, ok := score.Factor(service.FactorStatisticalAnomaly)
	require.True(t, ok)
	assert.Zero(t, f.Value)
	assert.Zero(t, f.Confidence)
	assert.Zero(t, score.OverallScore)
}

func TestAnomalyDetector_TimeSeries(t *testing.T) {
	series := func(values ...float64) []model.TimeSeriesPoint {
		out := make([]model.TimeSeriesPoint, len(values))
		for i, v := range values {
			out[i] = model.TimeSeriesPoint{Timestamp: fixedNow.Add(time.Duration(i) * time.Hour), Value: v}
		}
		return out
	}

	tests := []struct {
		name       string
		points     []model.TimeSeriesPoint
		value      float64
		confidence float64
	}{
		{"too short", series(1, 2), 0, 0.3},
		{"perfect trend", series(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), 0, 0.7},
		{"single spike", series(1, 2, 3, 4, 5, 50, 7, 8, 9, 10), 44.924, 0.7},
	}

	det := newDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := det.Calculate(context.Background(), service.Request{TimeSeries: tt.points})
			f, ok := score.Factor(service.FactorTimeSeriesAnomaly)
			require.True(t, ok)
			assert.InDelta(t, tt.value, f.Value, 0.01)
			assert.InDelta(t, tt.confidence, f.Confidence, 1e-9)
		})
	}
}

func TestAnomalyDetector_TimeSeriesSortsByTimestamp(t *testing.T) {
	det := newDetector()
	points := []model.TimeSeriesPoint{
		{Timestamp: fixedNow.Add(2 * time.Hour), Value: 3},
		{Timestamp: fixedNow, Value: 1},
		{Timestamp: fixedNow.Add(time.Hour), Value: 2},
	}

	score := det.Calculate(context.Background(), service.Request{TimeSeries: points})
	f, ok := score.Factor(service.FactorTimeSeriesAnomaly)
	require.True(t, ok)
	assert.Zero(t, f.Value)
}

func TestAnomalyDetector_ModelInfoAndCapabilities(t *testing.T) {
	det := newDetector()
	assert.False(t, det.Capabilities().IsTrained)

	require.True(t, det.Train(context.Background(), trainingSamples(20)))

	info := det.ModelInfo()
	assert.Equal(t, 20, info.Samples)
	assert.Equal(t, []string{"event_rate", "sentiment"}, info.Features)
	assert.Equal(t, []string{"north", "south"}, info.BaselineRegions)
	assert.Equal(t, 20, info.GlobalBaseline["event_rate"].Count)

	caps := det.Capabilities()
	assert.True(t, caps.IsTrained)
	assert.Equal(t, 2, caps.BaselineRegions)
	assert.Equal(t, 10, caps.MinSamples)
	assert.InDelta(t, 2.0, caps.ZScoreThreshold, 1e-9)
	assert.Len(t, caps.SupportedMethods, 4)
}

func TestAnomalyDetector_ConcurrentDetectAndTrain(t *testing.T) {
	det := newDetector()
	samples := trainingSamples(20)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				det.Train(context.Background(), samples)
				return
			}
			score := det.Calculate(context.Background(), service.Request{
				Region:  "south",
				Metrics: map[string]float64{"event_rate": float64(i)},
			})
			assert.GreaterOrEqual(t, score.OverallScore, 0.0)
		}(i)
	}
	wg.Wait()

	assert.True(t, det.IsTrained())
}
