package manager_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peacemap/riskengine/internal/application/manager"
	"github.com/peacemap/riskengine/internal/domain/service"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// scoreDaily records one composite score per day for region.
func scoreDaily(t *testing.T, clock *testClock, region string, values ...float64) *manager.Manager {
	t.Helper()
	m := newManager(t, manager.Config{},
		manager.WithClock(clock.Now),
		manager.WithCalculator(newStub(clock, valueobject.CalculatorComposite, values...)),
	)
	for i := range values {
		if i > 0 {
			clock.Advance(24 * time.Hour)
		}
		_, err := m.CalculateCompositeRisk(context.Background(), service.Request{Region: region})
		require.NoError(t, err)
	}
	return m
}

func TestGetRiskSummary_NoData(t *testing.T) {
	m := newManager(t, manager.Config{})

	summary := m.GetRiskSummary("nowhere")
	assert.Equal(t, manager.StatusNoData, summary.Status)
	assert.Zero(t, summary.TotalAssessments)
	assert.Nil(t, summary.LastAssessment)
}

func TestGetRiskSummary(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		trend  string
	}{
		{"single score is stable", []float64{40}, manager.TrendStable},
		{"rising", []float64{20, 80, 30, 60}, manager.TrendIncreasing},
		{"falling", []float64{60, 10}, manager.TrendDecreasing},
		{"flat ends", []float64{50, 90, 50}, manager.TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newTestClock()
			m := scoreDaily(t, clock, "X", tt.values...)

			summary := m.GetRiskSummary("X")
			assert.Equal(t, manager.StatusOK, summary.Status)
			assert.Equal(t, tt.trend, summary.Trend)
			assert.Equal(t, len(tt.values), summary.TotalAssessments)
			assert.Equal(t, tt.values, summary.RecentScores)
			require.NotNil(t, summary.LastAssessment)
			assert.True(t, summary.LastAssessment.Equal(clock.Now()))
		})
	}
}

func TestGetRiskSummary_RecentWindowAndRegionFilter(t *testing.T) {
	clock := newTestClock()
	values := []float64{90, 10, 20, 30, 40, 50, 60, 65, 66, 67, 68, 5}
	m := scoreDaily(t, clock, "X", values...)

	summary := m.GetRiskSummary("X")
	assert.Equal(t, values[2:], summary.RecentScores)
	assert.Equal(t, manager.TrendDecreasing, summary.Trend)
	assert.InDelta(t, 90.0, summary.MaxRisk, 1e-9)
	assert.InDelta(t, 5.0, summary.MinRisk, 1e-9)
	assert.Equal(t, 2, summary.ActiveAlerts)
	assert.Equal(t, map[string]int{"LOW": 3, "MEDIUM": 2, "HIGH": 6, "CRITICAL": 1}, summary.LevelDistribution)

	assert.Equal(t, manager.StatusNoData, m.GetRiskSummary("Y").Status)
	assert.Equal(t, len(values), m.GetRiskSummary("").TotalAssessments)
}

func TestRiskQueries_SeeScoresWithTheirAlerts(t *testing.T) {
	clock := newTestClock()
	// 95 crosses both thresholds, so every recorded score carries two alerts.
	m := newManager(t, manager.Config{},
		manager.WithClock(clock.Now),
		manager.WithCalculator(newStub(clock, valueobject.CalculatorComposite, 95)),
	)

	const (
		writers   = 4
		perWriter = 25
	)
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				_, err := m.CalculateCompositeRisk(context.Background(), service.Request{Region: "X"})
				assert.NoError(t, err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		summary := m.GetRiskSummary("")
		require.Equal(t, 2*summary.TotalAssessments, summary.ActiveAlerts)
		stats := m.GetRiskStatistics()
		require.Equal(t, 2*stats.TotalAssessments, stats.TotalAlerts)

		select {
		case <-done:
			final := m.GetRiskSummary("X")
			assert.Equal(t, writers*perWriter, final.TotalAssessments)
			assert.Equal(t, 2*writers*perWriter, final.ActiveAlerts)
			return
		default:
		}
	}
}

func TestGetRiskTrends(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		trend  string
		slope  float64
		r      float64
		p      float64
	}{
		{"increasing", []float64{10, 20, 30}, manager.TrendIncreasing, 10, 1, 0},
		{"decreasing", []float64{30, 20, 10}, manager.TrendDecreasing, -10, -1, 0},
		{"constant", []float64{50, 50, 50}, manager.TrendStable, 0, 0, 1},
		{"shallow", []float64{50, 50.05}, manager.TrendStable, 0.05, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newTestClock()
			m := scoreDaily(t, clock, "X", tt.values...)

			trends := m.GetRiskTrends("X", 30)
			assert.Equal(t, tt.trend, trends.Trend)
			assert.InDelta(t, tt.slope, trends.Slope, 1e-6)
			assert.InDelta(t, tt.r, trends.Correlation, 1e-6)
			assert.InDelta(t, tt.p, trends.PValue, 1e-6)
			assert.Equal(t, len(tt.values), trends.DataPoints)
			assert.Len(t, trends.Dates, len(tt.values))
		})
	}
}

func TestGetRiskTrends_NoisyFit(t *testing.T) {
	clock := newTestClock()
	m := scoreDaily(t, clock, "X", 10, 30, 20, 40)

	trends := m.GetRiskTrends("X", 30)
	// y = 13 + 8x, r = 0.8, t = 0.8·sqrt(2/0.36) = 1.8856, two-sided p with 2 df.
	assert.Equal(t, manager.TrendIncreasing, trends.Trend)
	assert.InDelta(t, 8.0, trends.Slope, 1e-9)
	assert.InDelta(t, 13.0, trends.Intercept, 1e-9)
	assert.InDelta(t, 0.8, trends.Correlation, 1e-9)
	assert.InDelta(t, 0.2, trends.PValue, 1e-3)
}

func TestGetRiskTrends_WindowAndInsufficientData(t *testing.T) {
	clock := newTestClock()
	m := scoreDaily(t, clock, "X", 10, 20, 30, 40)

	// A two day window reaches back to the second score.
	trends := m.GetRiskTrends("X", 2)
	assert.Equal(t, 3, trends.DataPoints)

	assert.Equal(t, manager.TrendInsufficientData, m.GetRiskTrends("Y", 30).Trend)

	clock.Advance(60 * 24 * time.Hour)
	old := m.GetRiskTrends("X", 30)
	assert.Equal(t, manager.TrendInsufficientData, old.Trend)
	assert.Zero(t, old.DataPoints)
}

func TestGetRiskStatistics(t *testing.T) {
	clock := newTestClock()
	stub := newStub(clock, valueobject.CalculatorComposite, 20, 75, 40)
	m := newManager(t, manager.Config{}, manager.WithClock(clock.Now), manager.WithCalculator(stub))

	empty := m.GetRiskStatistics()
	assert.Zero(t, empty.TotalAssessments)
	assert.Nil(t, empty.LastAssessment)

	for _, region := range []string{"north", "south", ""} {
		_, err := m.CalculateCompositeRisk(context.Background(), service.Request{Region: region})
		require.NoError(t, err)
		clock.Advance(20 * time.Hour)
	}

	stats := m.GetRiskStatistics()
	assert.Equal(t, 3, stats.TotalAssessments)
	assert.Equal(t, 2, stats.UniqueRegions)
	assert.InDelta(t, 45.0, stats.AverageRisk, 1e-9)
	assert.InDelta(t, 75.0, stats.MaxRisk, 1e-9)
	assert.InDelta(t, 20.0, stats.MinRisk, 1e-9)
	assert.Equal(t, 1, stats.RecentAssessments24h)
	assert.Equal(t, 1, stats.ActiveAlerts)
	assert.Equal(t, 1, stats.TotalAlerts)
	assert.Equal(t, map[string]int{"composite": 3}, stats.CalculatorCounts)
}
