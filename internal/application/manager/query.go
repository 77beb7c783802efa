package manager

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/peacemap/riskengine/internal/domain/model"
)

// Trend directions and summary states.
const (
	TrendIncreasing       = "increasing"
	TrendDecreasing       = "decreasing"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"

	StatusOK     = "ok"
	StatusNoData = "no_data"
)

const (
	summaryRecentScores = 10
	trendSlopeEpsilon   = 0.1
)

// Summary aggregates the recorded scores for a region, or for all regions.
type Summary struct {
	LastAssessment    *time.Time     `json:"last_assessment,omitempty" yaml:"last_assessment,omitempty"`
	LevelDistribution map[string]int `json:"risk_level_distribution,omitempty" yaml:"risk_level_distribution,omitempty"`
	Status            string         `json:"status" yaml:"status"`
	Region            string         `json:"region,omitempty" yaml:"region,omitempty"`
	Trend             string         `json:"trend,omitempty" yaml:"trend,omitempty"`
	RecentScores      []float64      `json:"recent_scores,omitempty" yaml:"recent_scores,omitempty"`
	TotalAssessments  int            `json:"total_assessments" yaml:"total_assessments"`
	AverageRisk       float64        `json:"average_risk" yaml:"average_risk"`
	MaxRisk           float64        `json:"max_risk" yaml:"max_risk"`
	MinRisk           float64        `json:"min_risk" yaml:"min_risk"`
	ActiveAlerts      int            `json:"active_alerts" yaml:"active_alerts"`
}

// GetRiskSummary summarizes the history for region; an empty region covers
// every score. The trend compares the last and first of the most recent ten
// scores.
func (m *Manager) GetRiskSummary(region string) Summary {
	scores, alerts := m.snapshot(region)
	summary := Summary{Status: StatusNoData, Region: region}
	if len(scores) == 0 {
		return summary
	}

	values := overallScores(scores)
	recent := values[max(0, len(values)-summaryRecentScores):]

	trend := TrendStable
	if len(recent) >= 2 {
		switch first, last := recent[0], recent[len(recent)-1]; {
		case last > first:
			trend = TrendIncreasing
		case last < first:
			trend = TrendDecreasing
		}
	}

	last := scores[len(scores)-1].CalculatedAt
	summary.Status = StatusOK
	summary.TotalAssessments = len(scores)
	summary.AverageRisk = stat.Mean(values, nil)
	summary.MaxRisk = floats.Max(values)
	summary.MinRisk = floats.Min(values)
	summary.LevelDistribution = levelDistribution(scores)
	summary.Trend = trend
	summary.RecentScores = recent
	summary.ActiveAlerts = countActive(alerts)
	summary.LastAssessment = &last
	return summary
}

// Trends is the least-squares trend of scores over a time window.
type Trends struct {
	Trend       string      `json:"trend" yaml:"trend"`
	Region      string      `json:"region,omitempty" yaml:"region,omitempty"`
	Scores      []float64   `json:"scores,omitempty" yaml:"scores,omitempty"`
	Dates       []time.Time `json:"dates,omitempty" yaml:"dates,omitempty"`
	Slope       float64     `json:"slope" yaml:"slope"`
	Intercept   float64     `json:"intercept" yaml:"intercept"`
	Correlation float64     `json:"correlation" yaml:"correlation"`
	PValue      float64     `json:"p_value" yaml:"p_value"`
	PeriodDays  int         `json:"period_days" yaml:"period_days"`
	DataPoints  int         `json:"data_points" yaml:"data_points"`
}

// GetRiskTrends fits score against days since the first sample for the
// scores recorded in the last days days. A slope above 0.1 points per day is
// increasing, below -0.1 decreasing.
func (m *Manager) GetRiskTrends(region string, days int) Trends {
	if days <= 0 {
		days = 30
	}
	cutoff := m.now().Add(-time.Duration(days) * 24 * time.Hour)

	var window []model.RiskScore
	for _, s := range m.History("", region) {
		if !s.CalculatedAt.Before(cutoff) {
			window = append(window, s)
		}
	}

	out := Trends{Trend: TrendInsufficientData, Region: region, PeriodDays: days, DataPoints: len(window)}
	if len(window) < 2 {
		return out
	}

	sort.SliceStable(window, func(i, j int) bool {
		return window[i].CalculatedAt.Before(window[j].CalculatedAt)
	})

	x := make([]float64, len(window))
	y := overallScores(window)
	dates := make([]time.Time, len(window))
	first := window[0].CalculatedAt
	for i, s := range window {
		x[i] = s.CalculatedAt.Sub(first).Hours() / 24
		dates[i] = s.CalculatedAt
	}

	fit := linregress(x, y)
	out.Scores = y
	out.Dates = dates
	out.Slope = fit.slope
	out.Intercept = fit.intercept
	out.Correlation = fit.r
	out.PValue = fit.p

	switch {
	case fit.slope > trendSlopeEpsilon:
		out.Trend = TrendIncreasing
	case fit.slope < -trendSlopeEpsilon:
		out.Trend = TrendDecreasing
	default:
		out.Trend = TrendStable
	}
	return out
}

type regression struct {
	slope, intercept, r, p float64
}

// linregress is an ordinary least-squares fit of y on x with the Pearson
// correlation and the two-sided p-value for a zero slope. Degenerate inputs
// (all x equal, or constant y) yield a flat fit with r=0 and p=1.
func linregress(x, y []float64) regression {
	if stat.Variance(x, nil) == 0 {
		return regression{intercept: stat.Mean(y, nil), p: 1}
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	out := regression{slope: slope, intercept: intercept, p: 1}
	if stat.Variance(y, nil) == 0 {
		return out
	}

	r := stat.Correlation(x, y, nil)
	r = math.Max(-1, math.Min(1, r))
	out.r = r

	df := float64(len(x) - 2)
	switch {
	case df <= 0, math.Abs(r) >= 1:
		out.p = 0
	default:
		t := r * math.Sqrt(df/((1-r)*(1+r)))
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		out.p = 2 * dist.Survival(math.Abs(t))
	}
	return out
}

// Statistics summarizes the entire history and alert log.
type Statistics struct {
	LastAssessment       *time.Time     `json:"last_assessment,omitempty" yaml:"last_assessment,omitempty"`
	LevelDistribution    map[string]int `json:"risk_level_distribution,omitempty" yaml:"risk_level_distribution,omitempty"`
	CalculatorCounts     map[string]int `json:"calculator_counts,omitempty" yaml:"calculator_counts,omitempty"`
	TotalAssessments     int            `json:"total_assessments" yaml:"total_assessments"`
	UniqueRegions        int            `json:"unique_regions" yaml:"unique_regions"`
	AverageRisk          float64        `json:"average_risk" yaml:"average_risk"`
	MaxRisk              float64        `json:"max_risk" yaml:"max_risk"`
	MinRisk              float64        `json:"min_risk" yaml:"min_risk"`
	RecentAssessments24h int            `json:"recent_assessments_24h" yaml:"recent_assessments_24h"`
	ActiveAlerts         int            `json:"active_alerts" yaml:"active_alerts"`
	TotalAlerts          int            `json:"total_alerts" yaml:"total_alerts"`
}

// GetRiskStatistics summarizes every recorded score and alert.
func (m *Manager) GetRiskStatistics() Statistics {
	scores, alerts := m.snapshot("")

	out := Statistics{
		TotalAssessments: len(scores),
		TotalAlerts:      len(alerts),
		ActiveAlerts:     countActive(alerts),
	}
	if len(scores) == 0 {
		return out
	}

	values := overallScores(scores)
	cutoff := m.now().Add(-24 * time.Hour)
	regions := map[string]struct{}{}
	calculators := map[string]int{}
	for _, s := range scores {
		if s.Region != "" {
			regions[s.Region] = struct{}{}
		}
		if !s.CalculatedAt.Before(cutoff) {
			out.RecentAssessments24h++
		}
		calculators[string(s.Calculator)]++
	}

	last := scores[len(scores)-1].CalculatedAt
	out.UniqueRegions = len(regions)
	out.AverageRisk = stat.Mean(values, nil)
	out.MaxRisk = floats.Max(values)
	out.MinRisk = floats.Min(values)
	out.LevelDistribution = levelDistribution(scores)
	out.CalculatorCounts = calculators
	out.LastAssessment = &last
	return out
}

func countActive(alerts []model.RiskAlert) int {
	n := 0
	for _, a := range alerts {
		if !a.Acknowledged {
			n++
		}
	}
	return n
}

func overallScores(scores []model.RiskScore) []float64 {
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = s.OverallScore
	}
	return out
}

func levelDistribution(scores []model.RiskScore) map[string]int {
	out := map[string]int{}
	for _, s := range scores {
		out[s.RiskLevel.String()]++
	}
	return out
}
