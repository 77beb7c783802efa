package manager

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/peacemap/riskengine/internal/application/dto"
	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/service"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

const (
	compositeTrendWindow = 5
	topFactorThreshold   = 60.0

	// DefaultAtRiskThreshold is the overall score at which a supplier is
	// reported as at risk.
	DefaultAtRiskThreshold = 70.0
)

// FactorContribution is a factor with its share of the overall score.
type FactorContribution struct {
	model.RiskFactor     `yaml:",inline"`
	WeightedContribution float64 `json:"weighted_contribution" yaml:"weighted_contribution"`
}

// Breakdown explains a score factor by factor.
type Breakdown struct {
	RiskLevel    string               `json:"risk_level" yaml:"risk_level"`
	Factors      []FactorContribution `json:"factors" yaml:"factors"`
	OverallScore float64              `json:"overall_score" yaml:"overall_score"`
	Confidence   float64              `json:"confidence" yaml:"confidence"`
}

// BreakdownOf returns the factors of score ordered by weighted contribution,
// largest first. Contributions sum to the overall score.
func BreakdownOf(score model.RiskScore) Breakdown {
	var total float64
	for _, f := range score.Factors {
		total += f.Weight
	}

	factors := make([]FactorContribution, len(score.Factors))
	for i, f := range score.Factors {
		factors[i] = FactorContribution{RiskFactor: f}
		if total > 0 {
			factors[i].WeightedContribution = f.Value * f.Weight / total
		}
	}
	slices.SortStableFunc(factors, func(a, b FactorContribution) int {
		return cmp.Compare(b.WeightedContribution, a.WeightedContribution)
	})

	return Breakdown{
		OverallScore: score.OverallScore,
		RiskLevel:    score.RiskLevel.String(),
		Confidence:   score.Confidence,
		Factors:      factors,
	}
}

// CompositeTrend is the short-term direction of a region's composite scores.
type CompositeTrend struct {
	Trend        string    `json:"trend" yaml:"trend"`
	RecentScores []float64 `json:"recent_scores,omitempty" yaml:"recent_scores,omitempty"`
	Magnitude    float64   `json:"magnitude" yaml:"magnitude"`
	AverageScore float64   `json:"average_score" yaml:"average_score"`
	MaxScore     float64   `json:"max_score" yaml:"max_score"`
	MinScore     float64   `json:"min_score" yaml:"min_score"`
}

// CompositeTrends compares the first and last of the latest five composite
// scores recorded for region.
func (m *Manager) CompositeTrends(region string) CompositeTrend {
	scores := m.History(valueobject.CalculatorComposite, region)
	if len(scores) < 2 {
		return CompositeTrend{Trend: TrendInsufficientData}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].CalculatedAt.Before(scores[j].CalculatedAt)
	})

	all := overallScores(scores)
	recent := all[max(0, len(all)-compositeTrendWindow):]
	first, last := recent[0], recent[len(recent)-1]

	trend := TrendStable
	switch {
	case last > first:
		trend = TrendIncreasing
	case last < first:
		trend = TrendDecreasing
	}

	return CompositeTrend{
		Trend:        trend,
		Magnitude:    math.Abs(last - first),
		RecentScores: recent,
		AverageScore: stat.Mean(all, nil),
		MaxScore:     floats.Max(all),
		MinScore:     floats.Min(all),
	}
}

// RegionRank is one row of a regional comparison.
type RegionRank struct {
	Region     string  `json:"region" yaml:"region"`
	Level      string  `json:"level" yaml:"level"`
	Score      float64 `json:"score" yaml:"score"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// RegionComparison ranks regions by their overall score.
type RegionComparison struct {
	Highest      *RegionRank  `json:"highest,omitempty" yaml:"highest,omitempty"`
	Lowest       *RegionRank  `json:"lowest,omitempty" yaml:"lowest,omitempty"`
	Status       string       `json:"status" yaml:"status"`
	Rankings     []RegionRank `json:"rankings" yaml:"rankings"`
	AverageRisk  float64      `json:"average_risk" yaml:"average_risk"`
	RiskStd      float64      `json:"risk_std" yaml:"risk_std"`
	TotalRegions int          `json:"total_regions" yaml:"total_regions"`
}

// CompareRegions ranks scores from highest to lowest. RiskStd is the
// population standard deviation.
func CompareRegions(scores []model.RiskScore) RegionComparison {
	if len(scores) == 0 {
		return RegionComparison{Status: StatusNoData, Rankings: []RegionRank{}}
	}

	ranks := make([]RegionRank, len(scores))
	for i, s := range scores {
		ranks[i] = RegionRank{Region: s.Region, Level: s.RiskLevel.String(), Score: s.OverallScore, Confidence: s.Confidence}
	}
	slices.SortStableFunc(ranks, func(a, b RegionRank) int {
		return cmp.Compare(b.Score, a.Score)
	})

	mean, std := stat.PopMeanStdDev(overallScores(scores), nil)
	highest, lowest := ranks[0], ranks[len(ranks)-1]
	return RegionComparison{
		Status:       StatusOK,
		Highest:      &highest,
		Lowest:       &lowest,
		Rankings:     ranks,
		AverageRisk:  mean,
		RiskStd:      std,
		TotalRegions: len(ranks),
	}
}

// CompareRegions ranks the latest regional score recorded for each region.
func (m *Manager) CompareRegions() RegionComparison {
	latest := map[string]model.RiskScore{}
	for _, s := range m.History(valueobject.CalculatorRegional, "") {
		if prev, ok := latest[s.Region]; !ok || !s.CalculatedAt.Before(prev.CalculatedAt) {
			latest[s.Region] = s
		}
	}

	scores := make([]model.RiskScore, 0, len(latest))
	for _, s := range latest {
		scores = append(scores, s)
	}
	slices.SortFunc(scores, func(a, b model.RiskScore) int { return strings.Compare(a.Region, b.Region) })
	return CompareRegions(scores)
}

// SupplierSummary condenses one supplier score.
type SupplierSummary struct {
	SupplierID   string             `json:"supplier_id" yaml:"supplier_id"`
	SupplierName string             `json:"supplier_name" yaml:"supplier_name"`
	Country      string             `json:"country,omitempty" yaml:"country,omitempty"`
	Industry     string             `json:"industry,omitempty" yaml:"industry,omitempty"`
	RiskLevel    string             `json:"risk_level" yaml:"risk_level"`
	TopFactors   []model.RiskFactor `json:"top_factors" yaml:"top_factors"`
	OverallScore float64            `json:"overall_score" yaml:"overall_score"`
	Confidence   float64            `json:"confidence" yaml:"confidence"`
}

// SummarizeSupplier lists the factors of a supplier score at 60 or above,
// highest first.
func SummarizeSupplier(score model.RiskScore) SupplierSummary {
	top := []model.RiskFactor{}
	for _, f := range score.Factors {
		if f.Value >= topFactorThreshold {
			top = append(top, f)
		}
	}
	slices.SortStableFunc(top, func(a, b model.RiskFactor) int { return cmp.Compare(b.Value, a.Value) })

	return SupplierSummary{
		SupplierID:   metaString(score.Metadata, "supplier_id"),
		SupplierName: metaString(score.Metadata, "supplier_name"),
		Country:      metaString(score.Metadata, "country"),
		Industry:     metaString(score.Metadata, "industry"),
		RiskLevel:    score.RiskLevel.String(),
		TopFactors:   top,
		OverallScore: score.OverallScore,
		Confidence:   score.Confidence,
	}
}

// SuppliersAtRisk summarizes the supplier scores at or above threshold,
// highest first.
func SuppliersAtRisk(scores []model.RiskScore, threshold float64) []SupplierSummary {
	out := []SupplierSummary{}
	for _, s := range scores {
		if s.Calculator == valueobject.CalculatorSupplier && s.OverallScore >= threshold {
			out = append(out, SummarizeSupplier(s))
		}
	}
	slices.SortStableFunc(out, func(a, b SupplierSummary) int { return cmp.Compare(b.OverallScore, a.OverallScore) })
	return out
}

// SuppliersAtRisk applies SuppliersAtRisk to the latest score of every
// supplier in the history.
func (m *Manager) SuppliersAtRisk(threshold float64) []SupplierSummary {
	latest := map[string]model.RiskScore{}
	var order []string
	for _, s := range m.History(valueobject.CalculatorSupplier, "") {
		id := metaString(s.Metadata, "supplier_id")
		if _, ok := latest[id]; !ok {
			order = append(order, id)
		}
		latest[id] = s
	}

	scores := make([]model.RiskScore, 0, len(order))
	for _, id := range order {
		scores = append(scores, latest[id])
	}
	return SuppliersAtRisk(scores, threshold)
}

// AnomalySummary reports the detector state and the anomaly scores recorded
// so far.
type AnomalySummary struct {
	Model             service.ModelInfo `json:"model" yaml:"model"`
	TotalAnalyses     int               `json:"total_analyses" yaml:"total_analyses"`
	AnomaliesDetected int               `json:"anomalies_detected" yaml:"anomalies_detected"`
	AnomalyRate       float64           `json:"anomaly_rate" yaml:"anomaly_rate"`
	AverageScore      float64           `json:"average_anomaly_score" yaml:"average_anomaly_score"`
	MaxScore          float64           `json:"max_anomaly_score" yaml:"max_anomaly_score"`
	MinScore          float64           `json:"min_anomaly_score" yaml:"min_anomaly_score"`
	StdScore          float64           `json:"anomaly_std" yaml:"anomaly_std"`
}

// AnomalySummary summarizes the anomaly detector and its recorded results.
func (m *Manager) AnomalySummary() (AnomalySummary, error) {
	if m.anomaly == nil {
		return AnomalySummary{}, fmt.Errorf("%w: %s", ErrCalculatorUnavailable, valueobject.CalculatorAnomaly)
	}

	out := AnomalySummary{Model: m.anomaly.ModelInfo()}
	scores := m.History(valueobject.CalculatorAnomaly, "")
	if len(scores) == 0 {
		return out, nil
	}

	values := overallScores(scores)
	for _, v := range values {
		if v > service.AnomalyThreshold {
			out.AnomaliesDetected++
		}
	}
	out.TotalAnalyses = len(values)
	out.AnomalyRate = float64(out.AnomaliesDetected) / float64(len(values))
	out.AverageScore, out.StdScore = stat.PopMeanStdDev(values, nil)
	out.MaxScore = floats.Max(values)
	out.MinScore = floats.Min(values)
	return out, nil
}

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Export renders the history and alert log as a JSON or YAML document.
func (m *Manager) Export(format string) ([]byte, error) {
	doc := m.exportDocument()

	switch strings.ToLower(format) {
	case FormatJSON, "":
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode export: %w", err)
		}
		return out, nil
	case FormatYAML, "yml":
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode export: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func (m *Manager) exportDocument() dto.ExportDocument {
	return dto.ExportDocument{
		ExportedAt:  m.now().UTC().Truncate(time.Millisecond),
		RiskHistory: dto.FromScores(m.History("", "")),
		Alerts:      dto.FromAlerts(m.Alerts()),
	}
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
