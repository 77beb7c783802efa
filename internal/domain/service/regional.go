package service

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// Regional factor names.
const (
	FactorEventDensity       = "event_density"
	FactorEventIntensity     = "event_intensity"
	FactorGeographicRisk     = "geographic_risk"
	FactorEconomic           = "economic_factors"
	FactorPoliticalStability = "political_stability"
	FactorInfrastructure     = "infrastructure"
)

// Indicator keys read from the exogenous data maps.
const (
	IndicatorGDPPerCapita        = "gdp_per_capita"
	IndicatorInflationRate       = "inflation_rate"
	IndicatorUnemploymentRate    = "unemployment_rate"
	IndicatorDemocracyIndex      = "democracy_index"
	IndicatorCorruptionIndex     = "corruption_index"
	IndicatorPoliticalStability  = "political_stability"
	IndicatorInternetPenetration = "internet_penetration"
	IndicatorElectricityAccess   = "electricity_access"
	IndicatorRoadQuality         = "road_quality_index"
)

// DefaultRegionalWeights are the regional factor weights.
func DefaultRegionalWeights() map[string]float64 {
	return map[string]float64{
		FactorEventDensity:       0.25,
		FactorEventIntensity:     0.20,
		FactorGeographicRisk:     0.15,
		FactorEconomic:           0.15,
		FactorPoliticalStability: 0.15,
		FactorInfrastructure:     0.10,
	}
}

// geographicRisks is checked in order; the first substring match wins.
var geographicRisks = []struct {
	key  string
	risk float64
}{
	{"middle_east", 80},
	{"africa", 60},
	{"asia", 40},
	{"europe", 30},
	{"americas", 35},
	{"oceania", 20},
}

const defaultGeographicRisk = 50

// tier is one step of an additive penalty table.
type tier struct {
	bound   float64
	penalty float64
}

// below returns the penalty of the first tier whose bound exceeds v.
func below(v float64, tiers ...tier) float64 {
	for _, t := range tiers {
		if v < t.bound {
			return t.penalty
		}
	}
	return 0
}

// above returns the penalty of the first tier whose bound v exceeds.
func above(v float64, tiers ...tier) float64 {
	for _, t := range tiers {
		if v > t.bound {
			return t.penalty
		}
	}
	return 0
}

// RegionalConfig configures the regional calculator.
type RegionalConfig struct {
	BaseConfig
	MaxEventDensity        float64
	RegionSizeThresholdKm2 float64
}

func (c *RegionalConfig) applyDefaults() {
	if c.MaxEventDensity <= 0 {
		c.MaxEventDensity = 10
	}
	if c.RegionSizeThresholdKm2 <= 0 {
		c.RegionSizeThresholdKm2 = 100
	}
}

// RegionalCalculator scores a bounded region from its events and exogenous
// economic, political and infrastructure indicators.
type RegionalCalculator struct {
	*Base
	cfg RegionalConfig
}

// NewRegionalCalculator creates a RegionalCalculator.
func NewRegionalCalculator(cfg RegionalConfig, opts ...Option) *RegionalCalculator {
	cfg.applyDefaults()
	return &RegionalCalculator{
		Base: newBase(valueobject.CalculatorRegional, DefaultRegionalWeights(), cfg.BaseConfig, opts...),
		cfg:  cfg,
	}
}

// Calculate scores req.Region.
func (c *RegionalCalculator) Calculate(_ context.Context, req Request) (score model.RiskScore) {
	defer c.recoverEmpty(req.Region, &score)

	factors := []model.RiskFactor{
		c.factor(FactorEventDensity, "density_analysis", c.density(req.Events, req.Bounds)),
		c.factor(FactorEventIntensity, "intensity_analysis", c.intensity(req.Events)),
		c.factor(FactorGeographicRisk, "geographic_analysis", c.geographic(req.Region, req.Bounds)),
		c.factor(FactorEconomic, "economic_analysis", economic(req.Economic)),
		c.factor(FactorPoliticalStability, "political_analysis", political(req.Political)),
		c.factor(FactorInfrastructure, "infrastructure_analysis", infrastructure(req.Infrastructure)),
	}

	metadata := map[string]any{
		"event_count":               len(req.Events),
		"economic_indicators":       sortedKeys(req.Economic),
		"political_indicators":      sortedKeys(req.Political),
		"infrastructure_indicators": sortedKeys(req.Infrastructure),
	}
	if req.Bounds != nil {
		metadata["region_bounds"] = *req.Bounds
		metadata["area_km2"] = boundsAreaKm2(*req.Bounds)
	}

	return c.build(req.Region, factors, metadata)
}

func (c *RegionalCalculator) density(events []model.Event, bounds *model.Bounds) factorResult {
	n := float64(len(events))
	if bounds == nil {
		return factorResult{
			value:      math.Min(n/50, 1) * 100,
			confidence: 0.5,
			note:       fmt.Sprintf("%d events, region bounds unknown", len(events)),
		}
	}

	area := boundsAreaKm2(*bounds)
	if area <= 0 || math.IsNaN(area) {
		return noData(0, 0, "Invalid region bounds")
	}

	density := n / area
	return factorResult{
		value:      math.Min(density/c.cfg.MaxEventDensity, 1) * 100,
		confidence: 0.8,
		note:       fmt.Sprintf("Event density %.4f per km²", density),
	}
}

func (c *RegionalCalculator) intensity(events []model.Event) factorResult {
	if len(events) == 0 {
		return noData(0, 0, "No events")
	}

	var sum float64
	for _, e := range events {
		sev := e.Severity.Score()
		if e.Severity.IsZero() {
			sev = 50
		}
		sum += sev * e.Confidence
	}

	mean := sum / float64(len(events))
	return factorResult{
		value:      mean,
		confidence: ratio(float64(len(events)), 20),
		note:       fmt.Sprintf("Average confidence-weighted severity %.1f", mean),
	}
}

func (c *RegionalCalculator) geographic(region string, bounds *model.Bounds) factorResult {
	risk := geographicRisk(region)
	if bounds != nil {
		if area := boundsAreaKm2(*bounds); area > 0 && area < c.cfg.RegionSizeThresholdKm2 {
			risk = math.Min(risk*1.2, 100)
		}
	}
	return factorResult{
		value:      risk,
		confidence: 0.7,
		note:       fmt.Sprintf("Geographic risk for %s", region),
	}
}

// geographicRisk matches the region name against the risk table after
// lowercasing it and folding spaces and hyphens to underscores.
func geographicRisk(region string) float64 {
	key := normalizeName(region)
	for _, g := range geographicRisks {
		if strings.Contains(key, g.key) {
			return g.risk
		}
	}
	return defaultGeographicRisk
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func economic(data map[string]float64) factorResult {
	if len(data) == 0 {
		return noData(50, 0.3, "No economic data available")
	}

	risk := 50.0
	if v, ok := data[IndicatorGDPPerCapita]; ok {
		risk += below(v, tier{1000, 30}, tier{5000, 20}, tier{10000, 10})
	}
	if v, ok := data[IndicatorInflationRate]; ok {
		risk += above(v, tier{10, 25}, tier{5, 15}, tier{2, 5})
	}
	if v, ok := data[IndicatorUnemploymentRate]; ok {
		risk += above(v, tier{15, 20}, tier{10, 10}, tier{5, 5})
	}

	risk = math.Min(risk, 100)
	return factorResult{value: risk, confidence: 0.8, note: fmt.Sprintf("Economic risk %.1f", risk)}
}

func political(data map[string]float64) factorResult {
	if len(data) == 0 {
		return noData(50, 0.3, "No political data available")
	}

	risk := 50.0
	if v, ok := data[IndicatorDemocracyIndex]; ok {
		risk += below(v, tier{3, 30}, tier{5, 20}, tier{7, 10})
	}
	if v, ok := data[IndicatorCorruptionIndex]; ok {
		risk += above(v, tier{7, 25}, tier{5, 15}, tier{3, 5})
	}
	if v, ok := data[IndicatorPoliticalStability]; ok {
		risk += below(v, tier{-2, 25}, tier{0, 15}, tier{1, 5})
	}

	risk = math.Min(risk, 100)
	return factorResult{value: risk, confidence: 0.8, note: fmt.Sprintf("Political risk %.1f", risk)}
}

func infrastructure(data map[string]float64) factorResult {
	if len(data) == 0 {
		return noData(50, 0.3, "No infrastructure data available")
	}

	risk := 50.0
	if v, ok := data[IndicatorInternetPenetration]; ok {
		risk += below(v, tier{30, 20}, tier{60, 10})
	}
	if v, ok := data[IndicatorElectricityAccess]; ok {
		risk += below(v, tier{50, 25}, tier{80, 15}, tier{95, 5})
	}
	if v, ok := data[IndicatorRoadQuality]; ok {
		risk += below(v, tier{3, 15}, tier{4, 10}, tier{5, 5})
	}

	risk = math.Min(risk, 100)
	return factorResult{value: risk, confidence: 0.7, note: fmt.Sprintf("Infrastructure risk %.1f", risk)}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
