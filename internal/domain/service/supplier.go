package service

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

// Supplier factor names.
const (
	FactorLocationRisk          = "location_risk"
	FactorFinancialStability    = "financial_stability"
	FactorOperationalRisk       = "operational_risk"
	FactorComplianceRisk        = "compliance_risk"
	FactorSupplyChainTier       = "supply_chain_tier"
	FactorHistoricalPerformance = "historical_performance"
)

// DefaultSupplierWeights are the supplier factor weights.
func DefaultSupplierWeights() map[string]float64 {
	return map[string]float64{
		FactorLocationRisk:          0.25,
		FactorFinancialStability:    0.20,
		FactorOperationalRisk:       0.20,
		FactorComplianceRisk:        0.15,
		FactorSupplyChainTier:       0.10,
		FactorHistoricalPerformance: 0.10,
	}
}

// DefaultRequiredCertifications lists the certifications a supplier is
// expected to hold.
func DefaultRequiredCertifications() []string {
	return []string{"iso_9001", "iso_14001", "ohsas_18001", "sa_8000"}
}

// countryRisks is checked in order; the first substring match wins.
var countryRisks = []struct {
	key  string
	risk float64
}{
	{"united_states", 20},
	{"canada", 25},
	{"germany", 30},
	{"japan", 25},
	{"australia", 30},
	{"united_kingdom", 35},
	{"france", 40},
	{"italy", 50},
	{"spain", 55},
	{"china", 60},
	{"india", 70},
	{"brazil", 65},
	{"russia", 80},
	{"iran", 90},
	{"north_korea", 95},
}

var tierRisks = map[string]float64{
	"tier_1": 20,
	"tier_2": 40,
	"tier_3": 60,
	"tier_4": 80,
}

// advancedAsianEconomies are exempt from the Asia location boost.
var advancedAsianEconomies = []string{"japan", "south_korea", "singapore"}

// SupplierConfig configures the supplier calculator.
type SupplierConfig struct {
	BaseConfig
	RequiredCertifications []string
	MinCreditRating        float64
	MaxDebtRatio           float64
	MinProfitMargin        float64
}

func (c *SupplierConfig) applyDefaults() {
	if len(c.RequiredCertifications) == 0 {
		c.RequiredCertifications = DefaultRequiredCertifications()
	}
	if c.MinCreditRating <= 0 {
		c.MinCreditRating = 600
	}
	if c.MaxDebtRatio <= 0 {
		c.MaxDebtRatio = 0.6
	}
	if c.MinProfitMargin <= 0 {
		c.MinProfitMargin = 0.05
	}
}

// SupplierCalculator scores a single supplier.
type SupplierCalculator struct {
	*Base
	cfg SupplierConfig
}

// NewSupplierCalculator creates a SupplierCalculator.
func NewSupplierCalculator(cfg SupplierConfig, opts ...Option) *SupplierCalculator {
	cfg.applyDefaults()
	return &SupplierCalculator{
		Base: newBase(valueobject.CalculatorSupplier, DefaultSupplierWeights(), cfg.BaseConfig, opts...),
		cfg:  cfg,
	}
}

// Calculate scores req.Supplier. The score's region is the supplier's
// country; a nil supplier yields the empty score.
func (c *SupplierCalculator) Calculate(_ context.Context, req Request) (score model.RiskScore) {
	s := req.Supplier
	if s == nil {
		c.logger.Debug("supplier calculation without a supplier record")
		return model.EmptyRiskScore(c.kind, req.Region, c.now())
	}
	defer c.recoverEmpty(s.Country, &score)

	factors := []model.RiskFactor{
		c.factor(FactorLocationRisk, "geographic_analysis", location(s)),
		c.factor(FactorFinancialStability, "financial_analysis", c.financial(s.FinancialData)),
		c.factor(FactorOperationalRisk, "operational_analysis", operational(s.OperationalData)),
		c.factor(FactorComplianceRisk, "compliance_analysis", c.compliance(s)),
		c.factor(FactorSupplyChainTier, "supply_chain_analysis", supplyChainTier(s.SupplyChainTier)),
		c.factor(FactorHistoricalPerformance, "performance_analysis", performance(s.PerformanceData)),
	}

	return c.build(s.Country, factors, map[string]any{
		"supplier_id":   s.ID,
		"supplier_name": s.Name,
		"industry":      s.Industry,
		"country":       s.Country,
	})
}

func location(s *model.Supplier) factorResult {
	if s.Country == "" && s.Region == "" {
		return noData(50, 0.3, "No location data available")
	}

	country := normalizeName(s.Country)
	risk := 50.0
	for _, cr := range countryRisks {
		if strings.Contains(country, cr.key) {
			risk = cr.risk
			break
		}
	}

	region := normalizeName(s.Region)
	switch {
	case strings.Contains(region, "middle_east"):
		risk += 15
	case strings.Contains(region, "africa"):
		risk += 10
	case strings.Contains(region, "asia") && !slices.Contains(advancedAsianEconomies, country):
		risk += 5
	}

	risk = math.Min(risk, 100)
	return factorResult{
		value:      risk,
		confidence: 0.8,
		note:       fmt.Sprintf("Location risk for %s, %s", orUnknown(s.Country), orUnknown(s.Region)),
	}
}

func (c *SupplierCalculator) financial(d *model.FinancialData) factorResult {
	if d == nil {
		return noData(50, 0.3, "No financial data available")
	}

	risk := 50.0
	if v := d.CreditRating; v != nil {
		risk += below(*v, tier{c.cfg.MinCreditRating, 30}, tier{700, 20}, tier{750, 10})
	}
	if v := d.DebtRatio; v != nil {
		risk += above(*v, tier{c.cfg.MaxDebtRatio, 25}, tier{0.4, 15}, tier{0.2, 5})
	}
	if v := d.ProfitMargin; v != nil {
		risk += below(*v, tier{c.cfg.MinProfitMargin, 20}, tier{0.1, 10}, tier{0.15, 5})
	}
	if v := d.RevenueGrowth; v != nil {
		risk += below(*v, tier{-10, 20}, tier{0, 10}, tier{5, 5})
	}

	risk = math.Min(risk, 100)
	return factorResult{value: risk, confidence: 0.8, note: fmt.Sprintf("Financial risk %.1f", risk)}
}

func operational(d *model.OperationalData) factorResult {
	if d == nil {
		return noData(50, 0.3, "No operational data available")
	}

	risk := 50.0
	if v := d.CapacityUtilization; v != nil {
		switch {
		case *v > 95:
			risk += 20
		case *v < 50:
			risk += 15
		}
	}
	if v := d.DefectRate; v != nil {
		risk += above(*v, tier{5, 25}, tier{2, 15}, tier{1, 5})
	}
	if v := d.OnTimeDeliveryRate; v != nil {
		risk += below(*v, tier{80, 20}, tier{90, 10}, tier{95, 5})
	}
	if v := d.EmployeeTurnoverRate; v != nil {
		risk += above(*v, tier{20, 15}, tier{10, 10}, tier{5, 5})
	}

	risk = math.Min(risk, 100)
	return factorResult{value: risk, confidence: 0.7, note: fmt.Sprintf("Operational risk %.1f", risk)}
}

// compliance treats a supplier with neither certifications nor compliance
// history as missing input rather than as missing every certification.
func (c *SupplierCalculator) compliance(s *model.Supplier) factorResult {
	if len(s.Certifications) == 0 && s.ComplianceHistory == nil {
		return noData(50, 0.3, "No compliance data available")
	}

	held := make(map[string]struct{}, len(s.Certifications))
	for _, cert := range s.Certifications {
		held[normalizeName(cert)] = struct{}{}
	}

	risk := 50.0
	var missing []string
	for _, req := range c.cfg.RequiredCertifications {
		if _, ok := held[normalizeName(req)]; !ok {
			missing = append(missing, req)
		}
	}
	risk += float64(len(missing)) * 15

	if h := s.ComplianceHistory; h != nil {
		if h.Violations > 0 {
			risk += float64(h.Violations) * 20
		}
		if v := h.LastAuditScore; v != nil {
			risk += below(*v, tier{60, 30}, tier{80, 20}, tier{90, 10})
		}
	}

	risk = math.Min(risk, 100)
	note := fmt.Sprintf("Compliance risk %.1f", risk)
	if len(missing) > 0 {
		note = fmt.Sprintf("%s, missing %v", note, missing)
	}
	return factorResult{value: risk, confidence: 0.8, note: note}
}

func supplyChainTier(t string) factorResult {
	key := normalizeName(t)
	risk, ok := tierRisks[key]
	if !ok {
		risk = 50
	}
	return factorResult{
		value:      risk,
		confidence: 0.9,
		note:       fmt.Sprintf("Supply chain tier risk: %s", orUnknown(t)),
	}
}

// performance may fall below its base of 50 through the relationship bonus.
// An absent relationship length counts as a new relationship.
func performance(d *model.PerformanceData) factorResult {
	if d == nil {
		return noData(50, 0.3, "No performance data available")
	}

	risk := 50.0
	if v := d.DeliveryTrend; v != nil {
		risk += below(*v, tier{-10, 25}, tier{-5, 15}, tier{0, 5})
	}
	if v := d.QualityTrend; v != nil {
		risk += below(*v, tier{-5, 20}, tier{-2, 10}, tier{0, 5})
	}

	var years float64
	if d.RelationshipYears != nil {
		years = *d.RelationshipYears
	}
	switch {
	case years > 10:
		risk -= 10
	case years > 5:
		risk -= 5
	case years < 1:
		risk += 15
	}

	risk = Normalize(risk, 0, 100)
	return factorResult{value: risk, confidence: 0.7, note: fmt.Sprintf("Performance risk %.1f", risk)}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
