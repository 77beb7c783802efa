package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/service"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
)

func newSupplier() *service.SupplierCalculator {
	return service.NewSupplierCalculator(service.SupplierConfig{}, service.WithClock(fixedClock))
}

func TestSupplierCalculator_MissingSubRecords(t *testing.T) {
	calc := newSupplier()

	score := calc.Calculate(context.Background(), service.Request{
		Supplier: &model.Supplier{ID: "s-1", Name: "Acme", SupplyChainTier: "tier_2"},
	})

	expected := map[string]float64{
		service.FactorLocationRisk:          50,
		service.FactorFinancialStability:    50,
		service.FactorOperationalRisk:       50,
		service.FactorComplianceRisk:        50,
		service.FactorSupplyChainTier:       40,
		service.FactorHistoricalPerformance: 50,
	}
	require.Len(t, score.Factors, len(expected))
	for name, value := range expected {
		f, ok := score.Factor(name)
		require.True(t, ok, name)
		assert.InDelta(t, value, f.Value, 1e-9, name)
	}

	assert.InDelta(t, 49.0, score.OverallScore, 1e-9)
	assert.True(t, score.RiskLevel.Equal(valueobject.RiskLevelMedium))
	assert.Equal(t, "s-1", score.Metadata["supplier_id"])
}

func TestSupplierCalculator_FullRecord(t *testing.T) {
	calc := newSupplier()

	supplier := &model.Supplier{
		ID:              "s-2",
		Name:            "Dragon Parts",
		Country:         "China",
		Region:          "East Asia",
		Industry:        "electronics",
		SupplyChainTier: "Tier 3",
		Certifications:  []string{"ISO 9001", "iso_14001"},
		FinancialData: &model.FinancialData{
			CreditRating:  model.Float(650),
			DebtRatio:     model.Float(0.5),
			ProfitMargin:  model.Float(0.08),
			RevenueGrowth: model.Float(-5),
		},
		OperationalData: &model.OperationalData{
			CapacityUtilization:  model.Float(97),
			DefectRate:           model.Float(3),
			OnTimeDeliveryRate:   model.Float(85),
			EmployeeTurnoverRate: model.Float(12),
		},
		ComplianceHistory: &model.ComplianceHistory{
			Violations:     1,
			LastAuditScore: model.Float(85),
		},
		PerformanceData: &model.PerformanceData{
			DeliveryTrend:     model.Float(-6),
			QualityTrend:      model.Float(-1),
			RelationshipYears: model.Float(12),
		},
	}

	score := calc.Calculate(context.Background(), service.Request{Supplier: supplier})

	expected := []struct {
		name  string
		value float64
	}{
		{service.FactorLocationRisk, 65},
		{service.FactorFinancialStability, 100},
		{service.FactorOperationalRisk, 100},
		{service.FactorComplianceRisk, 100},
		{service.FactorSupplyChainTier, 60},
		{service.FactorHistoricalPerformance, 60},
	}
	for _, tt := range expected {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := score.Factor(tt.name)
			require.True(t, ok)
			assert.InDelta(t, tt.value, f.Value, 1e-9)
		})
	}

	assert.InDelta(t, 83.25, score.OverallScore, 1e-9)
	assert.True(t, score.RiskLevel.Equal(valueobject.RiskLevelHigh))
	assert.Equal(t, "China", score.Region)
}

func TestSupplierCalculator_LocationBoosts(t *testing.T) {
	tests := []struct {
		name     string
		country  string
		region   string
		expected float64
	}{
		{"middle east boost", "Iran", "Middle East", 100},
		{"africa boost", "Nigeria", "West Africa", 60},
		{"asia boost", "India", "South Asia", 75},
		{"advanced asian economy exempt", "Japan", "East Asia", 25},
		{"united states", "United States", "", 20},
	}

	calc := newSupplier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := calc.Calculate(context.Background(), service.Request{
				Supplier: &model.Supplier{ID: "s", Name: "n", Country: tt.country, Region: tt.region},
			})
			f, ok := score.Factor(service.FactorLocationRisk)
			require.True(t, ok)
			assert.InDelta(t, tt.expected, f.Value, 1e-9)
		})
	}
}

func TestSupplierCalculator_PerformanceBounds(t *testing.T) {
	tests := []struct {
		name     string
		data     *model.PerformanceData
		expected float64
	}{
		{"long relationship earns a bonus", &model.PerformanceData{RelationshipYears: model.Float(15)}, 40},
		{"missing relationship length counts as new", &model.PerformanceData{}, 65},
		{"mid relationship", &model.PerformanceData{RelationshipYears: model.Float(7)}, 45},
	}

	calc := newSupplier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := calc.Calculate(context.Background(), service.Request{
				Supplier: &model.Supplier{ID: "s", Name: "n", PerformanceData: tt.data},
			})
			f, ok := score.Factor(service.FactorHistoricalPerformance)
			require.True(t, ok)
			assert.InDelta(t, tt.expected, f.Value, 1e-9)
		})
	}
}

func TestSupplierCalculator_ConfiguredCertifications(t *testing.T) {
	calc := service.NewSupplierCalculator(service.SupplierConfig{
		RequiredCertifications: []string{"iso_27001"},
	}, service.WithClock(fixedClock))

	score := calc.Calculate(context.Background(), service.Request{
		Supplier: &model.Supplier{ID: "s", Name: "n", Certifications: []string{"iso_9001"}},
	})
	f, ok := score.Factor(service.FactorComplianceRisk)
	require.True(t, ok)
	assert.InDelta(t, 65.0, f.Value, 1e-9)
}

func TestSupplierCalculator_NilSupplier(t *testing.T) {
	calc := newSupplier()
	score := calc.Calculate(context.Background(), service.Request{Region: "x"})
	assert.True(t, score.IsEmpty())
	assert.Equal(t, "x", score.Region)
}

func TestSupplierCalculator_PresentZeroIsScored(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{name: "absent utilization", raw: `{"id":"s","name":"n","operational_data":{}}`, want: 50},
		{name: "zero utilization", raw: `{"id":"s","name":"n","operational_data":{"capacity_utilization":0}}`, want: 65},
		{name: "zero on-time delivery", raw: `{"id":"s","name":"n","operational_data":{"on_time_delivery_rate":0}}`, want: 70},
	}

	calc := newSupplier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var supplier model.Supplier
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &supplier))

			score := calc.Calculate(context.Background(), service.Request{Supplier: &supplier})
			f, ok := score.Factor(service.FactorOperationalRisk)
			require.True(t, ok)
			assert.InDelta(t, tt.want, f.Value, 1e-9)
		})
	}
}
