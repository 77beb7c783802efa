package model

// FinancialData holds supplier financial indicators. Nil fields are absent.
type FinancialData struct {
	CreditRating  *float64 `json:"credit_rating,omitempty" yaml:"credit_rating,omitempty"`
	DebtRatio     *float64 `json:"debt_ratio,omitempty" yaml:"debt_ratio,omitempty"`
	ProfitMargin  *float64 `json:"profit_margin,omitempty" yaml:"profit_margin,omitempty"`
	RevenueGrowth *float64 `json:"revenue_growth,omitempty" yaml:"revenue_growth,omitempty"`
}

// OperationalData holds supplier operational indicators, all in percent.
type OperationalData struct {
	CapacityUtilization  *float64 `json:"capacity_utilization,omitempty" yaml:"capacity_utilization,omitempty"`
	DefectRate           *float64 `json:"defect_rate,omitempty" yaml:"defect_rate,omitempty"`
	OnTimeDeliveryRate   *float64 `json:"on_time_delivery_rate,omitempty" yaml:"on_time_delivery_rate,omitempty"`
	EmployeeTurnoverRate *float64 `json:"employee_turnover_rate,omitempty" yaml:"employee_turnover_rate,omitempty"`
}

// ComplianceHistory records audit outcomes.
type ComplianceHistory struct {
	LastAuditScore *float64 `json:"last_audit_score,omitempty" yaml:"last_audit_score,omitempty"`
	Violations     int      `json:"violations" yaml:"violations" validate:"gte=0"`
}

// PerformanceData holds trend indicators and relationship length.
type PerformanceData struct {
	DeliveryTrend     *float64 `json:"delivery_trend,omitempty" yaml:"delivery_trend,omitempty"`
	QualityTrend      *float64 `json:"quality_trend,omitempty" yaml:"quality_trend,omitempty"`
	RelationshipYears *float64 `json:"relationship_years,omitempty" yaml:"relationship_years,omitempty"`
}

// Supplier is the input record for supplier scoring.
type Supplier struct {
	FinancialData     *FinancialData     `json:"financial_data,omitempty" yaml:"financial_data,omitempty"`
	OperationalData   *OperationalData   `json:"operational_data,omitempty" yaml:"operational_data,omitempty"`
	ComplianceHistory *ComplianceHistory `json:"compliance_history,omitempty" yaml:"compliance_history,omitempty"`
	PerformanceData   *PerformanceData   `json:"performance_data,omitempty" yaml:"performance_data,omitempty"`
	ID                string             `json:"id" yaml:"id" validate:"required"`
	Name              string             `json:"name" yaml:"name" validate:"required"`
	Country           string             `json:"country" yaml:"country"`
	Region            string             `json:"region,omitempty" yaml:"region,omitempty"`
	Industry          string             `json:"industry,omitempty" yaml:"industry,omitempty"`
	SupplyChainTier   string             `json:"supply_chain_tier,omitempty" yaml:"supply_chain_tier,omitempty"`
	Certifications    []string           `json:"certifications" yaml:"certifications"`
}

// Float returns a pointer to v, for building optional indicator fields.
func Float(v float64) *float64 {
	return &v
}
