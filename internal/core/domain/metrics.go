package domain

import "fmt"

// AssessmentDomain tags which metrics struct of an AssessmentInput is populated.
type AssessmentDomain string

const (
	DomainPortfolio    AssessmentDomain = ModulePortfolio
	DomainDueDiligence AssessmentDomain = ModuleDueDiligence
	DomainLegal        AssessmentDomain = ModuleLegal
	DomainMarket       AssessmentDomain = ModuleMarket
	DomainOperational  AssessmentDomain = ModuleOperational
	DomainFund         AssessmentDomain = ModuleFund
)

// AssessmentInput is a tagged union: only the field matching Domain is read.
type AssessmentInput struct {
	Domain       AssessmentDomain     `json:"domain" yaml:"domain"`
	Portfolio    *PortfolioMetrics    `json:"portfolio,omitempty" yaml:"portfolio,omitempty"`
	DueDiligence *DueDiligenceMetrics `json:"due_diligence,omitempty" yaml:"due_diligence,omitempty"`
	Legal        *LegalMetrics        `json:"legal,omitempty" yaml:"legal,omitempty"`
	Market       *MarketMetrics       `json:"market,omitempty" yaml:"market,omitempty"`
	Operational  *OperationalMetrics  `json:"operational,omitempty" yaml:"operational,omitempty"`
	Fund         *FundMetrics         `json:"fund,omitempty" yaml:"fund,omitempty"`
}

// PortfolioMetrics are ratios for a fund's holdings (fractions, not percents).
type PortfolioMetrics struct {
	TopHoldingConcentration float64 `json:"top_holding_concentration" yaml:"top_holding_concentration"`
	SectorConcentration     float64 `json:"sector_concentration" yaml:"sector_concentration"`
	NetLeverage             float64 `json:"net_leverage" yaml:"net_leverage"`
	LiquidityCoverage       float64 `json:"liquidity_coverage" yaml:"liquidity_coverage"`
	UnrealizedLossPct       float64 `json:"unrealized_loss_pct" yaml:"unrealized_loss_pct"`
	ValuationVolatility     float64 `json:"valuation_volatility" yaml:"valuation_volatility"`
}

type DueDiligenceMetrics struct {
	FinancialDataCompleteness float64 `json:"financial_data_completeness" yaml:"financial_data_completeness"`
	CustomerConcentration     float64 `json:"customer_concentration" yaml:"customer_concentration"`
	ManagementTurnover        float64 `json:"management_turnover" yaml:"management_turnover"`
	RedFlags                  int     `json:"red_flags" yaml:"red_flags"`
	EarningsAdjustmentPct     float64 `json:"earnings_adjustment_pct" yaml:"earnings_adjustment_pct"`
	KeyPersonDependency       bool    `json:"key_person_dependency" yaml:"key_person_dependency"`
}

type LegalMetrics struct {
	PendingLitigation       int     `json:"pending_litigation" yaml:"pending_litigation"`
	RegulatoryInquiries     int     `json:"regulatory_inquiries" yaml:"regulatory_inquiries"`
	ContractDisputeExposure float64 `json:"contract_dispute_exposure" yaml:"contract_dispute_exposure"`
	ComplianceViolations    int     `json:"compliance_violations" yaml:"compliance_violations"`
	IPDisputes              bool    `json:"ip_disputes" yaml:"ip_disputes"`
	SanctionsExposure       bool    `json:"sanctions_exposure" yaml:"sanctions_exposure"`
}

type MarketMetrics struct {
	VolatilityIndex            float64 `json:"volatility_index" yaml:"volatility_index"`
	InterestRateDelta          float64 `json:"interest_rate_delta" yaml:"interest_rate_delta"`
	SectorGrowthRate           float64 `json:"sector_growth_rate" yaml:"sector_growth_rate"`
	CompetitiveIntensity       float64 `json:"competitive_intensity" yaml:"competitive_intensity"`
	ValuationMultipleDeviation float64 `json:"valuation_multiple_deviation" yaml:"valuation_multiple_deviation"`
	FXExposure                 float64 `json:"fx_exposure" yaml:"fx_exposure"`
}

type OperationalMetrics struct {
	KeyPersonRisk         bool    `json:"key_person_risk" yaml:"key_person_risk"`
	SystemUptime          float64 `json:"system_uptime" yaml:"system_uptime"`
	EmployeeTurnover      float64 `json:"employee_turnover" yaml:"employee_turnover"`
	SupplierConcentration float64 `json:"supplier_concentration" yaml:"supplier_concentration"`
	CyberIncidents        int     `json:"cyber_incidents" yaml:"cyber_incidents"`
	ProcessMaturity       float64 `json:"process_maturity" yaml:"process_maturity"`
}

// FundMetrics is usually derived from FundPerformance, see FundPerformance.Metrics.
// A nil AgeYears means the vintage is unknown; age-gated rules are then evaluated.
type FundMetrics struct {
	AgeYears      *float64 `json:"age_years,omitempty" yaml:"age_years,omitempty"`
	TVPI          float64  `json:"tvpi" yaml:"tvpi"`
	DPI           float64  `json:"dpi" yaml:"dpi"`
	IRR           float64  `json:"irr" yaml:"irr"`
	IRRDefined    bool     `json:"irr_defined" yaml:"irr_defined"`
	UnfundedRatio float64  `json:"unfunded_ratio" yaml:"unfunded_ratio"`
}

// Validate rejects unknown domains. A nil metrics struct is not an error:
// evaluators read it as all-zero.
func (in AssessmentInput) Validate() error {
	switch in.Domain {
	case DomainPortfolio, DomainDueDiligence, DomainLegal, DomainMarket, DomainOperational, DomainFund:
		return nil
	}
	return &ValidationError{Field: "domain", Message: fmt.Sprintf("unknown assessment domain %q", in.Domain)}
}

func boolMetric(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
