package domain

import "fmt"

// thresholdRule fires when a metric crosses Threshold. Above selects the
// direction: metric > Threshold when true, metric < Threshold otherwise.
type thresholdRule[M any] struct {
	Key         string
	Value       func(M) float64
	When        func(M) bool // optional guard
	Above       bool
	Threshold   float64
	Category    RiskCategory
	Severity    Severity
	Probability float64
	Impact      float64
	Description string
}

func (r thresholdRule[M]) fires(v float64) bool {
	if r.Above {
		return v > r.Threshold
	}
	return v < r.Threshold
}

func evaluateRules[M any](module string, m M, rules []thresholdRule[M]) []RiskFactor {
	factors := make([]RiskFactor, 0, len(rules))
	for _, rule := range rules {
		if rule.When != nil && !rule.When(m) {
			continue
		}
		v := rule.Value(m)
		if !rule.fires(v) {
			continue
		}
		factors = append(factors, RiskFactor{
			ID:          module + "." + rule.Key,
			Category:    rule.Category,
			Severity:    rule.Severity,
			Probability: rule.Probability,
			Impact:      rule.Impact,
			Description: fmt.Sprintf("%s (%.2f, threshold %.2f)", rule.Description, v, rule.Threshold),
			Source:      module,
			Status:      StatusActive,
		})
	}
	return factors
}

var portfolioRules = []thresholdRule[PortfolioMetrics]{
	{
		Key: "top_holding_concentration", Value: func(m PortfolioMetrics) float64 { return m.TopHoldingConcentration },
		Above: true, Threshold: 0.25,
		Category: CategoryConcentration, Severity: SeverityHigh, Probability: 0.7, Impact: 7,
		Description: "Single holding exceeds 25% of NAV",
	},
	{
		Key: "sector_concentration", Value: func(m PortfolioMetrics) float64 { return m.SectorConcentration },
		Above: true, Threshold: 0.40,
		Category: CategoryConcentration, Severity: SeverityMedium, Probability: 0.6, Impact: 6,
		Description: "Sector exposure exceeds 40% of portfolio",
	},
	{
		Key: "net_leverage", Value: func(m PortfolioMetrics) float64 { return m.NetLeverage },
		Above: true, Threshold: 3.0,
		Category: CategoryFinancial, Severity: SeverityHigh, Probability: 0.6, Impact: 8,
		Description: "Net leverage above 3.0x",
	},
	{
		Key: "liquidity_coverage", Value: func(m PortfolioMetrics) float64 { return m.LiquidityCoverage },
		Above: false, Threshold: 1.0,
		Category: CategoryLiquidity, Severity: SeverityHigh, Probability: 0.5, Impact: 8,
		Description: "Liquid assets do not cover near-term obligations",
	},
	{
		Key: "unrealized_loss", Value: func(m PortfolioMetrics) float64 { return m.UnrealizedLossPct },
		Above: true, Threshold: 0.15,
		Category: CategoryValuation, Severity: SeverityMedium, Probability: 0.6, Impact: 6,
		Description: "Unrealized losses exceed 15% of cost",
	},
	{
		Key: "valuation_volatility", Value: func(m PortfolioMetrics) float64 { return m.ValuationVolatility },
		Above: true, Threshold: 0.30,
		Category: CategoryMarket, Severity: SeverityMedium, Probability: 0.5, Impact: 5,
		Description: "Mark-to-market volatility above 30%",
	},
}

var dueDiligenceRules = []thresholdRule[DueDiligenceMetrics]{
	{
		Key: "financial_data_completeness", Value: func(m DueDiligenceMetrics) float64 { return m.FinancialDataCompleteness },
		Above: false, Threshold: 0.8,
		Category: CategoryFinancial, Severity: SeverityMedium, Probability: 0.7, Impact: 5,
		Description: "Financial data room less than 80% complete",
	},
	{
		Key: "customer_concentration", Value: func(m DueDiligenceMetrics) float64 { return m.CustomerConcentration },
		Above: true, Threshold: 0.30,
		Category: CategoryConcentration, Severity: SeverityHigh, Probability: 0.6, Impact: 7,
		Description: "Top customer exceeds 30% of revenue",
	},
	{
		Key: "management_turnover", Value: func(m DueDiligenceMetrics) float64 { return m.ManagementTurnover },
		Above: true, Threshold: 0.20,
		Category: CategoryOperational, Severity: SeverityMedium, Probability: 0.5, Impact: 6,
		Description: "Management turnover above 20%",
	},
	{
		Key: "red_flags", Value: func(m DueDiligenceMetrics) float64 { return float64(m.RedFlags) },
		Above: true, Threshold: 0,
		Category: CategoryLegal, Severity: SeverityHigh, Probability: 0.8, Impact: 8,
		Description: "Unresolved diligence red flags",
	},
	{
		Key: "earnings_adjustment", Value: func(m DueDiligenceMetrics) float64 { return m.EarningsAdjustmentPct },
		Above: true, Threshold: 0.10,
		Category: CategoryValuation, Severity: SeverityMedium, Probability: 0.6, Impact: 6,
		Description: "Quality-of-earnings adjustments exceed 10% of EBITDA",
	},
	{
		Key: "key_person_dependency", Value: func(m DueDiligenceMetrics) float64 { return boolMetric(m.KeyPersonDependency) },
		Above: true, Threshold: 0,
		Category: CategoryOperational, Severity: SeverityMedium, Probability: 0.5, Impact: 7,
		Description: "Business depends on a key individual",
	},
}

var legalRules = []thresholdRule[LegalMetrics]{
	{
		Key: "pending_litigation", Value: func(m LegalMetrics) float64 { return float64(m.PendingLitigation) },
		Above: true, Threshold: 0,
		Category: CategoryLegal, Severity: SeverityHigh, Probability: 0.6, Impact: 7,
		Description: "Pending litigation",
	},
	{
		Key: "regulatory_inquiries", Value: func(m LegalMetrics) float64 { return float64(m.RegulatoryInquiries) },
		Above: true, Threshold: 0,
		Category: CategoryRegulatory, Severity: SeverityHigh, Probability: 0.5, Impact: 8,
		Description: "Open regulatory inquiries",
	},
	{
		Key: "contract_dispute_exposure", Value: func(m LegalMetrics) float64 { return m.ContractDisputeExposure },
		Above: true, Threshold: 0.05,
		Category: CategoryLegal, Severity: SeverityMedium, Probability: 0.5, Impact: 5,
		Description: "Contract disputes exceed 5% of enterprise value",
	},
	{
		Key: "compliance_violations", Value: func(m LegalMetrics) float64 { return float64(m.ComplianceViolations) },
		Above: true, Threshold: 0,
		Category: CategoryRegulatory, Severity: SeverityMedium, Probability: 0.7, Impact: 6,
		Description: "Recorded compliance violations",
	},
	{
		Key: "ip_disputes", Value: func(m LegalMetrics) float64 { return boolMetric(m.IPDisputes) },
		Above: true, Threshold: 0,
		Category: CategoryLegal, Severity: SeverityMedium, Probability: 0.4, Impact: 6,
		Description: "Intellectual property disputes",
	},
	{
		Key: "sanctions_exposure", Value: func(m LegalMetrics) float64 { return boolMetric(m.SanctionsExposure) },
		Above: true, Threshold: 0,
		Category: CategoryRegulatory, Severity: SeverityCritical, Probability: 0.9, Impact: 10,
		Description: "Exposure to sanctioned parties",
	},
}

var marketRules = []thresholdRule[MarketMetrics]{
	{
		Key: "volatility_index", Value: func(m MarketMetrics) float64 { return m.VolatilityIndex },
		Above: true, Threshold: 25,
		Category: CategoryMarket, Severity: SeverityMedium, Probability: 0.6, Impact: 6,
		Description: "Market volatility index above 25",
	},
	{
		Key: "interest_rate_delta", Value: func(m MarketMetrics) float64 { return m.InterestRateDelta },
		Above: true, Threshold: 1.0,
		Category: CategoryFinancial, Severity: SeverityHigh, Probability: 0.6, Impact: 7,
		Description: "Rates moved more than 100bp since underwriting",
	},
	{
		Key: "sector_growth", Value: func(m MarketMetrics) float64 { return m.SectorGrowthRate },
		Above: false, Threshold: 0,
		Category: CategoryMarket, Severity: SeverityMedium, Probability: 0.5, Impact: 6,
		Description: "Sector is contracting",
	},
	{
		Key: "competitive_intensity", Value: func(m MarketMetrics) float64 { return m.CompetitiveIntensity },
		Above: true, Threshold: 0.7,
		Category: CategoryMarket, Severity: SeverityLow, Probability: 0.7, Impact: 5,
		Description: "Highly competitive market",
	},
	{
		Key: "valuation_multiple_deviation", Value: func(m MarketMetrics) float64 { return m.ValuationMultipleDeviation },
		Above: true, Threshold: 0.30,
		Category: CategoryValuation, Severity: SeverityHigh, Probability: 0.5, Impact: 7,
		Description: "Entry multiple deviates more than 30% from comparables",
	},
	{
		Key: "fx_exposure", Value: func(m MarketMetrics) float64 { return m.FXExposure },
		Above: true, Threshold: 0.40,
		Category: CategoryFinancial, Severity: SeverityMedium, Probability: 0.5, Impact: 5,
		Description: "Unhedged FX exposure above 40%",
	},
}

var operationalRules = []thresholdRule[OperationalMetrics]{
	{
		Key: "key_person_risk", Value: func(m OperationalMetrics) float64 { return boolMetric(m.KeyPersonRisk) },
		Above: true, Threshold: 0,
		Category: CategoryOperational, Severity: SeverityHigh, Probability: 0.5, Impact: 7,
		Description: "Key person risk without succession plan",
	},
	{
		Key: "system_uptime", Value: func(m OperationalMetrics) float64 { return m.SystemUptime },
		Above: false, Threshold: 0.99,
		Category: CategoryOperational, Severity: SeverityMedium, Probability: 0.6, Impact: 5,
		Description: "Critical system uptime below 99%",
	},
	{
		Key: "employee_turnover", Value: func(m OperationalMetrics) float64 { return m.EmployeeTurnover },
		Above: true, Threshold: 0.25,
		Category: CategoryOperational, Severity: SeverityMedium, Probability: 0.6, Impact: 5,
		Description: "Employee turnover above 25%",
	},
	{
		Key: "supplier_concentration", Value: func(m OperationalMetrics) float64 { return m.SupplierConcentration },
		Above: true, Threshold: 0.50,
		Category: CategoryConcentration, Severity: SeverityMedium, Probability: 0.5, Impact: 6,
		Description: "Single supplier provides more than half of inputs",
	},
	{
		Key: "cyber_incidents", Value: func(m OperationalMetrics) float64 { return float64(m.CyberIncidents) },
		Above: true, Threshold: 0,
		Category: CategoryOperational, Severity: SeverityHigh, Probability: 0.7, Impact: 8,
		Description: "Cyber incidents in the last 12 months",
	},
	{
		Key: "process_maturity", Value: func(m OperationalMetrics) float64 { return m.ProcessMaturity },
		Above: false, Threshold: 0.5,
		Category: CategoryOperational, Severity: SeverityLow, Probability: 0.6, Impact: 4,
		Description: "Immature operating processes",
	},
}

// IRRHurdle is the preferred-return hurdle used by the fund evaluator.
const IRRHurdle = 0.08

var fundRules = []thresholdRule[FundMetrics]{
	{
		Key: "tvpi", Value: func(m FundMetrics) float64 { return m.TVPI },
		Above: false, Threshold: 1.0,
		Category: CategoryValuation, Severity: SeverityHigh, Probability: 0.6, Impact: 8,
		Description: "Fund value below paid-in capital",
	},
	{
		Key: "dpi", Value: func(m FundMetrics) float64 { return m.DPI },
		When:  func(m FundMetrics) bool { return m.olderThan(6) },
		Above: false, Threshold: 0.5,
		Category: CategoryLiquidity, Severity: SeverityMedium, Probability: 0.7, Impact: 6,
		Description: "Distributions below half of paid-in after year 6",
	},
	{
		Key: "irr_hurdle", Value: func(m FundMetrics) float64 { return m.IRR },
		When:  func(m FundMetrics) bool { return m.IRRDefined },
		Above: false, Threshold: IRRHurdle,
		Category: CategoryFinancial, Severity: SeverityMedium, Probability: 0.6, Impact: 6,
		Description: "Net IRR below preferred-return hurdle",
	},
	{
		Key: "unfunded_commitments", Value: func(m FundMetrics) float64 { return m.UnfundedRatio },
		When:  func(m FundMetrics) bool { return m.olderThan(5) },
		Above: true, Threshold: 0.5,
		Category: CategoryOperational, Severity: SeverityLow, Probability: 0.5, Impact: 4,
		Description: "More than half of commitments uncalled after year 5",
	},
}

// olderThan reports whether the fund is past the given age. Unknown age counts
// as past it.
func (m FundMetrics) olderThan(years float64) bool {
	return m.AgeYears == nil || *m.AgeYears > years
}

// EvaluatePortfolio returns the portfolio risk factors triggered by m.
func EvaluatePortfolio(m PortfolioMetrics) []RiskFactor {
	return evaluateRules(ModulePortfolio, m, portfolioRules)
}

func EvaluateDueDiligence(m DueDiligenceMetrics) []RiskFactor {
	return evaluateRules(ModuleDueDiligence, m, dueDiligenceRules)
}

func EvaluateLegal(m LegalMetrics) []RiskFactor {
	return evaluateRules(ModuleLegal, m, legalRules)
}

func EvaluateMarket(m MarketMetrics) []RiskFactor {
	return evaluateRules(ModuleMarket, m, marketRules)
}

func EvaluateOperational(m OperationalMetrics) []RiskFactor {
	return evaluateRules(ModuleOperational, m, operationalRules)
}

func EvaluateFund(m FundMetrics) []RiskFactor {
	return evaluateRules(ModuleFund, m, fundRules)
}

// Evaluate dispatches on the input's domain tag. A nil metrics struct is
// evaluated as its zero value.
func Evaluate(in AssessmentInput) ([]RiskFactor, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	switch in.Domain {
	case DomainPortfolio:
		return EvaluatePortfolio(deref(in.Portfolio)), nil
	case DomainDueDiligence:
		return EvaluateDueDiligence(deref(in.DueDiligence)), nil
	case DomainLegal:
		return EvaluateLegal(deref(in.Legal)), nil
	case DomainMarket:
		return EvaluateMarket(deref(in.Market)), nil
	case DomainOperational:
		return EvaluateOperational(deref(in.Operational)), nil
	default:
		return EvaluateFund(deref(in.Fund)), nil
	}
}

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
