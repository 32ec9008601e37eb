package domain

import "time"

type RiskCategory string

const (
	CategoryFinancial     RiskCategory = "financial"
	CategoryOperational   RiskCategory = "operational"
	CategoryMarket        RiskCategory = "market"
	CategoryLegal         RiskCategory = "legal"
	CategoryRegulatory    RiskCategory = "regulatory"
	CategoryConcentration RiskCategory = "concentration"
	CategoryLiquidity     RiskCategory = "liquidity"
	CategoryValuation     RiskCategory = "valuation"
	CategorySystemic      RiskCategory = "systemic"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight is the multiplier applied to probability × impact when aggregating.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.75
	case SeverityMedium:
		return 0.5
	case SeverityLow:
		return 0.25
	default:
		return 0
	}
}

// AtLeastHigh reports whether the severity is high or critical.
func (s Severity) AtLeastHigh() bool {
	return s == SeverityHigh || s == SeverityCritical
}

type FactorStatus string

const (
	StatusActive     FactorStatus = "active"
	StatusMonitoring FactorStatus = "monitoring"
	StatusMitigated  FactorStatus = "mitigated"
)

// Source module tags.
const (
	ModulePortfolio    = "portfolio"
	ModuleDueDiligence = "due_diligence"
	ModuleLegal        = "legal"
	ModuleMarket       = "market"
	ModuleOperational  = "operational"
	ModuleFund         = "fund"
	ModuleCorrelation  = "correlation"
)

type EntityType string

const (
	EntityFund             EntityType = "fund"
	EntityDeal             EntityType = "deal"
	EntityPortfolioCompany EntityType = "portfolio_company"
	EntityModule           EntityType = "module"
)

// RiskFactor is a single detected risk condition.
type RiskFactor struct {
	ID          string       `json:"id"`
	Category    RiskCategory `json:"category"`
	Severity    Severity     `json:"severity"`
	Probability float64      `json:"probability"` // 0-1
	Impact      float64      `json:"impact"`      // 0-10
	Description string       `json:"description"`
	Source      string       `json:"source"`
	Status      FactorStatus `json:"status"`
}

// WeightedScore is probability × impact × severity weight for this factor.
func (f RiskFactor) WeightedScore() float64 {
	return f.Probability * f.Impact * f.Severity.Weight()
}

type Trend string

const (
	TrendImproving     Trend = "improving"
	TrendStable        Trend = "stable"
	TrendDeteriorating Trend = "deteriorating"
)

// RiskAssessment is the aggregated risk view for one entity.
type RiskAssessment struct {
	ID               string       `json:"id"`
	EntityID         string       `json:"entity_id"`
	EntityType       EntityType   `json:"entity_type"`
	Module           string       `json:"module,omitempty"`
	OverallRiskScore float64      `json:"overall_risk_score"`
	RiskGrade        string       `json:"risk_grade"`
	Factors          []RiskFactor `json:"factors"`
	Trend            Trend        `json:"trend"`
	Recommendations  []string     `json:"recommendations"`
	AlertLevel       AlertLevel   `json:"alert_level"`
	AssessedAt       time.Time    `json:"assessed_at"`
}

// ComprehensiveAssessment combines per-module assessments with the factors
// synthesized across modules.
type ComprehensiveAssessment struct {
	Overall           RiskAssessment            `json:"overall"`
	Modules           map[string]RiskAssessment `json:"modules"`
	CorrelatedFactors []RiskFactor              `json:"correlated_factors"`
}
