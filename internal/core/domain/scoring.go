package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type AlertLevel string

const (
	AlertNone     AlertLevel = "NONE"
	AlertLow      AlertLevel = "LOW"
	AlertMedium   AlertLevel = "MEDIUM"
	AlertHigh     AlertLevel = "HIGH"
	AlertCritical AlertLevel = "CRITICAL"
)

// Rank orders alert levels, higher is more severe.
func (a AlertLevel) Rank() int {
	switch a {
	case AlertCritical:
		return 4
	case AlertHigh:
		return 3
	case AlertMedium:
		return 2
	case AlertLow:
		return 1
	default:
		return 0
	}
}

// ParseAlertLevel maps a level name, ignoring case and surrounding space.
func ParseAlertLevel(s string) (AlertLevel, error) {
	switch l := AlertLevel(strings.ToUpper(strings.TrimSpace(s))); l {
	case AlertNone, AlertLow, AlertMedium, AlertHigh, AlertCritical:
		return l, nil
	}
	return "", &ValidationError{Message: fmt.Sprintf("unknown alert level %q (NONE, LOW, MEDIUM, HIGH, CRITICAL)", s)}
}

const (
	MinRiskScore = 0.0
	MaxRiskScore = 10.0

	// trendBand is the distance from the historical mean inside which the
	// trend is reported as stable.
	trendBand = 0.5
)

// CalculateRiskScore averages probability × impact × severity weight over the
// factors and clamps the result to [0,10]. No factors scores 0.
// This is a pure domain function with no I/O dependencies.
func CalculateRiskScore(factors []RiskFactor) float64 {
	if len(factors) == 0 {
		return 0
	}
	var total float64
	for _, f := range factors {
		total += f.WeightedScore()
	}
	return clamp(total/float64(len(factors)), MinRiskScore, MaxRiskScore)
}

// CalculateRiskGrade maps a score to a letter: ≤2 A, ≤4 B, ≤6 C, ≤8 D, else F.
func CalculateRiskGrade(score float64) string {
	switch {
	case score <= 2:
		return "A"
	case score <= 4:
		return "B"
	case score <= 6:
		return "C"
	case score <= 8:
		return "D"
	default:
		return "F"
	}
}

// DetermineAlertLevel maps a score to a coarse alert bucket.
func DetermineAlertLevel(score float64) AlertLevel {
	switch {
	case score >= 8.5:
		return AlertCritical
	case score >= 7.0:
		return AlertHigh
	case score >= 5.0:
		return AlertMedium
	case score >= 3.0:
		return AlertLow
	default:
		return AlertNone
	}
}

// DetermineTrend compares the current score against the mean of prior scores.
func DetermineTrend(current float64, history []float64) Trend {
	if len(history) == 0 {
		return TrendStable
	}
	var sum float64
	for _, h := range history {
		sum += h
	}
	delta := current - sum/float64(len(history))
	switch {
	case delta > trendBand:
		return TrendDeteriorating
	case delta < -trendBand:
		return TrendImproving
	default:
		return TrendStable
	}
}

var levelRecommendations = map[AlertLevel][]string{
	AlertCritical: {
		"Escalate to investment committee immediately",
		"Freeze new capital deployment pending review",
	},
	AlertHigh: {
		"Schedule risk review with deal team within 7 days",
		"Increase monitoring frequency to weekly",
	},
	AlertMedium: {
		"Add to monthly risk watchlist",
	},
	AlertLow: {
		"Continue quarterly monitoring",
	},
}

var categoryRecommendations = map[RiskCategory]string{
	CategoryFinancial:     "Stress-test capital structure and covenant headroom",
	CategoryOperational:   "Engage operating partners on remediation plan",
	CategoryMarket:        "Refresh market comparables and downside scenarios",
	CategoryLegal:         "Obtain outside counsel assessment of legal exposure",
	CategoryRegulatory:    "Review compliance program with regulatory counsel",
	CategoryConcentration: "Evaluate diversification or hedging options",
	CategoryLiquidity:     "Review liquidity buffers and credit facility availability",
	CategoryValuation:     "Commission independent valuation review",
	CategorySystemic:      "Run portfolio-wide correlated stress scenario",
}

// GenerateRecommendations returns level-driven actions followed by one action
// per distinct triggered category, in first-seen order.
func GenerateRecommendations(level AlertLevel, factors []RiskFactor) []string {
	recs := append([]string{}, levelRecommendations[level]...)
	seen := make(map[RiskCategory]bool)
	for _, f := range factors {
		if seen[f.Category] {
			continue
		}
		seen[f.Category] = true
		if rec, ok := categoryRecommendations[f.Category]; ok {
			recs = append(recs, rec)
		}
	}
	return recs
}

// Aggregate builds a RiskAssessment for one entity. history holds prior
// overall scores used for trend derivation.
func Aggregate(entityID string, entityType EntityType, factors []RiskFactor, history []float64, now time.Time) RiskAssessment {
	if factors == nil {
		factors = []RiskFactor{}
	}
	score := CalculateRiskScore(factors)
	level := DetermineAlertLevel(score)
	return RiskAssessment{
		EntityID:         entityID,
		EntityType:       entityType,
		OverallRiskScore: score,
		RiskGrade:        CalculateRiskGrade(score),
		Factors:          factors,
		Trend:            DetermineTrend(score, history),
		Recommendations:  GenerateRecommendations(level, factors),
		AlertLevel:       level,
		AssessedAt:       now,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
