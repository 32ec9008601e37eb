package domain

import (
	"math"
	"sort"
	"time"
)

type CashFlowKind string

const (
	CashFlowContribution CashFlowKind = "contribution"
	CashFlowDistribution CashFlowKind = "distribution"
)

// FundCashFlow is a dated LP cash flow. Amount is always positive; Kind gives
// the direction.
type FundCashFlow struct {
	Date   time.Time    `json:"date" yaml:"date"`
	Amount float64      `json:"amount" yaml:"amount" validate:"gt=0"`
	Kind   CashFlowKind `json:"kind" yaml:"kind" validate:"oneof=contribution distribution"`
}

// FundSnapshot is the input for fund operations analytics.
type FundSnapshot struct {
	FundID        string         `json:"fund_id" yaml:"fund_id" validate:"required"`
	VintageDate   time.Time      `json:"vintage_date" yaml:"vintage_date"`
	Commitment    float64        `json:"commitment" yaml:"commitment" validate:"gte=0"`
	NAV           float64        `json:"nav" yaml:"nav" validate:"gte=0"`
	ValuationDate time.Time      `json:"valuation_date" yaml:"valuation_date"`
	CashFlows     []FundCashFlow `json:"cash_flows" yaml:"cash_flows" validate:"dive"`
}

// FundPerformance holds derived fund multiples and IRR.
type FundPerformance struct {
	FundID        string  `json:"fund_id"`
	PaidIn        float64 `json:"paid_in"`
	Distributed   float64 `json:"distributed"`
	NAV           float64 `json:"nav"`
	TVPI          float64 `json:"tvpi"`
	DPI           float64 `json:"dpi"`
	RVPI          float64 `json:"rvpi"`
	IRR           float64 `json:"irr"`
	IRRDefined    bool    `json:"irr_defined"`
	UnfundedRatio float64 `json:"unfunded_ratio"`
	AgeYears      float64 `json:"age_years"`
	AgeKnown      bool    `json:"age_known"`
}

// Metrics converts performance into fund evaluator input.
func (p FundPerformance) Metrics() FundMetrics {
	m := FundMetrics{
		TVPI:          p.TVPI,
		DPI:           p.DPI,
		IRR:           p.IRR,
		IRRDefined:    p.IRRDefined,
		UnfundedRatio: p.UnfundedRatio,
	}
	if p.AgeKnown {
		age := p.AgeYears
		m.AgeYears = &age
	}
	return m
}

const daysPerYear = 365.0

// AnalyzeFund computes paid-in, distributions, TVPI, DPI, RVPI and XIRR. The
// residual NAV is treated as a terminal distribution on ValuationDate.
func AnalyzeFund(s FundSnapshot) FundPerformance {
	perf := FundPerformance{FundID: s.FundID, NAV: s.NAV}

	var flows []datedFlow
	for _, cf := range s.CashFlows {
		switch cf.Kind {
		case CashFlowContribution:
			perf.PaidIn += cf.Amount
			flows = append(flows, datedFlow{cf.Date, -cf.Amount})
		case CashFlowDistribution:
			perf.Distributed += cf.Amount
			flows = append(flows, datedFlow{cf.Date, cf.Amount})
		}
	}

	valuationDate := s.ValuationDate
	if valuationDate.IsZero() {
		valuationDate = latestDate(s.CashFlows)
	}
	if s.NAV > 0 {
		flows = append(flows, datedFlow{valuationDate, s.NAV})
	}

	if perf.PaidIn > 0 {
		perf.DPI = perf.Distributed / perf.PaidIn
		perf.RVPI = s.NAV / perf.PaidIn
		perf.TVPI = perf.DPI + perf.RVPI
	}
	if s.Commitment > 0 {
		perf.UnfundedRatio = math.Max(0, s.Commitment-perf.PaidIn) / s.Commitment
	}
	if !s.VintageDate.IsZero() && !valuationDate.IsZero() {
		perf.AgeKnown = true
		if valuationDate.After(s.VintageDate) {
			perf.AgeYears = valuationDate.Sub(s.VintageDate).Hours() / 24 / daysPerYear
		}
	}

	perf.IRR, perf.IRRDefined = xirr(flows)
	return perf
}

type datedFlow struct {
	date   time.Time
	amount float64
}

const (
	irrTolerance     = 1e-7
	irrMaxIterations = 100
	irrLowerBound    = -0.9999
	irrUpperBound    = 100.0
)

// xirr returns the annualized internal rate of return for irregular flows.
// It needs at least one negative and one positive flow; otherwise the rate is
// undefined. Newton's method is tried first, then bisection.
func xirr(flows []datedFlow) (float64, bool) {
	if len(flows) < 2 {
		return 0, false
	}
	sorted := append([]datedFlow(nil), flows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].date.Before(sorted[j].date) })

	var hasNeg, hasPos bool
	for _, f := range sorted {
		hasNeg = hasNeg || f.amount < 0
		hasPos = hasPos || f.amount > 0
	}
	if !hasNeg || !hasPos {
		return 0, false
	}

	t0 := sorted[0].date
	years := make([]float64, len(sorted))
	for i, f := range sorted {
		years[i] = f.date.Sub(t0).Hours() / 24 / daysPerYear
	}

	npv := func(rate float64) (float64, float64) {
		var value, deriv float64
		for i, f := range sorted {
			denom := math.Pow(1+rate, years[i])
			value += f.amount / denom
			deriv -= years[i] * f.amount / (denom * (1 + rate))
		}
		return value, deriv
	}

	rate := 0.1
	for i := 0; i < irrMaxIterations; i++ {
		v, d := npv(rate)
		if math.Abs(v) < irrTolerance {
			return rate, true
		}
		if d == 0 || math.IsNaN(d) {
			break
		}
		next := rate - v/d
		if next <= irrLowerBound || next > irrUpperBound || math.IsNaN(next) {
			break
		}
		if math.Abs(next-rate) < irrTolerance {
			return next, true
		}
		rate = next
	}

	lo, hi := irrLowerBound, irrUpperBound
	vlo, _ := npv(lo)
	vhi, _ := npv(hi)
	if vlo*vhi > 0 {
		return 0, false
	}
	for i := 0; i < 4*irrMaxIterations; i++ {
		mid := (lo + hi) / 2
		vmid, _ := npv(mid)
		if math.Abs(vmid) < irrTolerance || (hi-lo)/2 < irrTolerance {
			return mid, true
		}
		if vmid*vlo < 0 {
			hi = mid
		} else {
			lo, vlo = mid, vmid
		}
	}
	return (lo + hi) / 2, true
}

func latestDate(flows []FundCashFlow) time.Time {
	var latest time.Time
	for _, f := range flows {
		if f.Date.After(latest) {
			latest = f.Date
		}
	}
	return latest
}
