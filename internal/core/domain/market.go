package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

// MarketIndicator is one observation of a sector metric (deal volume, median
// EV/EBITDA, fundraising, ...) from a market data feed.
type MarketIndicator struct {
	Sector        string    `json:"sector"`
	Region        string    `json:"region"`
	Metric        string    `json:"metric"`
	Value         float64   `json:"value"`
	PreviousValue float64   `json:"previous_value"`
	AsOf          time.Time `json:"as_of"`
	Source        string    `json:"source"`
}

// ChangePct is the relative change from PreviousValue, 0 when there is no
// previous value.
func (m MarketIndicator) ChangePct() float64 {
	if m.PreviousValue == 0 {
		return 0
	}
	return (m.Value - m.PreviousValue) / math.Abs(m.PreviousValue) * 100
}

type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentNeutral Sentiment = "neutral"
	SentimentBearish Sentiment = "bearish"

	sentimentBandPct = 5.0
	topSectorCount   = 3
)

// SectorSummary aggregates the latest indicators of one sector.
type SectorSummary struct {
	Sector         string            `json:"sector"`
	Indicators     []MarketIndicator `json:"indicators"`
	AvgChangePct   float64           `json:"avg_change_pct"`
	Sentiment      Sentiment         `json:"sentiment"`
	LatestObserved time.Time         `json:"latest_observed"`
}

// MarketSnapshot is the market-intelligence view across sectors.
type MarketSnapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Sectors     []SectorSummary `json:"sectors"`
	TopSectors  []string        `json:"top_sectors"`
	Indicators  int             `json:"indicator_count"`
}

// BuildMarketSnapshot keeps the latest indicator per (sector, region, metric),
// summarises each sector, and ranks sectors by average change.
func BuildMarketSnapshot(indicators []MarketIndicator, now time.Time) MarketSnapshot {
	type key struct{ sector, region, metric string }
	latest := make(map[key]MarketIndicator)
	for _, ind := range indicators {
		k := key{strings.ToLower(ind.Sector), strings.ToLower(ind.Region), strings.ToLower(ind.Metric)}
		if cur, ok := latest[k]; !ok || ind.AsOf.After(cur.AsOf) {
			latest[k] = ind
		}
	}

	bySector := make(map[string][]MarketIndicator)
	for k, ind := range latest {
		bySector[k.sector] = append(bySector[k.sector], ind)
	}

	snap := MarketSnapshot{
		GeneratedAt: now,
		Sectors:     make([]SectorSummary, 0, len(bySector)),
		TopSectors:  []string{},
		Indicators:  len(latest),
	}
	for _, inds := range bySector {
		sort.Slice(inds, func(i, j int) bool {
			if inds[i].Metric != inds[j].Metric {
				return inds[i].Metric < inds[j].Metric
			}
			return inds[i].Region < inds[j].Region
		})
		var sum float64
		var observed time.Time
		for _, ind := range inds {
			sum += ind.ChangePct()
			if ind.AsOf.After(observed) {
				observed = ind.AsOf
			}
		}
		avg := math.Round(sum/float64(len(inds))*100) / 100
		snap.Sectors = append(snap.Sectors, SectorSummary{
			Sector:         inds[0].Sector,
			Indicators:     inds,
			AvgChangePct:   avg,
			Sentiment:      sentimentFor(avg),
			LatestObserved: observed,
		})
	}

	sort.Slice(snap.Sectors, func(i, j int) bool {
		a, b := snap.Sectors[i], snap.Sectors[j]
		if a.AvgChangePct != b.AvgChangePct {
			return a.AvgChangePct > b.AvgChangePct
		}
		return a.Sector < b.Sector
	})
	for i := 0; i < len(snap.Sectors) && i < topSectorCount; i++ {
		snap.TopSectors = append(snap.TopSectors, snap.Sectors[i].Sector)
	}
	return snap
}

func sentimentFor(avgChangePct float64) Sentiment {
	switch {
	case avgChangePct > sentimentBandPct:
		return SentimentBullish
	case avgChangePct < -sentimentBandPct:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}
