package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

type WorkflowMode string

const (
	ModeTraditional WorkflowMode = "traditional"
	ModeAssisted    WorkflowMode = "assisted"
	ModeAutonomous  WorkflowMode = "autonomous"
)

// Ranking weights for the matched path.
const (
	BaseMatchScore      = 60.0
	IndustryMatchBonus  = 5.0
	SuccessRateWeight   = 20.0
	RecencyWeight       = 10.0
	RecencyDecayDays    = 30.0
	ModeExactBonus      = 10.0
	ModeAdjacentBonus   = 5.0
	FallbackScore       = 50.0
	MaxRecommendScore   = 100.0
	DefaultRecommendTop = 3
)

// Opportunity is the target profile a template is ranked against.
type Opportunity struct {
	Name      string  `json:"name,omitempty" yaml:"name,omitempty"`
	AssetType string  `json:"asset_type" yaml:"asset_type" validate:"required"`
	Industry  string  `json:"industry,omitempty" yaml:"industry,omitempty"`
	Stage     string  `json:"stage,omitempty" yaml:"stage,omitempty"`
	DealSize  float64 `json:"deal_size,omitempty" yaml:"deal_size,omitempty"`
}

// TemplateRecommendation is a template with its ranking score and reasons.
type TemplateRecommendation struct {
	Template Template `json:"template"`
	Score    float64  `json:"score"`
	Reasons  []string `json:"reasons"`
	Fallback bool     `json:"fallback"`
}

// RecommendTemplates ranks templates for an opportunity. Templates that are
// incompatible with the mode are always excluded. When no remaining template
// supports the opportunity's asset type, every compatible template is scored
// at FallbackScore. The result is sorted by score desc, usage desc, name asc
// and cut to limit (DefaultRecommendTop when limit <= 0).
func RecommendTemplates(templates []Template, opp Opportunity, mode WorkflowMode, limit int, now time.Time) []TemplateRecommendation {
	if limit <= 0 {
		limit = DefaultRecommendTop
	}

	var compatible, matched []Template
	for _, t := range templates {
		if !modeCompatible(t.AutomationLevel, mode) {
			continue
		}
		compatible = append(compatible, t)
		if t.SupportsAssetType(opp.AssetType) {
			matched = append(matched, t)
		}
	}

	var recs []TemplateRecommendation
	if len(matched) > 0 {
		recs = make([]TemplateRecommendation, 0, len(matched))
		for _, t := range matched {
			recs = append(recs, scoreMatched(t, opp, mode, now))
		}
	} else {
		recs = make([]TemplateRecommendation, 0, len(compatible))
		for _, t := range compatible {
			recs = append(recs, TemplateRecommendation{
				Template: t,
				Score:    FallbackScore,
				Reasons:  []string{fmt.Sprintf("No template targets asset type %q; general-purpose fallback", opp.AssetType)},
				Fallback: true,
			})
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Template.UsageCount != b.Template.UsageCount {
			return a.Template.UsageCount > b.Template.UsageCount
		}
		return a.Template.Name < b.Template.Name
	})

	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

func scoreMatched(t Template, opp Opportunity, mode WorkflowMode, now time.Time) TemplateRecommendation {
	score := BaseMatchScore
	reasons := []string{fmt.Sprintf("Built for %s opportunities", strings.ToLower(opp.AssetType))}

	if t.CoversIndustry(opp.Industry) {
		score += IndustryMatchBonus
		reasons = append(reasons, fmt.Sprintf("Covers the %s industry", opp.Industry))
	}

	if t.HistoricalSuccessRate > 0 {
		score += t.HistoricalSuccessRate * SuccessRateWeight
		reasons = append(reasons, fmt.Sprintf("%.0f%% historical success rate", t.HistoricalSuccessRate*100))
	}

	if recency := recencyScore(t.LastUsedAt, now); recency > 0 {
		score += recency
		reasons = append(reasons, fmt.Sprintf("Used %d days ago", int(now.Sub(*t.LastUsedAt).Hours()/24)))
	}

	switch alignment := modeAlignment(t.AutomationLevel, mode); alignment {
	case ModeExactBonus:
		score += alignment
		reasons = append(reasons, fmt.Sprintf("Automation level matches %s workflow", mode))
	case ModeAdjacentBonus:
		score += alignment
		reasons = append(reasons, fmt.Sprintf("Automation level is compatible with %s workflow", mode))
	}

	score = math.Min(score, MaxRecommendScore)
	return TemplateRecommendation{
		Template: t,
		Score:    math.Round(score*100) / 100,
		Reasons:  reasons,
	}
}

// recencyScore decays exponentially with the days since last use.
func recencyScore(lastUsed *time.Time, now time.Time) float64 {
	if lastUsed == nil || lastUsed.IsZero() {
		return 0
	}
	days := now.Sub(*lastUsed).Hours() / 24
	if days < 0 {
		days = 0
	}
	return RecencyWeight * math.Exp(-days/RecencyDecayDays)
}

func modeCompatible(level AutomationLevel, mode WorkflowMode) bool {
	if mode == ModeAutonomous {
		return level != AutomationNone
	}
	return true
}

func modeAlignment(level AutomationLevel, mode WorkflowMode) float64 {
	switch mode {
	case ModeAutonomous:
		switch level {
		case AutomationAutonomous:
			return ModeExactBonus
		case AutomationSupervised:
			return ModeAdjacentBonus
		}
	case ModeAssisted:
		switch level {
		case AutomationAssisted:
			return ModeExactBonus
		case AutomationSupervised:
			return ModeAdjacentBonus
		}
	case ModeTraditional:
		switch level {
		case AutomationNone:
			return ModeExactBonus
		case AutomationAssisted:
			return ModeAdjacentBonus
		}
	}
	return 0
}

// ParseWorkflowMode defaults unknown or empty modes to assisted.
func ParseWorkflowMode(s string) WorkflowMode {
	switch m := WorkflowMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeTraditional, ModeAssisted, ModeAutonomous:
		return m
	}
	return ModeAssisted
}
