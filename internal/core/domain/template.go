package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type AutomationLevel string

const (
	AutomationNone       AutomationLevel = "none"
	AutomationAssisted   AutomationLevel = "assisted"
	AutomationSupervised AutomationLevel = "supervised"
	AutomationAutonomous AutomationLevel = "autonomous"
)

// WeightTolerance is the allowed distance of a template's weight sum from 1.
const WeightTolerance = 0.01

// Criterion is one weighted line of a scoring rubric.
type Criterion struct {
	Name        string  `json:"name" yaml:"name" validate:"required"`
	Weight      float64 `json:"weight" yaml:"weight" validate:"gte=0,lte=1"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Template is a scoring rubric used to rank deal opportunities.
type Template struct {
	ID                    string          `json:"id" yaml:"id"`
	Name                  string          `json:"name" yaml:"name" validate:"required,max=200"`
	Description           string          `json:"description,omitempty" yaml:"description,omitempty"`
	AssetTypes            []string        `json:"asset_types" yaml:"asset_types" validate:"required,min=1"`
	Industries            []string        `json:"industries,omitempty" yaml:"industries,omitempty"`
	Criteria              []Criterion     `json:"criteria" yaml:"criteria" validate:"required,min=1,dive"`
	AutomationLevel       AutomationLevel `json:"automation_level" yaml:"automation_level" validate:"oneof=none assisted supervised autonomous"`
	HistoricalSuccessRate float64         `json:"historical_success_rate" yaml:"historical_success_rate" validate:"gte=0,lte=1"`
	UsageCount            int             `json:"usage_count" yaml:"usage_count" validate:"gte=0"`
	LastUsedAt            *time.Time      `json:"last_used_at,omitempty" yaml:"last_used_at,omitempty"`
	PassingScore          float64         `json:"passing_score" yaml:"passing_score" validate:"gte=0,lte=100"`
	CreatedAt             time.Time       `json:"created_at" yaml:"-"`
}

var templateValidate = validator.New()

// WeightSum returns the sum of all criterion weights.
func (t Template) WeightSum() float64 {
	var sum float64
	for _, c := range t.Criteria {
		sum += c.Weight
	}
	return sum
}

// SupportsAssetType reports whether the template lists assetType, case-insensitively.
func (t Template) SupportsAssetType(assetType string) bool {
	return containsFold(t.AssetTypes, assetType)
}

// CoversIndustry reports whether the template lists industry, case-insensitively.
func (t Template) CoversIndustry(industry string) bool {
	return industry != "" && containsFold(t.Industries, industry)
}

// ValidateTemplate checks struct constraints and that weights sum to 1 ± 0.01.
func ValidateTemplate(t Template) error {
	if err := templateValidate.Struct(t); err != nil {
		return FromValidatorError(err)
	}

	seen := make(map[string]bool, len(t.Criteria))
	for _, c := range t.Criteria {
		key := strings.ToLower(c.Name)
		if seen[key] {
			return &ValidationError{Field: "criteria", Message: fmt.Sprintf("duplicate criterion %q", c.Name)}
		}
		seen[key] = true
	}

	if sum := t.WeightSum(); math.Abs(sum-1) > WeightTolerance {
		return &ValidationError{
			Field:   "criteria",
			Message: fmt.Sprintf("criterion weights must sum to 1.0 (±%.2f), got %.3f", WeightTolerance, sum),
		}
	}
	return nil
}

// CriterionScore is the contribution of one criterion to an opportunity score.
type CriterionScore struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// ScreeningResult is the outcome of scoring an opportunity against a template.
type ScreeningResult struct {
	TemplateID string           `json:"template_id"`
	Score      float64          `json:"score"`
	Passed     bool             `json:"passed"`
	Criteria   []CriterionScore `json:"criteria"`
	Missing    []string         `json:"missing,omitempty"`
}

// ScoreOpportunity computes the weighted sum of criterion values (0-100).
// Missing values count as 0 and are reported; out-of-range values are clamped.
func ScoreOpportunity(t Template, values map[string]float64) ScreeningResult {
	lookup := make(map[string]float64, len(values))
	for k, v := range values {
		lookup[strings.ToLower(k)] = v
	}

	res := ScreeningResult{TemplateID: t.ID, Criteria: make([]CriterionScore, 0, len(t.Criteria))}
	for _, c := range t.Criteria {
		v, ok := lookup[strings.ToLower(c.Name)]
		if !ok {
			res.Missing = append(res.Missing, c.Name)
		}
		v = clamp(v, 0, 100)
		contribution := v * c.Weight
		res.Score += contribution
		res.Criteria = append(res.Criteria, CriterionScore{
			Name:         c.Name,
			Value:        v,
			Weight:       c.Weight,
			Contribution: contribution,
		})
	}
	res.Score = math.Round(res.Score*100) / 100
	res.Passed = res.Score >= t.PassingScore
	return res
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
