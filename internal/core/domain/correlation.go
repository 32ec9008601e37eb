package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// elevatedModuleScore is the module score at which a module counts as elevated.
	elevatedModuleScore = 7.0
	// minElevatedModules is how many elevated modules trigger a systemic factor.
	minElevatedModules = 2
)

// CorrelateModules synthesizes systemic risk factors from simple co-occurrence
// conditions across module assessments. No statistical correlation is computed.
func CorrelateModules(modules map[string]RiskAssessment) []RiskFactor {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)

	var factors []RiskFactor

	var elevated []string
	for _, name := range names {
		if modules[name].OverallRiskScore >= elevatedModuleScore {
			elevated = append(elevated, name)
		}
	}
	if len(elevated) >= minElevatedModules {
		factors = append(factors, RiskFactor{
			ID:          ModuleCorrelation + ".systemic",
			Category:    CategorySystemic,
			Severity:    SeverityCritical,
			Probability: 0.8,
			Impact:      9,
			Description: fmt.Sprintf("Elevated risk in %d modules: %s", len(elevated), strings.Join(elevated, ", ")),
			Source:      ModuleCorrelation,
			Status:      StatusActive,
		})
	}

	// Categories carried at high or critical severity by two or more modules.
	categoryModules := make(map[RiskCategory][]string)
	var categories []RiskCategory
	for _, name := range names {
		seen := make(map[RiskCategory]bool)
		for _, f := range modules[name].Factors {
			if !f.Severity.AtLeastHigh() || seen[f.Category] {
				continue
			}
			seen[f.Category] = true
			if _, ok := categoryModules[f.Category]; !ok {
				categories = append(categories, f.Category)
			}
			categoryModules[f.Category] = append(categoryModules[f.Category], name)
		}
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	for _, cat := range categories {
		mods := categoryModules[cat]
		if len(mods) < 2 {
			continue
		}
		factors = append(factors, RiskFactor{
			ID:          fmt.Sprintf("%s.contagion.%s", ModuleCorrelation, cat),
			Category:    CategorySystemic,
			Severity:    SeverityHigh,
			Probability: 0.6,
			Impact:      7,
			Description: fmt.Sprintf("Severe %s risk present in %s", cat, strings.Join(mods, ", ")),
			Source:      ModuleCorrelation,
			Status:      StatusActive,
		})
	}

	var critical []string
	var exposed int
	for _, name := range names {
		switch level := modules[name].AlertLevel; {
		case level == AlertCritical:
			critical = append(critical, name)
		case level.Rank() >= AlertMedium.Rank():
			exposed++
		}
	}
	// Other critical modules count as exposed too.
	others := exposed + len(critical) - 1
	if len(critical) > 0 && others > 0 {
		factors = append(factors, RiskFactor{
			ID:          ModuleCorrelation + ".cascading",
			Category:    CategorySystemic,
			Severity:    SeverityHigh,
			Probability: 0.5,
			Impact:      8,
			Description: fmt.Sprintf("Critical risk in %s may cascade into %d other exposed modules",
				strings.Join(critical, ", "), others),
			Source: ModuleCorrelation,
			Status: StatusActive,
		})
	}

	return factors
}

// BuildComprehensive aggregates each module, correlates them, and rolls every
// factor up into an overall assessment for the entity.
func BuildComprehensive(entityID string, entityType EntityType, moduleFactors map[string][]RiskFactor, history []float64, now time.Time) ComprehensiveAssessment {
	modules := make(map[string]RiskAssessment, len(moduleFactors))
	names := make([]string, 0, len(moduleFactors))
	for name, factors := range moduleFactors {
		a := Aggregate(entityID, EntityModule, factors, nil, now)
		a.Module = name
		modules[name] = a
		names = append(names, name)
	}
	sort.Strings(names)

	correlated := CorrelateModules(modules)
	if correlated == nil {
		correlated = []RiskFactor{}
	}

	var all []RiskFactor
	for _, name := range names {
		all = append(all, moduleFactors[name]...)
	}
	all = append(all, correlated...)

	return ComprehensiveAssessment{
		Overall:           Aggregate(entityID, entityType, all, history, now),
		Modules:           modules,
		CorrelatedFactors: correlated,
	}
}
