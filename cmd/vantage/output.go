package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/hive-corporation/vantage/internal/core/domain"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func levelStyle(level domain.AlertLevel) lipgloss.Style {
	switch level {
	case domain.AlertCritical:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	case domain.AlertHigh:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	case domain.AlertMedium:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	case domain.AlertLow:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAssessment(w io.Writer, comp *domain.ComprehensiveAssessment) {
	a := comp.Overall
	fmt.Fprintf(w, "%s %s (%s)\n", titleStyle.Render("Risk assessment"), a.EntityID, a.EntityType)
	fmt.Fprintf(w, "  score %.2f  grade %s  alert %s  trend %s\n\n",
		a.OverallRiskScore, a.RiskGrade, levelStyle(a.AlertLevel).Render(string(a.AlertLevel)), a.Trend)

	names := make([]string, 0, len(comp.Modules))
	for name := range comp.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSCORE\tGRADE\tFACTORS")
	for _, name := range names {
		m := comp.Modules[name]
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%d\n", name, m.OverallRiskScore, m.RiskGrade, len(m.Factors))
	}
	tw.Flush()

	if len(a.Factors) > 0 {
		fmt.Fprintf(w, "\n%s\n", titleStyle.Render("Factors"))
		for _, f := range a.Factors {
			fmt.Fprintf(w, "  [%s] %s %s\n", f.Severity, f.Description, dimStyle.Render("("+f.Source+")"))
		}
	}
	if len(comp.CorrelatedFactors) > 0 {
		fmt.Fprintf(w, "\n%s\n", titleStyle.Render("Cross-module signals"))
		for _, f := range comp.CorrelatedFactors {
			fmt.Fprintf(w, "  %s\n", f.Description)
		}
	}
	if len(a.Recommendations) > 0 {
		fmt.Fprintf(w, "\n%s\n", titleStyle.Render("Recommendations"))
		for _, r := range a.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
}

func printRecommendations(w io.Writer, recs []domain.TemplateRecommendation) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no templates match")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTEMPLATE\tSCORE\tAUTOMATION\tREASONS")
	for i, r := range recs {
		name := r.Template.Name
		if r.Fallback {
			name += " (fallback)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%s\t%s\n", i+1, name, r.Score, r.Template.AutomationLevel, strings.Join(r.Reasons, "; "))
	}
	tw.Flush()
}

func printSnapshot(w io.Writer, snap *domain.MarketSnapshot) {
	fmt.Fprintf(w, "%s %s (%d indicators)\n", titleStyle.Render("Market snapshot"),
		snap.GeneratedAt.Format("2006-01-02 15:04 MST"), snap.Indicators)
	if len(snap.Sectors) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTOR\tAVG CHANGE\tSENTIMENT")
	for _, s := range snap.Sectors {
		fmt.Fprintf(tw, "%s\t%+.1f%%\t%s\n", s.Sector, s.AvgChangePct, s.Sentiment)
	}
	tw.Flush()
	fmt.Fprintf(w, "top sectors: %s\n", strings.Join(snap.TopSectors, ", "))
}
