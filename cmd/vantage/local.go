package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/services"
)

var gradeCmd = &cobra.Command{
	Use:   "grade <score>",
	Short: "Show the grade and alert level for a risk score (0-10)",
	Args:  cobra.ExactArgs(1),
	RunE:  runGrade,
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Work with deal scoring templates",
}

var validateTemplatesCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a YAML file of templates",
	RunE:  runValidateTemplates,
}

var fundCmd = &cobra.Command{
	Use:   "fund",
	Short: "Compute fund multiples and IRR from a snapshot file",
	RunE:  runFund,
}

func init() {
	validateTemplatesCmd.Flags().StringP("file", "f", "", "templates file, - for stdin")
	_ = validateTemplatesCmd.MarkFlagRequired("file")
	templatesCmd.AddCommand(validateTemplatesCmd)

	fundCmd.Flags().StringP("file", "f", "", "fund snapshot file, - for stdin")
	fundCmd.Flags().Bool("json", false, "print JSON")
	_ = fundCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(gradeCmd, templatesCmd, fundCmd)
}

func runGrade(cmd *cobra.Command, args []string) error {
	score, err := strconv.ParseFloat(args[0], 64)
	if err != nil || score < 0 || score > 10 {
		return eris.Errorf("cli: score must be a number between 0 and 10, got %q", args[0])
	}
	level := domain.DetermineAlertLevel(score)
	fmt.Fprintf(cmd.OutOrStdout(), "score %.2f  grade %s  alert %s\n",
		score, domain.CalculateRiskGrade(score), levelStyle(level).Render(string(level)))
	return nil
}

func runValidateTemplates(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")

	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}

	templates, err := services.ParseTemplates(data)
	if err != nil {
		return err
	}
	for _, t := range templates {
		fmt.Fprintf(cmd.OutOrStdout(), "ok  %-32s %d criteria, %s, passing %.0f\n",
			t.Name, len(t.Criteria), t.AutomationLevel, t.PassingScore)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d templates valid\n", len(templates))
	return nil
}

func runFund(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	var snap domain.FundSnapshot
	if err := readYAML(cmd, path, &snap); err != nil {
		return err
	}
	if snap.FundID == "" {
		return eris.New("cli: fund_id is required")
	}

	perf := domain.AnalyzeFund(snap)
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), perf)
	}

	out := cmd.OutOrStdout()
	if perf.AgeKnown {
		fmt.Fprintf(out, "%s %s (%.1f years)\n", titleStyle.Render("Fund"), perf.FundID, perf.AgeYears)
	} else {
		fmt.Fprintf(out, "%s %s (vintage unknown)\n", titleStyle.Render("Fund"), perf.FundID)
	}
	fmt.Fprintf(out, "  paid-in %.2f  distributed %.2f  nav %.2f\n", perf.PaidIn, perf.Distributed, perf.NAV)
	fmt.Fprintf(out, "  TVPI %.2fx  DPI %.2fx  RVPI %.2fx\n", perf.TVPI, perf.DPI, perf.RVPI)
	if perf.IRRDefined {
		fmt.Fprintf(out, "  IRR %.2f%%\n", perf.IRR*100)
	} else {
		fmt.Fprintln(out, "  IRR undefined")
	}
	fmt.Fprintf(out, "  unfunded %.0f%% of commitment\n", perf.UnfundedRatio*100)
	return nil
}
