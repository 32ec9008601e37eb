package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/hive-corporation/vantage/internal/core/services"
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Run a comprehensive risk assessment",
	Long: `Send an assessment request to the API and print the result.

The request file is YAML or JSON:

  entity_id: deal-42
  entity_type: deal
  inputs:
    - domain: legal
      legal:
        pending_litigation: 2
        sanctions_exposure: false
    - domain: portfolio
      portfolio:
        net_leverage: 6.5`,
	RunE: runAssess,
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Rank deal templates for an opportunity",
	Long: `Rank stored templates for an opportunity.

Examples:
  recommend --asset-type fund --mode autonomous
  recommend --file opportunity.yaml --limit 5`,
	RunE: runRecommend,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Show the current market intelligence snapshot",
	RunE:  runSnapshot,
}

func init() {
	f := assessCmd.Flags()
	f.StringP("file", "f", "", "assessment request file, - for stdin")
	f.Bool("json", false, "print the raw JSON response")
	_ = assessCmd.MarkFlagRequired("file")

	f = recommendCmd.Flags()
	f.StringP("file", "f", "", "recommendation request file (overrides the opportunity flags)")
	f.String("asset-type", "", "opportunity asset type, e.g. deal or fund")
	f.String("industry", "", "opportunity industry")
	f.String("stage", "", "opportunity stage")
	f.String("mode", "", "workflow mode: traditional, assisted or autonomous")
	f.Int("limit", 0, "number of templates to return (default ranking.top_n)")
	f.Bool("json", false, "print the raw JSON response")

	snapshotCmd.Flags().Bool("json", false, "print the raw JSON response")

	rootCmd.AddCommand(assessCmd, recommendCmd, snapshotCmd)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func runAssess(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	var req services.AssessRequest
	if err := readYAML(cmd, path, &req); err != nil {
		return err
	}

	client, closeConn, err := dial(cmd)
	if err != nil {
		return err
	}
	defer closeConn()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	comp, err := client.Assess(ctx, &req)
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), comp)
	}
	printAssessment(cmd.OutOrStdout(), comp)
	return nil
}

// recommendRequest builds the request from --file or the opportunity flags.
func recommendRequest(cmd *cobra.Command) (services.RecommendRequest, error) {
	var req services.RecommendRequest
	flags := cmd.Flags()

	if path, _ := flags.GetString("file"); path != "" {
		if err := readYAML(cmd, path, &req); err != nil {
			return req, err
		}
	} else {
		req.Opportunity.AssetType, _ = flags.GetString("asset-type")
		req.Opportunity.Industry, _ = flags.GetString("industry")
		req.Opportunity.Stage, _ = flags.GetString("stage")
	}
	if flags.Changed("mode") {
		req.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("limit") {
		req.Limit, _ = flags.GetInt("limit")
	}
	return req, nil
}

func runRecommend(cmd *cobra.Command, args []string) error {
	req, err := recommendRequest(cmd)
	if err != nil {
		return err
	}

	client, closeConn, err := dial(cmd)
	if err != nil {
		return err
	}
	defer closeConn()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	resp, err := client.RecommendTemplates(ctx, &req)
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	printRecommendations(cmd.OutOrStdout(), resp.Recommendations)
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	client, closeConn, err := dial(cmd)
	if err != nil {
		return err
	}
	defer closeConn()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	snap, err := client.MarketSnapshot(ctx)
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), snap)
	}
	printSnapshot(cmd.OutOrStdout(), snap)
	return nil
}
