package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive-corporation/vantage/internal/adapter/handler"
	"github.com/hive-corporation/vantage/internal/adapter/repository"
	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/services"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGradeCommand(t *testing.T) {
	out, err := execute(t, "grade", "8.5")
	require.NoError(t, err)
	assert.Contains(t, out, "score 8.50")
	assert.Contains(t, out, "CRITICAL")

	out, err = execute(t, "grade", "2.99")
	require.NoError(t, err)
	assert.Contains(t, out, "NONE")

	_, err = execute(t, "grade", "11")
	assert.Error(t, err)

	_, err = execute(t, "grade", "high")
	assert.Error(t, err)
}

func TestTemplatesValidateCommand(t *testing.T) {
	good := writeFile(t, "good.yaml", `
- id: tpl-credit
  name: Private Credit Screen
  asset_types: [deal]
  passing_score: 65
  criteria:
    - name: interest_coverage
      weight: 0.5
    - name: collateral
      weight: 0.5
`)
	out, err := execute(t, "templates", "validate", "--file", good)
	require.NoError(t, err)
	assert.Contains(t, out, "Private Credit Screen")
	assert.Contains(t, out, "assisted")
	assert.Contains(t, out, "1 templates valid")

	bad := writeFile(t, "bad.yaml", `
- name: Lopsided
  asset_types: [deal]
  criteria:
    - name: only
      weight: 0.4
`)
	_, err = execute(t, "templates", "validate", "--file", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Lopsided")
}

func TestFundCommand(t *testing.T) {
	path := writeFile(t, "fund.yaml", `
fund_id: fund-ii
vintage_date: 2020-01-01T00:00:00Z
commitment: 200
nav: 110
valuation_date: 2021-01-01T00:00:00Z
cash_flows:
  - date: 2020-01-01T00:00:00Z
    amount: 100
    kind: contribution
`)
	out, err := execute(t, "fund", "--file", path, "--json")
	require.NoError(t, err)

	var perf domain.FundPerformance
	require.NoError(t, json.Unmarshal([]byte(out), &perf))
	assert.Equal(t, "fund-ii", perf.FundID)
	assert.InDelta(t, 1.1, perf.TVPI, 1e-9)
	assert.InDelta(t, 0.5, perf.UnfundedRatio, 1e-9)
	assert.True(t, perf.IRRDefined)
	assert.InDelta(t, 0.10, perf.IRR, 0.005)

	out, err = execute(t, "fund", "--file", path, "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "TVPI 1.10x")
}

// startServer runs the gRPC API on a loopback port backed by a memory store.
func startServer(t *testing.T) string {
	t.Helper()
	repo := repository.NewMemoryRepository()
	defaults, err := services.DefaultTemplates()
	require.NoError(t, err)
	risk := services.NewRiskService(repo, nil, domain.AlertHigh, nil)
	svc := handler.Services{
		Risk:       risk,
		Templates:  services.NewTemplateService(repo, 3, nil),
		Market:     services.NewMarketService(repo, 0, nil),
		Workspaces: services.NewWorkspaceService(repo, repo, defaults, nil),
		Funds:      services.NewFundService(risk),
	}
	_, err = svc.Workspaces.Seed(context.Background(), "ws-cli", "")
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := handler.NewRiskGRPCServer(svc, "cli-token")
	go srv.Serve(lis) //nolint:errcheck
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestAssessCommand(t *testing.T) {
	addr := startServer(t)
	req := writeFile(t, "assess.yaml", `
entity_id: deal-42
entity_type: deal
inputs:
  - domain: legal
    legal:
      pending_litigation: 3
      sanctions_exposure: true
`)

	out, err := execute(t, "assess", "--server", addr, "--token", "cli-token", "--file", req, "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "deal-42")
	assert.Contains(t, out, "legal")
	assert.Contains(t, out, "Exposure to sanctioned parties")

	_, err = execute(t, "assess", "--server", addr, "--token", "wrong", "--file", req, "--json=false")
	assert.Error(t, err)
}

func TestRecommendCommand(t *testing.T) {
	addr := startServer(t)

	out, err := execute(t, "recommend", "--server", addr, "--token", "cli-token",
		"--asset-type", "fund", "--mode", "autonomous", "--file", "", "--json=true")
	require.NoError(t, err)

	var resp handler.RecommendResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotZero(t, resp.Count)
	assert.Equal(t, "tpl-fund-commitment", resp.Recommendations[0].Template.ID)

	out, err = execute(t, "recommend", "--server", addr, "--token", "cli-token",
		"--asset-type", "deal", "--mode", "assisted", "--limit", "2", "--file", "", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "RANK")
}

func TestSnapshotCommand(t *testing.T) {
	addr := startServer(t)
	out, err := execute(t, "snapshot", "--server", addr, "--token", "cli-token", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "0 indicators")
}
