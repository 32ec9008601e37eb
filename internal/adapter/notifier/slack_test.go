package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hive-corporation/vantage/internal/adapter/resilience"
	"github.com/hive-corporation/vantage/internal/config"
	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/ports"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testClient() *resilience.Client {
	return resilience.NewClient("slack", resilience.Config{Timeout: 2 * time.Second})
}

func criticalAlert() ports.RiskAlert {
	factors := append(domain.EvaluateLegal(domain.LegalMetrics{SanctionsExposure: true, PendingLitigation: 1}),
		domain.EvaluatePortfolio(domain.PortfolioMetrics{NetLeverage: 9})...)
	return ports.RiskAlert{
		Assessment: domain.RiskAssessment{
			ID:               "a-123",
			EntityID:         "deal-42",
			EntityType:       domain.EntityDeal,
			OverallRiskScore: 8.9,
			RiskGrade:        "F",
			Factors:          factors,
			Trend:            domain.TrendDeteriorating,
			Recommendations:  []string{"Escalate to investment committee immediately"},
			AlertLevel:       domain.AlertCritical,
			AssessedAt:       time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		},
		CorrelatedFactors: []domain.RiskFactor{{Description: "Elevated risk in 2 modules: legal, portfolio"}},
		ModuleScores:      map[string]float64{"portfolio": 7.2, "legal": 9},
	}
}

func TestSlackNotifier_NotifyRiskAlert(t *testing.T) {
	var got SlackMessage
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok": true}`)) //nolint:errcheck
	}))
	defer server.Close()

	n := NewSlackNotifier(config.SlackConfig{
		BotToken:    "xoxb-test",
		Channel:     "#risk",
		MentionTeam: "@ic-team",
		APIURL:      server.URL,
	}, testClient())

	require.NoError(t, n.NotifyRiskAlert(context.Background(), criticalAlert()))

	assert.Equal(t, "Bearer xoxb-test", auth)
	assert.Equal(t, "#risk", got.Channel)
	assert.Contains(t, got.Text, "CRITICAL")
	assert.Contains(t, got.Text, "deal-42")

	var all strings.Builder
	for _, b := range got.Blocks {
		if b.Text != nil {
			all.WriteString(b.Text.Text + "\n")
		}
		for _, f := range b.Fields {
			all.WriteString(f.Text + "\n")
		}
	}
	text := all.String()
	assert.Contains(t, text, "CRITICAL Risk Alert")
	assert.Contains(t, text, "legal: 9.0")
	assert.Contains(t, text, "Exposure to sanctioned parties")
	assert.Contains(t, text, "Elevated risk in 2 modules")
	assert.Contains(t, text, "Escalate to investment committee")
	assert.Contains(t, text, "@ic-team")
	// Module scores are listed alphabetically.
	assert.Less(t, strings.Index(text, "legal: 9.0"), strings.Index(text, "portfolio: 7.2"))
}

func TestSlackNotifier_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "error": "channel_not_found"}`)) //nolint:errcheck
	}))
	defer server.Close()

	n := NewSlackNotifier(config.SlackConfig{BotToken: "x", Channel: "#missing", APIURL: server.URL}, testClient())
	err := n.NotifyRiskAlert(context.Background(), criticalAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestSlackNotifier_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	n := NewSlackNotifier(config.SlackConfig{BotToken: "bad", Channel: "#risk", APIURL: server.URL}, testClient())
	err := n.NotifyRiskAlert(context.Background(), criticalAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestTopFactors(t *testing.T) {
	factors := make([]domain.RiskFactor, 0, 8)
	for i := 0; i < 8; i++ {
		factors = append(factors, domain.RiskFactor{
			Severity:    domain.SeverityMedium,
			Probability: 0.1 * float64(i+1),
			Impact:      5,
		})
	}

	top := topFactors(factors)
	require.Len(t, top, maxFactorLines)
	assert.InDelta(t, 0.8, top[0].Probability, 1e-9)
	// Input order is untouched.
	assert.InDelta(t, 0.1, factors[0].Probability, 1e-9)
}

func TestLevelEmoji(t *testing.T) {
	assert.Equal(t, "🔴", levelEmoji(domain.AlertCritical))
	assert.Equal(t, "🟠", levelEmoji(domain.AlertHigh))
	assert.Equal(t, "🔵", levelEmoji(domain.AlertNone))
}
