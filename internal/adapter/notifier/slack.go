package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/hive-corporation/vantage/internal/adapter/resilience"
	"github.com/hive-corporation/vantage/internal/config"
	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/ports"
)

const (
	defaultSlackAPIURL = "https://slack.com/api/chat.postMessage"
	maxFactorLines     = 5
)

// SlackNotifier posts risk alerts to a Slack channel using Block Kit.
type SlackNotifier struct {
	botToken    string
	channel     string
	mentionTeam string
	apiURL      string
	httpClient  *resilience.Client
}

var _ ports.AlertNotifier = (*SlackNotifier)(nil)

func NewSlackNotifier(cfg config.SlackConfig, client *resilience.Client) *SlackNotifier {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultSlackAPIURL
	}
	return &SlackNotifier{
		botToken:    cfg.BotToken,
		channel:     cfg.Channel,
		mentionTeam: cfg.MentionTeam,
		apiURL:      apiURL,
		httpClient:  client,
	}
}

// NotifyRiskAlert sends a formatted risk alert to Slack
func (s *SlackNotifier) NotifyRiskAlert(ctx context.Context, alert ports.RiskAlert) error {
	a := alert.Assessment
	payload := SlackMessage{
		Channel: s.channel,
		Blocks:  s.buildRiskAlertBlocks(alert),
		Text: fmt.Sprintf("%s %s risk on %s %s (score %.1f)",
			levelEmoji(a.AlertLevel), a.AlertLevel, a.EntityType, a.EntityID, a.OverallRiskScore),
	}
	return s.sendMessage(ctx, payload)
}

func (s *SlackNotifier) buildRiskAlertBlocks(alert ports.RiskAlert) []SlackBlock {
	a := alert.Assessment

	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{
				Type: "plain_text",
				Text: fmt.Sprintf("%s %s Risk Alert", levelEmoji(a.AlertLevel), a.AlertLevel),
			},
		},
		{
			Type: "section",
			Fields: []SlackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Entity*\n`%s`", a.EntityID)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Type*\n%s", a.EntityType)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Score*\n%.1f / 10 (grade %s)", a.OverallRiskScore, a.RiskGrade)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Trend*\n%s", a.Trend)},
			},
		},
	}

	if len(alert.ModuleScores) > 0 {
		names := make([]string, 0, len(alert.ModuleScores))
		for name := range alert.ModuleScores {
			names = append(names, name)
		}
		sort.Strings(names)
		var sb strings.Builder
		sb.WriteString("*Module Scores*")
		for _, name := range names {
			fmt.Fprintf(&sb, "\n• %s: %.1f", name, alert.ModuleScores[name])
		}
		blocks = append(blocks, SlackBlock{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: sb.String()}})
	}

	blocks = append(blocks, SlackBlock{Type: "divider"})

	factors := topFactors(a.Factors)
	if len(factors) > 0 {
		var sb strings.Builder
		sb.WriteString("*Top Risk Factors*")
		for _, f := range factors {
			fmt.Fprintf(&sb, "\n• [%s] %s _(%s)_", f.Severity, f.Description, f.Source)
		}
		if extra := len(a.Factors) - len(factors); extra > 0 {
			fmt.Fprintf(&sb, "\n_...and %d more factors_", extra)
		}
		blocks = append(blocks, SlackBlock{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: sb.String()}})
	}

	if len(alert.CorrelatedFactors) > 0 {
		var sb strings.Builder
		sb.WriteString("*Cross-Module Signals*")
		for _, f := range alert.CorrelatedFactors {
			fmt.Fprintf(&sb, "\n• %s", f.Description)
		}
		blocks = append(blocks, SlackBlock{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: sb.String()}})
	}

	if len(a.Recommendations) > 0 {
		var sb strings.Builder
		sb.WriteString("*Recommended Actions*")
		for _, rec := range a.Recommendations {
			fmt.Fprintf(&sb, "\n✓ %s", rec)
		}
		blocks = append(blocks, SlackBlock{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: sb.String()}})
	}

	blocks = append(blocks, SlackBlock{
		Type: "context",
		Elements: []SlackText{
			{Type: "mrkdwn", Text: fmt.Sprintf("Assessment `%s` | %s", a.ID, a.AssessedAt.Format("2006-01-02 15:04 MST"))},
		},
	})

	if s.mentionTeam != "" {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("🔔 %s", s.mentionTeam)},
		})
	}
	return blocks
}

// topFactors returns the highest weighted factors, at most maxFactorLines.
func topFactors(factors []domain.RiskFactor) []domain.RiskFactor {
	sorted := append([]domain.RiskFactor(nil), factors...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].WeightedScore() > sorted[j].WeightedScore()
	})
	if len(sorted) > maxFactorLines {
		sorted = sorted[:maxFactorLines]
	}
	return sorted
}

func levelEmoji(level domain.AlertLevel) string {
	switch level {
	case domain.AlertCritical:
		return "🔴"
	case domain.AlertHigh:
		return "🟠"
	case domain.AlertMedium:
		return "🟡"
	case domain.AlertLow:
		return "🟢"
	default:
		return "🔵"
	}
}

// Send message to Slack
func (s *SlackNotifier) sendMessage(ctx context.Context, msg SlackMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "notifier: marshal slack message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return eris.Wrap(err, "notifier: create slack request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.botToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "notifier: send slack message")
	}
	defer resp.Body.Close()

	// chat.postMessage reports failures with HTTP 200 and ok=false.
	var result slackResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return eris.Wrap(err, "notifier: decode slack response")
	}
	if !result.OK {
		return eris.Errorf("notifier: slack API error: %s", result.Error)
	}
	return nil
}

// Slack API structures

type SlackMessage struct {
	Channel string       `json:"channel"`
	Blocks  []SlackBlock `json:"blocks"`
	Text    string       `json:"text"` // Fallback text
}

type SlackBlock struct {
	Type     string      `json:"type"`
	Text     *SlackText  `json:"text,omitempty"`
	Fields   []SlackText `json:"fields,omitempty"`
	Elements []SlackText `json:"elements,omitempty"`
}

type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
