package provider

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hive-corporation/vantage/internal/config"
	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/ports"
)

// HTTPDoer is satisfied by *http.Client and *resilience.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Date layouts accepted for as_of values, tried in order.
var asOfLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// NewFeedProvider builds the provider matching the feed's format.
func NewFeedProvider(cfg config.FeedConfig, client HTTPDoer) (ports.MarketDataProvider, error) {
	if client == nil {
		client = http.DefaultClient
	}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return NewJSONFeedProvider(client, cfg.Name, cfg.URL, cfg.APIKey), nil
	case "csv":
		return NewCSVFeedProvider(client, cfg.Name, cfg.URL, cfg.APIKey), nil
	default:
		return nil, eris.Errorf("provider: feed %s has unsupported format %q", cfg.Name, cfg.Format)
	}
}

// fetch issues an authenticated GET and returns the body on 200.
func fetch(ctx context.Context, client HTTPDoer, name, url, apiKey, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: create request for %s", name)
	}
	req.Header.Set("Accept", accept)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: fetch %s", name)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, eris.Errorf("provider: %s returned status %d", name, resp.StatusCode)
	}
	return resp.Body, nil
}

// feedRow is the wire shape shared by the JSON and CSV feeds.
type feedRow struct {
	Sector        string  `json:"sector" csv:"sector"`
	Region        string  `json:"region" csv:"region,omitempty"`
	Metric        string  `json:"metric" csv:"metric"`
	Value         float64 `json:"value" csv:"value"`
	PreviousValue float64 `json:"previous_value" csv:"previous_value,omitempty"`
	AsOf          string  `json:"as_of" csv:"as_of"`
	Source        string  `json:"source,omitempty" csv:"source,omitempty"`
}

// toIndicator normalises a row. Rows without sector, metric or a parsable
// as_of are rejected.
func (r feedRow) toIndicator(feed string) (domain.MarketIndicator, bool) {
	sector := strings.ToLower(strings.TrimSpace(r.Sector))
	metric := strings.ToLower(strings.TrimSpace(r.Metric))
	if sector == "" || metric == "" {
		return domain.MarketIndicator{}, false
	}
	asOf, ok := parseAsOf(r.AsOf)
	if !ok {
		return domain.MarketIndicator{}, false
	}
	region := strings.ToLower(strings.TrimSpace(r.Region))
	if region == "" {
		region = "global"
	}
	source := strings.TrimSpace(r.Source)
	if source == "" {
		source = feed
	}
	return domain.MarketIndicator{
		Sector:        sector,
		Region:        region,
		Metric:        metric,
		Value:         r.Value,
		PreviousValue: r.PreviousValue,
		AsOf:          asOf,
		Source:        source,
	}, true
}

func parseAsOf(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range asOfLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func convertRows(feed string, rows []feedRow) []domain.MarketIndicator {
	out := make([]domain.MarketIndicator, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		ind, ok := row.toIndicator(feed)
		if !ok {
			skipped++
			continue
		}
		out = append(out, ind)
	}
	if skipped > 0 {
		zap.L().Warn("skipped malformed market indicators",
			zap.String("feed", feed),
			zap.Int("skipped", skipped),
			zap.Int("kept", len(out)),
		)
	}
	return out
}
