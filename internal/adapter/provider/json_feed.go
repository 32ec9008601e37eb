package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/hive-corporation/vantage/internal/core/domain"
)

// JSONFeedProvider reads indicators from a JSON endpoint returning either a
// bare array of rows or {"indicators": [...]}.
type JSONFeedProvider struct {
	client HTTPDoer
	name   string
	url    string
	apiKey string
}

func NewJSONFeedProvider(client HTTPDoer, name, url, apiKey string) *JSONFeedProvider {
	return &JSONFeedProvider{client: client, name: name, url: url, apiKey: apiKey}
}

func (p *JSONFeedProvider) Name() string {
	return p.name
}

type jsonFeedResponse struct {
	Indicators []feedRow `json:"indicators"`
}

func (p *JSONFeedProvider) FetchIndicators(ctx context.Context) ([]domain.MarketIndicator, error) {
	body, err := fetch(ctx, p.client, p.name, p.url, p.apiKey, "application/json")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: read %s response", p.name)
	}

	var rows []feedRow
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &rows)
	} else {
		var wrapped jsonFeedResponse
		err = json.Unmarshal(data, &wrapped)
		rows = wrapped.Indicators
	}
	if err != nil {
		return nil, eris.Wrapf(err, "provider: decode %s json", p.name)
	}

	return convertRows(p.name, rows), nil
}
