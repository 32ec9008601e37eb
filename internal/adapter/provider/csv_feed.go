package provider

import (
	"context"
	"encoding/csv"
	"errors"
	"io"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/hive-corporation/vantage/internal/core/domain"
)

// CSVFeedProvider reads indicators from a CSV export with a header row
// (sector,region,metric,value,previous_value,as_of[,source]). Lines starting
// with # are comments.
type CSVFeedProvider struct {
	client HTTPDoer
	name   string
	url    string
	apiKey string
}

func NewCSVFeedProvider(client HTTPDoer, name, url, apiKey string) *CSVFeedProvider {
	return &CSVFeedProvider{client: client, name: name, url: url, apiKey: apiKey}
}

func (p *CSVFeedProvider) Name() string {
	return p.name
}

func (p *CSVFeedProvider) FetchIndicators(ctx context.Context) ([]domain.MarketIndicator, error) {
	body, err := fetch(ctx, p.client, p.name, p.url, p.apiKey, "text/csv")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	reader := csv.NewReader(body)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(reader)
	if errors.Is(err, io.EOF) {
		return []domain.MarketIndicator{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "provider: read %s csv header", p.name)
	}

	var rows []feedRow
	for {
		var row feedRow
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "provider: decode %s csv line %d", p.name, len(rows)+2)
		}
		rows = append(rows, row)
	}

	return convertRows(p.name, rows), nil
}
