package exporter

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// CSVExporter writes one header row and one row per assessment.
type CSVExporter struct {
	source AssessmentSource
	now    func() time.Time
}

func NewCSVExporter(source AssessmentSource) *CSVExporter {
	return &CSVExporter{source: source, now: time.Now}
}

func (e *CSVExporter) ContentType() string { return "text/csv" }
func (e *CSVExporter) Extension() string   { return "csv" }

func (e *CSVExporter) Export(ctx context.Context, w io.Writer, since time.Time) (int, error) {
	list, err := load(ctx, e.source, since, e.now)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(list) == 0 {
		if err := enc.EncodeHeader(assessmentRow{}); err != nil {
			return 0, eris.Wrap(err, "exporter: write csv header")
		}
	}
	for _, a := range list {
		if err := enc.Encode(toRow(a)); err != nil {
			return 0, eris.Wrapf(err, "exporter: encode assessment %s", a.ID)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, eris.Wrap(err, "exporter: flush csv")
	}
	return len(list), nil
}
