package exporter

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

var (
	assessmentHeader = []string{"ID", "Entity", "Entity Type", "Score", "Grade", "Alert Level", "Trend", "Factors", "Top Factor", "Recommendations", "Assessed At"}
	factorHeader     = []string{"Assessment ID", "Entity", "Factor ID", "Category", "Severity", "Probability", "Impact", "Weighted Score", "Source", "Description"}
)

// XLSXExporter writes an "Assessments" sheet and a "Factors" sheet with one
// line per risk factor.
type XLSXExporter struct {
	source AssessmentSource
	now    func() time.Time
}

func NewXLSXExporter(source AssessmentSource) *XLSXExporter {
	return &XLSXExporter{source: source, now: time.Now}
}

func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *XLSXExporter) Extension() string { return "xlsx" }

func (e *XLSXExporter) Export(ctx context.Context, w io.Writer, since time.Time) (int, error) {
	list, err := load(ctx, e.source, since, e.now)
	if err != nil {
		return 0, err
	}

	f := xlsx.NewFile()
	assessments, err := f.AddSheet("Assessments")
	if err != nil {
		return 0, eris.Wrap(err, "exporter: add assessments sheet")
	}
	factors, err := f.AddSheet("Factors")
	if err != nil {
		return 0, eris.Wrap(err, "exporter: add factors sheet")
	}
	addStrings(assessments.AddRow(), assessmentHeader...)
	addStrings(factors.AddRow(), factorHeader...)

	for _, a := range list {
		r := toRow(a)
		row := assessments.AddRow()
		addStrings(row, r.ID, r.EntityID, r.EntityType)
		row.AddCell().SetFloat(r.Score)
		addStrings(row, r.Grade, r.AlertLevel, r.Trend)
		row.AddCell().SetInt(r.FactorCount)
		addStrings(row, r.TopFactor, r.Recommendations, r.AssessedAt)

		for _, fac := range a.Factors {
			fr := factors.AddRow()
			addStrings(fr, a.ID, a.EntityID, fac.ID, string(fac.Category), string(fac.Severity))
			fr.AddCell().SetFloat(fac.Probability)
			fr.AddCell().SetFloat(fac.Impact)
			fr.AddCell().SetFloat(fac.WeightedScore())
			addStrings(fr, fac.Source, fac.Description)
		}
	}

	if err := f.Write(w); err != nil {
		return 0, eris.Wrap(err, "exporter: write xlsx")
	}
	return len(list), nil
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
