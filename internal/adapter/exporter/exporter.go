package exporter

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hive-corporation/vantage/internal/core/domain"
)

const (
	// DefaultWindow is used when no since time is given.
	DefaultWindow = 24 * time.Hour
	// MaxRows caps a single export.
	MaxRows = 10000
)

// AssessmentSource lists stored assessments, newest first.
type AssessmentSource interface {
	AssessmentsSince(ctx context.Context, since time.Time, limit int) ([]domain.RiskAssessment, error)
}

// Exporter writes assessments recorded since a point in time.
type Exporter interface {
	Export(ctx context.Context, w io.Writer, since time.Time) (int, error)
	ContentType() string
	Extension() string
}

// New returns the exporter for format ("csv" or "xlsx").
func New(format string, source AssessmentSource, now func() time.Time) (Exporter, error) {
	if now == nil {
		now = time.Now
	}
	switch strings.ToLower(format) {
	case "csv", "":
		return &CSVExporter{source: source, now: now}, nil
	case "xlsx":
		return &XLSXExporter{source: source, now: now}, nil
	default:
		return nil, &domain.ValidationError{Field: "format", Message: "must be csv or xlsx"}
	}
}

// assessmentRow is one flattened assessment.
type assessmentRow struct {
	ID              string  `csv:"id"`
	EntityID        string  `csv:"entity_id"`
	EntityType      string  `csv:"entity_type"`
	Score           float64 `csv:"overall_risk_score"`
	Grade           string  `csv:"risk_grade"`
	AlertLevel      string  `csv:"alert_level"`
	Trend           string  `csv:"trend"`
	FactorCount     int     `csv:"factor_count"`
	TopFactor       string  `csv:"top_factor"`
	Recommendations string  `csv:"recommendations"`
	AssessedAt      string  `csv:"assessed_at"`
}

func toRow(a domain.RiskAssessment) assessmentRow {
	row := assessmentRow{
		ID:              a.ID,
		EntityID:        a.EntityID,
		EntityType:      string(a.EntityType),
		Score:           a.OverallRiskScore,
		Grade:           a.RiskGrade,
		AlertLevel:      string(a.AlertLevel),
		Trend:           string(a.Trend),
		FactorCount:     len(a.Factors),
		Recommendations: strings.Join(a.Recommendations, "; "),
		AssessedAt:      a.AssessedAt.UTC().Format(time.RFC3339),
	}
	var best float64 = -1
	for _, f := range a.Factors {
		if s := f.WeightedScore(); s > best {
			best = s
			row.TopFactor = f.Description
		}
	}
	return row
}

func load(ctx context.Context, source AssessmentSource, since time.Time, now func() time.Time) ([]domain.RiskAssessment, error) {
	if since.IsZero() {
		since = now().Add(-DefaultWindow)
	}
	list, err := source.AssessmentsSince(ctx, since, MaxRows)
	if err != nil {
		return nil, eris.Wrap(err, "exporter: load assessments")
	}
	return list, nil
}
