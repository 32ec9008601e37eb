package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricsOnce ensures metrics are registered only once
	metricsOnce sync.Once

	// assessmentsTotal tracks completed assessments by entity type and alert level
	assessmentsTotal *prometheus.CounterVec

	// assessmentScore tracks the distribution of overall risk scores (0-10)
	assessmentScore prometheus.Histogram

	// assessmentDuration tracks latency of a full assessment, persistence included
	assessmentDuration prometheus.Histogram

	// recommendationsTotal tracks ranking passes by path (matched, fallback, empty)
	recommendationsTotal *prometheus.CounterVec

	// validationFailuresTotal tracks rejected inputs by kind
	validationFailuresTotal *prometheus.CounterVec

	// outboundErrorsTotal tracks failed calls to Slack and market feeds
	outboundErrorsTotal *prometheus.CounterVec

	// indicatorsIngestedTotal tracks market indicators persisted by source
	indicatorsIngestedTotal *prometheus.CounterVec
)

// Init registers all Prometheus metrics.
// This should be called once at application startup
func Init() {
	metricsOnce.Do(func() {
		assessmentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vantage_assessments_total",
				Help: "Total number of risk assessments by entity type and alert level",
			},
			[]string{"entity_type", "alert_level"},
		)

		assessmentScore = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vantage_assessment_score",
				Help:    "Distribution of overall risk scores (0-10)",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 8.5, 9, 10},
			},
		)

		assessmentDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vantage_assessment_duration_seconds",
				Help:    "Duration of risk assessments in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		)

		recommendationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vantage_template_recommendations_total",
				Help: "Total number of template ranking passes by path",
			},
			[]string{"path"},
		)

		validationFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vantage_validation_failures_total",
				Help: "Total number of rejected inputs by kind",
			},
			[]string{"kind"},
		)

		outboundErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vantage_outbound_errors_total",
				Help: "Total number of outbound HTTP errors by target and type",
			},
			[]string{"target", "error_type"},
		)

		indicatorsIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vantage_market_indicators_ingested_total",
				Help: "Total number of market indicators persisted by source",
			},
			[]string{"source"},
		)
	})
}

// RecordAssessment records a completed assessment
func RecordAssessment(entityType, alertLevel string, score float64) {
	if assessmentsTotal != nil {
		assessmentsTotal.WithLabelValues(entityType, alertLevel).Inc()
	}
	if assessmentScore != nil {
		assessmentScore.Observe(score)
	}
}

// RecordRecommendation records a ranking pass
// path: "matched", "fallback", "empty"
func RecordRecommendation(path string) {
	if recommendationsTotal != nil {
		recommendationsTotal.WithLabelValues(path).Inc()
	}
}

// RecordValidationFailure records a rejected input
// kind: "template", "assessment", "recommendation", "fund"
func RecordValidationFailure(kind string) {
	if validationFailuresTotal != nil {
		validationFailuresTotal.WithLabelValues(kind).Inc()
	}
}

// RecordOutboundError records a failed outbound call
// errorType: "timeout", "auth", "rate_limit", "server_error", "connection", "circuit_open", "http_error"
func RecordOutboundError(target, errorType string) {
	if outboundErrorsTotal != nil {
		outboundErrorsTotal.WithLabelValues(target, errorType).Inc()
	}
}

// RecordIndicatorsIngested records persisted indicators for a feed
func RecordIndicatorsIngested(source string, count int) {
	if indicatorsIngestedTotal != nil {
		indicatorsIngestedTotal.WithLabelValues(source).Add(float64(count))
	}
}

// Timer is a helper for timing assessments
type Timer struct {
	start time.Time
}

// StartTimer creates a new timer for measuring assessment duration
func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time since the timer started
func (t *Timer) ObserveDuration() {
	if t != nil && assessmentDuration != nil {
		assessmentDuration.Observe(time.Since(t.start).Seconds())
	}
}
