package ports

import (
	"context"

	"github.com/hive-corporation/vantage/internal/core/domain"
)

// AlertNotifier defines the interface for sending risk alerts to external systems
type AlertNotifier interface {
	// NotifyRiskAlert sends a notification for an assessment at or above the
	// configured alert level
	NotifyRiskAlert(ctx context.Context, alert RiskAlert) error
}

// RiskAlert is the notification payload for an elevated assessment.
type RiskAlert struct {
	Assessment        domain.RiskAssessment
	CorrelatedFactors []domain.RiskFactor
	ModuleScores      map[string]float64
}
