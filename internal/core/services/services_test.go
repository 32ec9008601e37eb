package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/ports"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// recordingNotifier captures alerts and optionally fails.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []ports.RiskAlert
	err    error
}

func (n *recordingNotifier) NotifyRiskAlert(ctx context.Context, alert ports.RiskAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

// failingStore fails every assessment read and write.
type failingStore struct {
	ports.AssessmentRepository
}

func (failingStore) ScoreHistory(ctx context.Context, entityID string, limit int) ([]float64, error) {
	return nil, errors.New("db down")
}

func sanctionsInput() domain.AssessmentInput {
	return domain.AssessmentInput{Domain: domain.DomainLegal, Legal: &domain.LegalMetrics{SanctionsExposure: true}}
}

func litigationInput() domain.AssessmentInput {
	return domain.AssessmentInput{Domain: domain.DomainLegal, Legal: &domain.LegalMetrics{PendingLitigation: 2}}
}
