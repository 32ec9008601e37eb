package services

import (
	"context"

	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/metrics"
)

// FundAnalysis pairs derived fund performance with the resulting risk view.
type FundAnalysis struct {
	Performance domain.FundPerformance          `json:"performance"`
	Assessment  *domain.ComprehensiveAssessment `json:"assessment"`
}

// FundService derives fund multiples and IRR, then routes them through the
// risk pipeline so fund assessments share history and alerting.
type FundService struct {
	risk *RiskService
}

func NewFundService(risk *RiskService) *FundService {
	return &FundService{risk: risk}
}

func (s *FundService) Analyze(ctx context.Context, snap domain.FundSnapshot) (*FundAnalysis, error) {
	if err := validateRequest(snap); err != nil {
		metrics.RecordValidationFailure("fund")
		return nil, err
	}

	perf := domain.AnalyzeFund(snap)
	fm := perf.Metrics()
	comp, err := s.risk.Assess(ctx, AssessRequest{
		EntityID:   snap.FundID,
		EntityType: domain.EntityFund,
		Inputs:     []domain.AssessmentInput{{Domain: domain.DomainFund, Fund: &fm}},
	})
	if err != nil {
		return nil, err
	}
	return &FundAnalysis{Performance: perf, Assessment: comp}, nil
}
