package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/ports"
	"github.com/hive-corporation/vantage/internal/metrics"
)

// DefaultHistoryDepth is how many prior scores feed trend detection.
const DefaultHistoryDepth = 5

var validate = validator.New()

// AssessRequest asks for a comprehensive assessment of one entity.
type AssessRequest struct {
	EntityID   string                   `json:"entity_id" yaml:"entity_id" validate:"required,max=200"`
	EntityType domain.EntityType        `json:"entity_type" yaml:"entity_type" validate:"required,oneof=fund deal portfolio_company"`
	Inputs     []domain.AssessmentInput `json:"inputs" yaml:"inputs" validate:"required,min=1"`
}

// RiskService runs evaluators, correlation and aggregation, then persists
// the overall assessment and raises alerts.
type RiskService struct {
	assessments  ports.AssessmentRepository
	notifier     ports.AlertNotifier
	minAlert     domain.AlertLevel
	historyDepth int
	now          func() time.Time
}

// NewRiskService builds a RiskService. notifier may be nil. Alerts are sent for
// assessments at or above minAlert; AlertNone sends every assessment.
func NewRiskService(assessments ports.AssessmentRepository, notifier ports.AlertNotifier, minAlert domain.AlertLevel, now func() time.Time) *RiskService {
	if now == nil {
		now = time.Now
	}
	return &RiskService{
		assessments:  assessments,
		notifier:     notifier,
		minAlert:     minAlert,
		historyDepth: DefaultHistoryDepth,
		now:          now,
	}
}

// Assess evaluates every input, correlates the module results and stores the
// overall assessment. Inputs sharing a domain are merged into one module.
func (s *RiskService) Assess(ctx context.Context, req AssessRequest) (*domain.ComprehensiveAssessment, error) {
	timer := metrics.StartTimer()
	defer timer.ObserveDuration()

	if err := validateRequest(req); err != nil {
		metrics.RecordValidationFailure("assessment")
		return nil, err
	}

	moduleFactors := make(map[string][]domain.RiskFactor, len(req.Inputs))
	for i, in := range req.Inputs {
		factors, err := domain.Evaluate(in)
		if err != nil {
			metrics.RecordValidationFailure("assessment")
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				return nil, &domain.ValidationError{Field: fmt.Sprintf("inputs[%d].%s", i, ve.Field), Message: ve.Message}
			}
			return nil, err
		}
		module := string(in.Domain)
		moduleFactors[module] = append(moduleFactors[module], factors...)
	}

	history, err := s.assessments.ScoreHistory(ctx, req.EntityID, s.historyDepth)
	if err != nil {
		return nil, eris.Wrapf(err, "services: load score history for %s", req.EntityID)
	}

	comp := domain.BuildComprehensive(req.EntityID, req.EntityType, moduleFactors, history, s.now().UTC())
	comp.Overall.ID = uuid.NewString()
	for name, m := range comp.Modules {
		m.ID = uuid.NewString()
		comp.Modules[name] = m
	}

	if err := s.assessments.SaveAssessment(ctx, comp.Overall); err != nil {
		return nil, eris.Wrapf(err, "services: save assessment for %s", req.EntityID)
	}

	metrics.RecordAssessment(string(req.EntityType), string(comp.Overall.AlertLevel), comp.Overall.OverallRiskScore)
	zap.L().Info("risk assessment completed",
		zap.String("entity_id", req.EntityID),
		zap.String("entity_type", string(req.EntityType)),
		zap.Float64("score", comp.Overall.OverallRiskScore),
		zap.String("grade", comp.Overall.RiskGrade),
		zap.String("alert_level", string(comp.Overall.AlertLevel)),
		zap.Int("factors", len(comp.Overall.Factors)),
		zap.Int("correlated", len(comp.CorrelatedFactors)),
	)

	s.maybeNotify(ctx, &comp)
	return &comp, nil
}

// History returns the stored assessments of an entity, newest first.
func (s *RiskService) History(ctx context.Context, entityID string, limit int) ([]domain.RiskAssessment, error) {
	if entityID == "" {
		return nil, &domain.ValidationError{Field: "entity_id", Message: "is required"}
	}
	if limit <= 0 {
		limit = 20
	}
	list, err := s.assessments.ListAssessments(ctx, entityID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "services: list assessments for %s", entityID)
	}
	return list, nil
}

// AssessmentsSince returns assessments recorded at or after since, for export.
func (s *RiskService) AssessmentsSince(ctx context.Context, since time.Time, limit int) ([]domain.RiskAssessment, error) {
	list, err := s.assessments.FindAssessmentsSince(ctx, since, limit)
	if err != nil {
		return nil, eris.Wrap(err, "services: find assessments since")
	}
	return list, nil
}

func (s *RiskService) maybeNotify(ctx context.Context, comp *domain.ComprehensiveAssessment) {
	if s.notifier == nil || comp.Overall.AlertLevel.Rank() < s.minAlert.Rank() {
		return
	}

	scores := make(map[string]float64, len(comp.Modules))
	for name, m := range comp.Modules {
		scores[name] = m.OverallRiskScore
	}
	alert := ports.RiskAlert{
		Assessment:        comp.Overall,
		CorrelatedFactors: comp.CorrelatedFactors,
		ModuleScores:      scores,
	}
	if err := s.notifier.NotifyRiskAlert(ctx, alert); err != nil {
		// Alert delivery never fails the assessment.
		zap.L().Warn("risk alert notification failed",
			zap.String("entity_id", comp.Overall.EntityID),
			zap.String("alert_level", string(comp.Overall.AlertLevel)),
			zap.Error(err),
		)
	}
}

func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return domain.FromValidatorError(err)
	}
	return nil
}
