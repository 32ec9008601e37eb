package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/ports"
	"github.com/hive-corporation/vantage/internal/metrics"
)

// RecommendRequest asks for the best templates for an opportunity.
type RecommendRequest struct {
	Opportunity domain.Opportunity `json:"opportunity" yaml:"opportunity"`
	Mode        string             `json:"mode,omitempty" yaml:"mode,omitempty"`
	Limit       int                `json:"limit,omitempty" yaml:"limit,omitempty" validate:"gte=0,lte=50"`
}

// TemplateService manages scoring templates and ranks them for opportunities.
type TemplateService struct {
	repo ports.TemplateRepository
	topN int
	now  func() time.Time
}

func NewTemplateService(repo ports.TemplateRepository, topN int, now func() time.Time) *TemplateService {
	if now == nil {
		now = time.Now
	}
	if topN <= 0 {
		topN = domain.DefaultRecommendTop
	}
	return &TemplateService{repo: repo, topN: topN, now: now}
}

// Create validates and stores a template. An empty automation level defaults
// to assisted and a missing ID is generated.
func (s *TemplateService) Create(ctx context.Context, t domain.Template) (*domain.Template, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.AutomationLevel == "" {
		t.AutomationLevel = domain.AutomationAssisted
	}
	if err := domain.ValidateTemplate(t); err != nil {
		metrics.RecordValidationFailure("template")
		return nil, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}

	if err := s.repo.CreateTemplate(ctx, t); err != nil {
		return nil, eris.Wrapf(err, "services: create template %s", t.Name)
	}

	zap.L().Info("template created",
		zap.String("template_id", t.ID),
		zap.String("name", t.Name),
		zap.Int("criteria", len(t.Criteria)),
	)
	return &t, nil
}

func (s *TemplateService) Get(ctx context.Context, id string) (*domain.Template, error) {
	t, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "services: get template %s", id)
	}
	return t, nil
}

func (s *TemplateService) List(ctx context.Context) ([]domain.Template, error) {
	list, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "services: list templates")
	}
	return list, nil
}

// Recommend ranks stored templates for the opportunity.
func (s *TemplateService) Recommend(ctx context.Context, req RecommendRequest) ([]domain.TemplateRecommendation, error) {
	if err := validateRequest(req); err != nil {
		metrics.RecordValidationFailure("recommendation")
		return nil, err
	}
	if err := validateRequest(req.Opportunity); err != nil {
		metrics.RecordValidationFailure("recommendation")
		return nil, err
	}

	templates, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "services: list templates for recommendation")
	}

	limit := req.Limit
	if limit == 0 {
		limit = s.topN
	}
	mode := domain.ParseWorkflowMode(req.Mode)
	recs := domain.RecommendTemplates(templates, req.Opportunity, mode, limit, s.now().UTC())

	path := "matched"
	switch {
	case len(recs) == 0:
		path = "empty"
	case recs[0].Fallback:
		path = "fallback"
	}
	metrics.RecordRecommendation(path)

	zap.L().Debug("templates ranked",
		zap.String("asset_type", req.Opportunity.AssetType),
		zap.String("mode", string(mode)),
		zap.String("path", path),
		zap.Int("candidates", len(templates)),
		zap.Int("returned", len(recs)),
	)
	return recs, nil
}

// Score screens an opportunity against one template and records the usage.
func (s *TemplateService) Score(ctx context.Context, id string, values map[string]float64) (*domain.ScreeningResult, error) {
	t, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "services: get template %s", id)
	}

	res := domain.ScoreOpportunity(*t, values)

	if err := s.repo.RecordTemplateUsage(ctx, id, s.now().UTC()); err != nil {
		zap.L().Warn("failed to record template usage", zap.String("template_id", id), zap.Error(err))
	}
	return &res, nil
}
