package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hive-corporation/vantage/internal/core/domain"
)

// MemoryRepository is an in-process store for development and tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	templates    map[string]domain.Template
	assessments  []domain.RiskAssessment
	indicators   []domain.MarketIndicator
	workspaces   map[string]domain.Workspace
	integrations map[string][]domain.Integration
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		templates:    make(map[string]domain.Template),
		workspaces:   make(map[string]domain.Workspace),
		integrations: make(map[string][]domain.Integration),
	}
}

func (r *MemoryRepository) CreateTemplate(ctx context.Context, t domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[t.ID]; ok {
		return eris.Wrapf(domain.ErrConflict, "repository: template %s", t.ID)
	}
	r.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (r *MemoryRepository) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneTemplate(t)
	return &out, nil
}

// ListTemplates returns templates ordered by name.
func (r *MemoryRepository) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]domain.Template, 0, len(r.templates))
	for _, t := range r.templates {
		list = append(list, cloneTemplate(t))
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (r *MemoryRepository) RecordTemplateUsage(ctx context.Context, id string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.UsageCount++
	t.LastUsedAt = &usedAt
	r.templates[id] = t
	return nil
}

func (r *MemoryRepository) SaveAssessment(ctx context.Context, a domain.RiskAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assessments = append(r.assessments, a)
	return nil
}

func (r *MemoryRepository) ScoreHistory(ctx context.Context, entityID string, limit int) ([]float64, error) {
	list, _ := r.ListAssessments(ctx, entityID, limit)
	scores := make([]float64, 0, len(list))
	for _, a := range list {
		scores = append(scores, a.OverallRiskScore)
	}
	return scores, nil
}

// ListAssessments returns the entity's assessments, newest first.
func (r *MemoryRepository) ListAssessments(ctx context.Context, entityID string, limit int) ([]domain.RiskAssessment, error) {
	return r.filterAssessments(func(a domain.RiskAssessment) bool { return a.EntityID == entityID }, limit), nil
}

func (r *MemoryRepository) FindAssessmentsSince(ctx context.Context, since time.Time, limit int) ([]domain.RiskAssessment, error) {
	return r.filterAssessments(func(a domain.RiskAssessment) bool { return !a.AssessedAt.Before(since) }, limit), nil
}

func (r *MemoryRepository) filterAssessments(keep func(domain.RiskAssessment) bool, limit int) []domain.RiskAssessment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.RiskAssessment
	for i := len(r.assessments) - 1; i >= 0; i-- {
		if keep(r.assessments[i]) {
			out = append(out, r.assessments[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AssessedAt.After(out[j].AssessedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SaveIndicators upserts on (sector, region, metric, as_of).
func (r *MemoryRepository) SaveIndicators(ctx context.Context, indicators []domain.MarketIndicator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ind := range indicators {
		replaced := false
		for i, cur := range r.indicators {
			if sameIndicator(cur, ind) {
				r.indicators[i] = ind
				replaced = true
				break
			}
		}
		if !replaced {
			r.indicators = append(r.indicators, ind)
		}
	}
	return nil
}

func (r *MemoryRepository) LatestIndicators(ctx context.Context, since time.Time) ([]domain.MarketIndicator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.MarketIndicator
	for _, ind := range r.indicators {
		if !ind.AsOf.Before(since) {
			out = append(out, ind)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateWorkspace(ctx context.Context, w domain.Workspace) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workspaces[w.ID]; ok {
		return false, nil
	}
	r.workspaces[w.ID] = w
	return true, nil
}

func (r *MemoryRepository) GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workspaces[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &w, nil
}

func (r *MemoryRepository) AddIntegration(ctx context.Context, in domain.Integration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.integrations[in.WorkspaceID] {
		if cur.Provider == in.Provider {
			return false, nil
		}
	}
	r.integrations[in.WorkspaceID] = append(r.integrations[in.WorkspaceID], in)
	return true, nil
}

func (r *MemoryRepository) ListIntegrations(ctx context.Context, workspaceID string) ([]domain.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Integration(nil), r.integrations[workspaceID]...), nil
}

func (r *MemoryRepository) Close() error { return nil }

func sameIndicator(a, b domain.MarketIndicator) bool {
	return strings.EqualFold(a.Sector, b.Sector) &&
		strings.EqualFold(a.Region, b.Region) &&
		strings.EqualFold(a.Metric, b.Metric) &&
		a.AsOf.Equal(b.AsOf)
}

func cloneTemplate(t domain.Template) domain.Template {
	t.AssetTypes = append([]string(nil), t.AssetTypes...)
	t.Industries = append([]string(nil), t.Industries...)
	t.Criteria = append([]domain.Criterion(nil), t.Criteria...)
	if t.LastUsedAt != nil {
		used := *t.LastUsedAt
		t.LastUsedAt = &used
	}
	return t
}
