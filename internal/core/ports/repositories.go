package ports

import (
	"context"
	"time"

	"github.com/hive-corporation/vantage/internal/core/domain"
)

// MarketDataProvider fetches indicators from one external market feed.
type MarketDataProvider interface {
	FetchIndicators(ctx context.Context) ([]domain.MarketIndicator, error)
	Name() string
}

// TemplateRepository stores scoring templates. Get returns domain.ErrNotFound
// for unknown IDs.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t domain.Template) error
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	ListTemplates(ctx context.Context) ([]domain.Template, error)
	RecordTemplateUsage(ctx context.Context, id string, usedAt time.Time) error
}

type AssessmentRepository interface {
	SaveAssessment(ctx context.Context, a domain.RiskAssessment) error
	// ScoreHistory returns up to limit prior overall scores, newest first.
	ScoreHistory(ctx context.Context, entityID string, limit int) ([]float64, error)
	ListAssessments(ctx context.Context, entityID string, limit int) ([]domain.RiskAssessment, error)
	FindAssessmentsSince(ctx context.Context, since time.Time, limit int) ([]domain.RiskAssessment, error)
}

type MarketRepository interface {
	SaveIndicators(ctx context.Context, indicators []domain.MarketIndicator) error
	LatestIndicators(ctx context.Context, since time.Time) ([]domain.MarketIndicator, error)
}

type WorkspaceRepository interface {
	// CreateWorkspace returns false when the workspace already exists.
	CreateWorkspace(ctx context.Context, w domain.Workspace) (bool, error)
	GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error)
	// AddIntegration returns false when the provider is already registered.
	AddIntegration(ctx context.Context, in domain.Integration) (bool, error)
	ListIntegrations(ctx context.Context, workspaceID string) ([]domain.Integration, error)
}

// Store bundles every repository a backend provides.
type Store interface {
	TemplateRepository
	AssessmentRepository
	MarketRepository
	WorkspaceRepository
	Close() error
}
