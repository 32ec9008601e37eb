package services

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hive-corporation/vantage/internal/core/domain"
	"github.com/hive-corporation/vantage/internal/core/ports"
)

//go:embed default_templates.yaml
var defaultTemplatesYAML []byte

// DefaultTemplates parses and validates the embedded starter templates.
func DefaultTemplates() ([]domain.Template, error) {
	return ParseTemplates(defaultTemplatesYAML)
}

// ParseTemplates reads a YAML list of templates and validates each one.
func ParseTemplates(data []byte) ([]domain.Template, error) {
	var templates []domain.Template
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, eris.Wrap(err, "services: parse templates yaml")
	}
	for i := range templates {
		if templates[i].AutomationLevel == "" {
			templates[i].AutomationLevel = domain.AutomationAssisted
		}
		if err := domain.ValidateTemplate(templates[i]); err != nil {
			return nil, eris.Wrapf(err, "services: template %q", templates[i].Name)
		}
	}
	return templates, nil
}

// WorkspaceService provisions workspaces with default integrations and
// starter templates.
type WorkspaceService struct {
	workspaces ports.WorkspaceRepository
	templates  ports.TemplateRepository
	defaults   []domain.Template
	now        func() time.Time
}

func NewWorkspaceService(workspaces ports.WorkspaceRepository, templates ports.TemplateRepository, defaults []domain.Template, now func() time.Time) *WorkspaceService {
	if now == nil {
		now = time.Now
	}
	return &WorkspaceService{workspaces: workspaces, templates: templates, defaults: defaults, now: now}
}

// Seed creates the workspace if absent, registers the default integrations as
// pending and inserts missing default templates. Running it twice creates
// nothing the second time.
func (s *WorkspaceService) Seed(ctx context.Context, workspaceID, name string) (*domain.SeedResult, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, &domain.ValidationError{Field: "workspace_id", Message: "is required"}
	}
	if name = strings.TrimSpace(name); name == "" {
		name = workspaceID
	}

	now := s.now().UTC()
	res := &domain.SeedResult{
		IntegrationsCreated: []string{},
		TemplatesCreated:    []string{},
	}

	created, err := s.workspaces.CreateWorkspace(ctx, domain.Workspace{ID: workspaceID, Name: name, CreatedAt: now})
	if err != nil {
		return nil, eris.Wrapf(err, "services: create workspace %s", workspaceID)
	}
	res.WorkspaceCreated = created

	ws, err := s.workspaces.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, eris.Wrapf(err, "services: get workspace %s", workspaceID)
	}
	res.Workspace = *ws

	for _, provider := range domain.DefaultIntegrations {
		added, err := s.workspaces.AddIntegration(ctx, domain.Integration{
			WorkspaceID: workspaceID,
			Provider:    provider,
			Status:      domain.IntegrationPending,
			CreatedAt:   now,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "services: add %s integration", provider)
		}
		if added {
			res.IntegrationsCreated = append(res.IntegrationsCreated, provider)
		}
	}

	for _, t := range s.defaults {
		_, err := s.templates.GetTemplate(ctx, t.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, eris.Wrapf(err, "services: look up template %s", t.ID)
		}
		t.CreatedAt = now
		if err := s.templates.CreateTemplate(ctx, t); err != nil {
			return nil, eris.Wrapf(err, "services: seed template %s", t.ID)
		}
		res.TemplatesCreated = append(res.TemplatesCreated, t.ID)
	}

	zap.L().Info("workspace seeded",
		zap.String("workspace_id", workspaceID),
		zap.Bool("workspace_created", res.WorkspaceCreated),
		zap.Strings("integrations_created", res.IntegrationsCreated),
		zap.Strings("templates_created", res.TemplatesCreated),
	)
	return res, nil
}
