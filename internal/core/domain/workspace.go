package domain

import "time"

type IntegrationStatus string

const (
	IntegrationPending   IntegrationStatus = "pending"
	IntegrationConnected IntegrationStatus = "connected"
	IntegrationDisabled  IntegrationStatus = "disabled"
)

// DefaultIntegrations are registered for every newly seeded workspace.
var DefaultIntegrations = []string{"slack", "email", "data_room", "crm"}

type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Integration struct {
	WorkspaceID string            `json:"workspace_id"`
	Provider    string            `json:"provider"`
	Status      IntegrationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// SeedResult reports what a seeding pass created.
type SeedResult struct {
	Workspace           Workspace `json:"workspace"`
	WorkspaceCreated    bool      `json:"workspace_created"`
	IntegrationsCreated []string  `json:"integrations_created"`
	TemplatesCreated    []string  `json:"templates_created"`
}
