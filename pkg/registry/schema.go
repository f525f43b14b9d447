// pkg/registry/schema.go
package registry

import "course-notify/internal/models"

// Registry is the operator-maintained notification registry: placeholder
// aliases and the milestone rule tables.
type Registry struct {
	Version         string            `json:"version"`
	LastUpdated     string            `json:"lastUpdated"`
	Aliases         map[string]string `json:"aliases"`
	MilestoneTables []MilestoneTable  `json:"milestoneTables"`
}

type MilestoneTable struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Rules       []models.MilestoneRule `json:"rules"`
}

const (
	TableRenewal   = "renewal"
	TableRefresher = "refresher"
)
