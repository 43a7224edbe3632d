package domain

import (
	"slices"
	"time"
)

// CIStatus represents the operational status of a configuration item.
type CIStatus string

// CI statuses.
const (
	CIStatusActive      CIStatus = "Active"
	CIStatusMaintenance CIStatus = "Maintenance"
	CIStatusInactive    CIStatus = "Inactive"
	CIStatusDegraded    CIStatus = "Degraded"
	CIStatusDown        CIStatus = "Down"
)

// IsValid checks if the CI status is valid.
func (s CIStatus) IsValid() bool {
	switch s {
	case CIStatusActive, CIStatusMaintenance, CIStatusInactive,
		CIStatusDegraded, CIStatusDown:
		return true
	}
	return false
}

// Common CI types. The type set is open; these are the ones the default
// assignment matrix knows about.
const (
	CITypeServer   = "Server"
	CITypeDatabase = "Database"
	CITypeNetwork  = "Network"
	CITypeStorage  = "Storage"
	CITypeService  = "Service"
	CITypeSecurity = "Security"
)

// ConfigurationItem represents a tracked infrastructure or service entity.
type ConfigurationItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Status       CIStatus  `json:"status"`
	Location     string    `json:"location"`
	Environment  string    `json:"environment"`
	Owner        string    `json:"owner"`
	Dependencies []string  `json:"dependencies"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DependsOn reports whether the CI lists id among its dependencies.
func (c *ConfigurationItem) DependsOn(id string) bool {
	return slices.Contains(c.Dependencies, id)
}

// Metadata returns the subset of CI fields the rule tables match on.
func (c *ConfigurationItem) Metadata() CIMetadata {
	return CIMetadata{
		ID:       c.ID,
		Name:     c.Name,
		Type:     c.Type,
		Location: c.Location,
	}
}

// CIMetadata carries the CI attributes needed for routing decisions.
type CIMetadata struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Location string `json:"location"`
}
