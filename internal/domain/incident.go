package domain

import (
	"slices"
	"time"
)

// IncidentStatus represents the lifecycle state of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusOpen       IncidentStatus = "Open"
	IncidentStatusNew        IncidentStatus = "New"
	IncidentStatusAssigned   IncidentStatus = "Assigned"
	IncidentStatusInProgress IncidentStatus = "In Progress"
	IncidentStatusResolved   IncidentStatus = "Resolved"
	IncidentStatusClosed     IncidentStatus = "Closed"
	IncidentStatusCancelled  IncidentStatus = "Cancelled"
)

// IsValid checks if the incident status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusOpen, IncidentStatusNew, IncidentStatusAssigned,
		IncidentStatusInProgress, IncidentStatusResolved,
		IncidentStatusClosed, IncidentStatusCancelled:
		return true
	}
	return false
}

// IsInitial reports whether nobody has picked up the incident yet.
func (s IncidentStatus) IsInitial() bool {
	return s == IncidentStatusOpen || s == IncidentStatusNew
}

// RequiresResolvedAt reports whether resolved_at must be set for the status.
func (s IncidentStatus) RequiresResolvedAt() bool {
	return s == IncidentStatusResolved || s == IncidentStatusClosed
}

// incidentTransitions lists allowed next statuses. Cancelled and Closed are final.
var incidentTransitions = map[IncidentStatus][]IncidentStatus{
	IncidentStatusOpen:       {IncidentStatusNew, IncidentStatusAssigned, IncidentStatusInProgress, IncidentStatusResolved, IncidentStatusClosed, IncidentStatusCancelled},
	IncidentStatusNew:        {IncidentStatusAssigned, IncidentStatusInProgress, IncidentStatusResolved, IncidentStatusClosed, IncidentStatusCancelled},
	IncidentStatusAssigned:   {IncidentStatusInProgress, IncidentStatusResolved, IncidentStatusClosed, IncidentStatusCancelled},
	IncidentStatusInProgress: {IncidentStatusAssigned, IncidentStatusResolved, IncidentStatusClosed, IncidentStatusCancelled},
	IncidentStatusResolved:   {IncidentStatusInProgress, IncidentStatusClosed},
}

// CanTransitionTo checks whether the incident may move from s to next.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	return slices.Contains(incidentTransitions[s], next)
}

// Incident represents a service disruption tracked by the service desk.
type Incident struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	Severity          Severity       `json:"severity"`
	Status            IncidentStatus `json:"status"`
	AssignedGroup     string         `json:"assigned_group"`
	CIID              string         `json:"ci_id"`
	SLAResponseTime   int            `json:"sla_response_time"`
	SLAResolutionTime int            `json:"sla_resolution_time"`
	EscalationTime    int            `json:"escalation_time"`
	Escalated         bool           `json:"escalated"`
	EscalationLevel   int            `json:"escalation_level"`
	EscalatedAt       *time.Time     `json:"escalated_at,omitempty"`
	EscalationReason  string         `json:"escalation_reason,omitempty"`
	Provenance        string         `json:"provenance,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty"`
}

// SetStatus changes the status and keeps resolved_at consistent with it.
func (i *Incident) SetStatus(status IncidentStatus, now time.Time) {
	i.Status = status
	if status.RequiresResolvedAt() {
		if i.ResolvedAt == nil {
			resolvedAt := now
			i.ResolvedAt = &resolvedAt
		}
	} else {
		i.ResolvedAt = nil
	}
	i.UpdatedAt = now
}
