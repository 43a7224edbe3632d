package domain

import (
	"slices"
	"time"
)

// ProblemStatus represents the lifecycle state of a problem record.
type ProblemStatus string

// Problem statuses.
const (
	ProblemStatusInvestigation ProblemStatus = "Investigation"
	ProblemStatusRCAComplete   ProblemStatus = "RCA Complete"
	ProblemStatusClosed        ProblemStatus = "Closed"
)

// IsValid checks if the problem status is valid.
func (s ProblemStatus) IsValid() bool {
	return s == ProblemStatusInvestigation || s == ProblemStatusRCAComplete || s == ProblemStatusClosed
}

// HasRootCause reports whether a root cause may be recorded in this status.
func (s ProblemStatus) HasRootCause() bool {
	return s == ProblemStatusRCAComplete || s == ProblemStatusClosed
}

// Problem aggregates recurring incidents under one investigation.
type Problem struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Status          ProblemStatus `json:"status"`
	Priority        Severity      `json:"priority"`
	AssignedGroup   string        `json:"assigned_group"`
	CIID            string        `json:"ci_id"`
	LinkedIncidents []string      `json:"linked_incidents"`
	RootCause       string        `json:"root_cause,omitempty"`
	Solution        string        `json:"solution,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	ClosedAt        *time.Time    `json:"closed_at,omitempty"`
}

// Links reports whether the problem aggregates the given incident.
func (p *Problem) Links(incidentID string) bool {
	return slices.Contains(p.LinkedIncidents, incidentID)
}
