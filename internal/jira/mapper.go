package jira

import (
	"strings"

	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/bissquit/itsm-garden/internal/servicedesk"
)

// Provenance and label conventions.
const (
	ProvenancePrefix = "jira:"
	CILabelPrefix    = "ci:"
)

// Provenance returns the provenance recorded on incidents imported from key.
func Provenance(key string) string {
	return ProvenancePrefix + key
}

// MapSeverity converts a priority name. Unknown or missing priorities map
// to Medium.
func MapSeverity(priority *Priority) domain.Severity {
	if priority == nil {
		return domain.SeverityMedium
	}
	switch strings.ToLower(priority.Name) {
	case "highest", "blocker", "critical", "p1":
		return domain.SeverityCritical
	case "high", "major", "p2":
		return domain.SeverityHigh
	case "low", "lowest", "minor", "trivial", "p4", "p5":
		return domain.SeverityLow
	default:
		return domain.SeverityMedium
	}
}

// MapStatus converts a workflow status by its category. Within "done",
// cancelled-like and closed names are kept apart from resolved.
func MapStatus(status Status) domain.IncidentStatus {
	name := strings.ToLower(status.Name)
	switch strings.ToLower(status.Category.Key) {
	case "indeterminate":
		return domain.IncidentStatusInProgress
	case "done":
		switch name {
		case "cancelled", "canceled", "won't do", "declined", "rejected":
			return domain.IncidentStatusCancelled
		case "closed":
			return domain.IncidentStatusClosed
		default:
			return domain.IncidentStatusResolved
		}
	default:
		return domain.IncidentStatusOpen
	}
}

// CIID returns the configuration item named by the first ci:<id> label.
func CIID(labels []string) string {
	for _, label := range labels {
		if id, ok := strings.CutPrefix(label, CILabelPrefix); ok && id != "" {
			return id
		}
	}
	return ""
}

// IncidentInput builds the incident opened for an issue.
func IncidentInput(issue Issue) servicedesk.CreateIncidentInput {
	return servicedesk.CreateIncidentInput{
		Title:       "[JIRA] " + issue.Key + ": " + issue.Fields.Summary,
		Description: issue.Fields.Description,
		Severity:    MapSeverity(issue.Fields.Priority),
		CIID:        CIID(issue.Fields.Labels),
		Provenance:  Provenance(issue.Key),
		OpenedAt:    issue.Fields.Created.Time,
	}
}
