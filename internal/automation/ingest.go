package automation

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/bissquit/itsm-garden/internal/domain"
)

// Ingest converts a monitoring alert into a draft incident routed by the
// assignment matrix and budgeted by the SLA policy. The incident is not
// persisted.
func (e *Engine) Ingest(alert domain.MonitoringAlert, ci domain.CIMetadata, now time.Time) (domain.Incident, error) {
	if alert.ID == "" {
		return domain.Incident{}, fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}
	if ci.ID != "" && alert.CIID != "" && ci.ID != alert.CIID {
		return domain.Incident{}, fmt.Errorf("%w: alert targets CI %s but metadata is for %s", ErrInvalidInput, alert.CIID, ci.ID)
	}

	sla, err := e.policy.Lookup(alert.Severity)
	if err != nil {
		return domain.Incident{}, err
	}

	rule, err := e.matrix.Resolve(alert.Severity, ci.Type, ci.Location)
	if err != nil {
		return domain.Incident{}, err
	}

	ciID := ci.ID
	if ciID == "" {
		ciID = alert.CIID
	}

	return domain.Incident{
		ID:                e.newID(IncidentIDPrefix),
		Title:             alertTitle(alert, ci),
		Description:       alertDescription(alert),
		Severity:          alert.Severity,
		Status:            domain.IncidentStatusOpen,
		AssignedGroup:     rule.AssignedGroup,
		CIID:              ciID,
		SLAResponseTime:   sla.ResponseTime,
		SLAResolutionTime: sla.ResolutionTime,
		EscalationTime:    sla.EscalationTime,
		EscalationLevel:   Tier(rule.AssignedGroup),
		Provenance:        alert.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func alertTitle(alert domain.MonitoringAlert, ci domain.CIMetadata) string {
	target := ci.Name
	if target == "" {
		target = alert.CIID
	}
	return fmt.Sprintf("[%s] %s: %s", alert.Source, target, alert.Message)
}

func alertDescription(alert domain.MonitoringAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert %s from %s", alert.ID, alert.Source)
	if !alert.Timestamp.IsZero() {
		fmt.Fprintf(&b, " at %s", alert.Timestamp.UTC().Format(time.RFC3339))
	}
	b.WriteString(": ")
	b.WriteString(alert.Message)

	for _, k := range slices.Sorted(maps.Keys(alert.Metrics)) {
		fmt.Fprintf(&b, "\n%s=%g", k, alert.Metrics[k])
	}
	return b.String()
}
