package automation

import (
	"fmt"
	"time"

	"github.com/bissquit/itsm-garden/internal/domain"
)

// EscalationReason is recorded on incidents escalated by the SLA monitor.
const EscalationReason = "SLA threshold breach"

// Escalate routes the incident to the next support tier and returns the
// updated copy.
//
// The first escalation moves the incident to the escalation group of its
// assignment rule. Later calls advance one tier each (L2 to L3). An
// incident already at MaxTier keeps its group and is only marked escalated;
// once marked it is returned unchanged. The tier never decreases.
func (e *Engine) Escalate(incident domain.Incident, ci domain.CIMetadata, now time.Time) (domain.Incident, error) {
	if DefaultIncidentTerminal().Contains(incident.Status) {
		return domain.Incident{}, fmt.Errorf("%w: incident %s is %s", ErrInvalidInput, incident.ID, incident.Status)
	}

	current := Tier(incident.AssignedGroup)
	if current >= MaxTier {
		if !incident.Escalated {
			markEscalated(&incident, current, now)
		}
		return incident, nil
	}

	rule, err := e.matrix.Resolve(incident.Severity, ci.Type, ci.Location)
	if err != nil {
		return domain.Incident{}, err
	}

	target := rule.EscalationGroup
	if Tier(target) <= current {
		target = withTier(incident.AssignedGroup, current+1)
	}
	if Tier(target) > MaxTier {
		target = withTier(target, MaxTier)
	}

	incident.AssignedGroup = target
	markEscalated(&incident, Tier(target), now)
	return incident, nil
}

func markEscalated(incident *domain.Incident, level int, now time.Time) {
	escalatedAt := now
	incident.EscalationLevel = level
	incident.Escalated = true
	incident.EscalatedAt = &escalatedAt
	incident.EscalationReason = EscalationReason
	incident.UpdatedAt = now
}
