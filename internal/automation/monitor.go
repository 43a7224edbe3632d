package automation

import (
	"time"

	"github.com/bissquit/itsm-garden/internal/domain"
)

// ViolationType classifies an SLA violation.
type ViolationType string

// Violation types.
const (
	ViolationEscalationRequired ViolationType = "escalation_required"
	ViolationResponseOverdue    ViolationType = "response_overdue"
)

// Violation reports an incident that has exceeded an SLA budget.
type Violation struct {
	Type             ViolationType   `json:"type"`
	IncidentID       string          `json:"incident_id"`
	Severity         domain.Severity `json:"severity"`
	ElapsedMinutes   int             `json:"elapsed_time"`
	ThresholdMinutes int             `json:"threshold"`
}

// CheckViolations scans incidents outside the terminal set and reports SLA
// violations. It does not modify anything, so repeated calls over the same
// snapshot return the same result. A nil terminal set means
// DefaultIncidentTerminal.
//
// For one incident escalation_required is reported before response_overdue.
func (e *Engine) CheckViolations(incidents []domain.Incident, now time.Time, terminal StatusSet[domain.IncidentStatus]) ([]Violation, error) {
	if terminal == nil {
		terminal = DefaultIncidentTerminal()
	}

	violations := make([]Violation, 0)
	for _, inc := range incidents {
		if terminal.Contains(inc.Status) {
			continue
		}

		sla, err := e.policy.Lookup(inc.Severity)
		if err != nil {
			return nil, err
		}

		elapsed := int(now.Sub(inc.CreatedAt) / time.Minute)

		if elapsed >= sla.EscalationTime && !inc.Escalated {
			violations = append(violations, Violation{
				Type:             ViolationEscalationRequired,
				IncidentID:       inc.ID,
				Severity:         inc.Severity,
				ElapsedMinutes:   elapsed,
				ThresholdMinutes: sla.EscalationTime,
			})
		}

		if elapsed >= sla.ResponseTime && inc.Status.IsInitial() {
			violations = append(violations, Violation{
				Type:             ViolationResponseOverdue,
				IncidentID:       inc.ID,
				Severity:         inc.Severity,
				ElapsedMinutes:   elapsed,
				ThresholdMinutes: sla.ResponseTime,
			})
		}
	}
	return violations, nil
}
