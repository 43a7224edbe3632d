package notifications

import (
	"time"

	"github.com/bissquit/itsm-garden/internal/automation"
	"github.com/bissquit/itsm-garden/internal/domain"
)

// MessageType defines the type of notification.
type MessageType string

// Message types.
const (
	MessageTypeViolations MessageType = "violations"
	MessageTypeEscalation MessageType = "escalation"
	MessageTypeProblem    MessageType = "problem"
)

// Payload contains the data a template renders. Exactly one of
// Violations, Incident and Problem is set, matching MessageType.
type Payload struct {
	MessageType MessageType            `json:"message_type"`
	Violations  []automation.Violation `json:"violations,omitempty"`
	Incident    *domain.Incident       `json:"incident,omitempty"`
	Problem     *domain.Problem        `json:"problem,omitempty"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// NewViolationsPayload summarizes SLA violations found by one run.
func NewViolationsPayload(violations []automation.Violation, now time.Time) Payload {
	return Payload{
		MessageType: MessageTypeViolations,
		Violations:  violations,
		GeneratedAt: now,
	}
}

// NewEscalationPayload announces an incident moved to a higher tier.
func NewEscalationPayload(incident domain.Incident, now time.Time) Payload {
	return Payload{
		MessageType: MessageTypeEscalation,
		Incident:    &incident,
		GeneratedAt: now,
	}
}

// NewProblemPayload announces a problem record opened for recurring incidents.
func NewProblemPayload(problem domain.Problem, now time.Time) Payload {
	return Payload{
		MessageType: MessageTypeProblem,
		Problem:     &problem,
		GeneratedAt: now,
	}
}
