package domain

import "time"

// ChangeStatus represents the lifecycle state of a change record.
type ChangeStatus string

// Change statuses.
const (
	ChangeStatusPlanning       ChangeStatus = "Planning"
	ChangeStatusDraft          ChangeStatus = "Draft"
	ChangeStatusApproval       ChangeStatus = "Approval"
	ChangeStatusApproved       ChangeStatus = "Approved"
	ChangeStatusImplementation ChangeStatus = "Implementation"
	ChangeStatusReview         ChangeStatus = "Review"
	ChangeStatusClosed         ChangeStatus = "Closed"
	ChangeStatusCancelled      ChangeStatus = "Cancelled"
)

// IsValid checks if the change status is valid.
func (s ChangeStatus) IsValid() bool {
	switch s {
	case ChangeStatusPlanning, ChangeStatusDraft, ChangeStatusApproval,
		ChangeStatusApproved, ChangeStatusImplementation, ChangeStatusReview,
		ChangeStatusClosed, ChangeStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the change can no longer move.
func (s ChangeStatus) IsTerminal() bool {
	return s == ChangeStatusClosed || s == ChangeStatusCancelled
}

var changeStages = map[ChangeStatus]int{
	ChangeStatusPlanning:       0,
	ChangeStatusDraft:          0,
	ChangeStatusApproval:       1,
	ChangeStatusApproved:       2,
	ChangeStatusImplementation: 3,
	ChangeStatusReview:         4,
	ChangeStatusClosed:         5,
}

// CanTransitionTo checks whether the change may move from s to next.
// Changes move forward through the stages; any open change may be cancelled.
func (s ChangeStatus) CanTransitionTo(next ChangeStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == ChangeStatusCancelled {
		return true
	}
	from, ok := changeStages[s]
	if !ok {
		return false
	}
	to, ok := changeStages[next]
	if !ok {
		return false
	}
	return to > from
}

// Change represents a planned modification that resolves a problem.
type Change struct {
	ID                 string       `json:"id"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	Status             ChangeStatus `json:"status"`
	CIID               string       `json:"ci_id"`
	LinkedProblem      string       `json:"linked_problem,omitempty"`
	LinkedIncidents    []string     `json:"linked_incidents"`
	Solution           string       `json:"solution,omitempty"`
	RiskLevel          string       `json:"risk_level,omitempty"`
	RollbackPlan       string       `json:"rollback_plan,omitempty"`
	ImplementationDate *time.Time   `json:"implementation_date,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
}
