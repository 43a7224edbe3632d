package automation

import (
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/itsm-garden/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ProblemManagementGroup handles problems below High priority.
const ProblemManagementGroup = "L2-Problem-Management"

// DefaultChangeRisk is used when the RCA does not name a risk level.
const DefaultChangeRisk = "Medium"

// CreateProblem synthesizes an Investigation problem from a pattern.
func (e *Engine) CreateProblem(pattern Pattern, ci domain.CIMetadata, now time.Time) (domain.Problem, error) {
	if len(pattern.IncidentIDs) == 0 {
		return domain.Problem{}, fmt.Errorf("%w: pattern has no incidents", ErrInvalidInput)
	}
	if ci.ID != "" && ci.ID != pattern.CIID {
		return domain.Problem{}, fmt.Errorf("%w: pattern is for CI %s but metadata is for %s", ErrInvalidInput, pattern.CIID, ci.ID)
	}

	name := ci.Name
	if name == "" {
		name = pattern.CIID
	}

	return domain.Problem{
		ID:    e.newID(ProblemIDPrefix),
		Title: fmt.Sprintf("Recurring incidents on %s (%d incidents)", name, pattern.Count),
		Description: fmt.Sprintf("%d incidents on %s between %s and %s: %s",
			pattern.Count, name,
			pattern.FirstSeen.UTC().Format(time.RFC3339),
			pattern.LastSeen.UTC().Format(time.RFC3339),
			strings.Join(pattern.IncidentIDs, ", ")),
		Status:          domain.ProblemStatusInvestigation,
		Priority:        pattern.Severity,
		AssignedGroup:   problemGroup(pattern.Severity, ci.Type),
		CIID:            pattern.CIID,
		LinkedIncidents: append([]string(nil), pattern.IncidentIDs...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// problemGroup routes Critical problems to L3 experts and High ones to L2
// analysts for the CI type. Everything else goes to problem management.
func problemGroup(severity domain.Severity, ciType string) string {
	kind := "General"
	if ciType != "" {
		kind = cases.Title(language.English).String(ciType)
	}
	switch severity {
	case domain.SeverityCritical:
		return "L3-" + kind + "-Expert"
	case domain.SeverityHigh:
		return "L2-" + kind + "-Analysis"
	default:
		return ProblemManagementGroup
	}
}

// RCA is the root cause analysis outcome a change is planned from.
type RCA struct {
	RootCause          string
	Solution           string
	ImplementationDate *time.Time
	RiskLevel          string
	RollbackPlan       string
}

// ChangeSynthesis holds the two records CreateChange produces. Callers must
// persist both in one transaction.
type ChangeSynthesis struct {
	Change  domain.Change
	Problem domain.Problem
}

// CreateChange plans a change from a problem and its RCA. The returned
// problem is moved to RCA Complete with the root cause recorded.
func (e *Engine) CreateChange(problem domain.Problem, rca RCA, now time.Time) (ChangeSynthesis, error) {
	if strings.TrimSpace(rca.RootCause) == "" {
		return ChangeSynthesis{}, fmt.Errorf("%w: root cause is required", ErrInvalidInput)
	}
	if strings.TrimSpace(rca.Solution) == "" {
		return ChangeSynthesis{}, fmt.Errorf("%w: solution is required", ErrInvalidInput)
	}
	if problem.Status == domain.ProblemStatusClosed {
		return ChangeSynthesis{}, fmt.Errorf("%w: problem %s is closed", ErrInvalidInput, problem.ID)
	}

	risk := rca.RiskLevel
	if risk == "" {
		risk = DefaultChangeRisk
	}

	change := domain.Change{
		ID:                 e.newID(ChangeIDPrefix),
		Title:              "Fix: " + problem.Title,
		Description:        fmt.Sprintf("Root cause: %s\nSolution: %s", rca.RootCause, rca.Solution),
		Status:             domain.ChangeStatusPlanning,
		CIID:               problem.CIID,
		LinkedProblem:      problem.ID,
		LinkedIncidents:    append([]string(nil), problem.LinkedIncidents...),
		Solution:           rca.Solution,
		RiskLevel:          risk,
		RollbackPlan:       rca.RollbackPlan,
		ImplementationDate: rca.ImplementationDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	problem.Status = domain.ProblemStatusRCAComplete
	problem.RootCause = rca.RootCause
	problem.Solution = rca.Solution
	problem.LinkedIncidents = append([]string(nil), problem.LinkedIncidents...)
	problem.UpdatedAt = now

	return ChangeSynthesis{Change: change, Problem: problem}, nil
}

// SyncCloseResult lists the records the caller must close together with Change.
type SyncCloseResult struct {
	Change            domain.Change `json:"change"`
	ClosedIncidentIDs []string      `json:"closed_incident_ids"`
	ClosedProblemIDs  []string      `json:"closed_problem_ids"`
}

// SyncClose closes the change and returns the linked incidents and problem
// to close with it. It does not touch those records; the caller applies the
// closures in the same unit of work as the change.
func SyncClose(change domain.Change, now time.Time) (SyncCloseResult, error) {
	if change.Status == domain.ChangeStatusCancelled {
		return SyncCloseResult{}, fmt.Errorf("%w: change %s is cancelled", ErrInvalidInput, change.ID)
	}

	if change.Status != domain.ChangeStatusClosed || change.CompletedAt == nil {
		completedAt := now
		change.CompletedAt = &completedAt
	}
	change.Status = domain.ChangeStatusClosed
	change.UpdatedAt = now
	change.LinkedIncidents = append([]string(nil), change.LinkedIncidents...)

	result := SyncCloseResult{
		Change:            change,
		ClosedIncidentIDs: append(make([]string, 0, len(change.LinkedIncidents)), change.LinkedIncidents...),
		ClosedProblemIDs:  make([]string, 0, 1),
	}
	if change.LinkedProblem != "" {
		result.ClosedProblemIDs = append(result.ClosedProblemIDs, change.LinkedProblem)
	}
	return result, nil
}
