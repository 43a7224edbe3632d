package automation

import "github.com/bissquit/itsm-garden/internal/domain"

// StatusSet is a set of lifecycle statuses, e.g. the terminal ones.
type StatusSet[S ~string] map[S]struct{}

// NewStatusSet builds a set from the given statuses.
func NewStatusSet[S ~string](statuses ...S) StatusSet[S] {
	set := make(StatusSet[S], len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// Contains reports whether s is in the set.
func (set StatusSet[S]) Contains(s S) bool {
	_, ok := set[s]
	return ok
}

// DefaultIncidentTerminal is the terminal set used when none is supplied.
func DefaultIncidentTerminal() StatusSet[domain.IncidentStatus] {
	return NewStatusSet(
		domain.IncidentStatusResolved,
		domain.IncidentStatusClosed,
		domain.IncidentStatusCancelled,
	)
}

// DefaultChangeTerminal is the terminal set for changes.
func DefaultChangeTerminal() StatusSet[domain.ChangeStatus] {
	return NewStatusSet(domain.ChangeStatusClosed, domain.ChangeStatusCancelled)
}
