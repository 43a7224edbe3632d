package servicedesk

import "errors"

// Repository errors.
var (
	ErrCINotFound       = errors.New("configuration item not found")
	ErrIncidentNotFound = errors.New("incident not found")
	ErrProblemNotFound  = errors.New("problem not found")
	ErrChangeNotFound   = errors.New("change not found")
	ErrCIExists         = errors.New("configuration item already exists")
	// ErrDuplicateProvenance is returned when another open incident already
	// carries the same alert id or external ticket key.
	ErrDuplicateProvenance = errors.New("open incident with this provenance already exists")
)

// Validation errors.
var (
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidSeverity   = errors.New("invalid severity")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrUnknownDependency = errors.New("dependency references unknown configuration item")
)
