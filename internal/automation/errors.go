package automation

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Typed errors below match these with errors.Is.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrPartialCompletion = errors.New("partial completion")
	ErrInvalidInput      = errors.New("invalid input")
)

// ConfigurationError reports a rule table that cannot serve a request.
// Callers must not substitute a default.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a lookup miss for an entity id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PartialCompletionError reports a multi-step update where only some steps
// were applied. Succeeded and Failed hold the ids of the affected records so
// the caller can retry the remainder.
type PartialCompletionError struct {
	Operation string
	Succeeded []string
	Failed    map[string]error
}

func (e *PartialCompletionError) Error() string {
	failed := make([]string, 0, len(e.Failed))
	for id, err := range e.Failed {
		failed = append(failed, fmt.Sprintf("%s: %v", id, err))
	}
	return fmt.Sprintf("%s partially completed: %d succeeded, %d failed (%s)",
		e.Operation, len(e.Succeeded), len(e.Failed), strings.Join(failed, "; "))
}

// Is matches ErrPartialCompletion.
func (e *PartialCompletionError) Is(target error) bool {
	return target == ErrPartialCompletion
}

// Unwrap exposes the individual failures.
func (e *PartialCompletionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}
