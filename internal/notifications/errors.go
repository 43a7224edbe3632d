package notifications

import "errors"

// Rendering errors.
var (
	ErrTemplateNotFound = errors.New("notification template not found")
)
