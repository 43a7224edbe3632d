// Package automation implements the ITSM rule engine: alert ingestion, SLA
// monitoring, escalation, incident pattern linking, problem and change
// synthesis, and CI impact analysis.
//
// Every operation is a synchronous function over in-memory records. Inputs
// are never mutated; updated records are returned to the caller, which owns
// persistence.
package automation

import (
	"errors"

	"github.com/google/uuid"
)

// ID prefixes for records synthesized by the engine.
const (
	IncidentIDPrefix = "INC"
	ProblemIDPrefix  = "PRB"
	ChangeIDPrefix   = "CHG"
)

// IDGenerator returns a new unique id with the given prefix.
type IDGenerator func(prefix string) string

// NewID is the default IDGenerator.
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// Engine evaluates the automation rules against an SLA policy and an
// assignment matrix.
type Engine struct {
	policy *SLAPolicy
	matrix *AssignmentMatrix
	newID  IDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator overrides id generation for synthesized records.
func WithIDGenerator(gen IDGenerator) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// NewEngine creates an engine over the given rule tables.
func NewEngine(policy *SLAPolicy, matrix *AssignmentMatrix, opts ...Option) (*Engine, error) {
	if policy == nil {
		return nil, &ConfigurationError{Reason: "sla policy is required"}
	}
	if matrix == nil {
		return nil, &ConfigurationError{Reason: "assignment matrix is required"}
	}

	e := &Engine{
		policy: policy,
		matrix: matrix,
		newID:  NewID,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.newID == nil {
		return nil, errors.New("id generator is nil")
	}
	return e, nil
}

// Policy returns the SLA policy the engine was built with.
func (e *Engine) Policy() *SLAPolicy {
	return e.policy
}

// Matrix returns the assignment matrix the engine was built with.
func (e *Engine) Matrix() *AssignmentMatrix {
	return e.matrix
}
