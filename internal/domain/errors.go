package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors.
var (
	// ErrInvalidScale indicates a stance set that cannot form a Scale.
	ErrInvalidScale = errors.New("invalid scale")

	// ErrArityMismatch indicates that the number of weights does not equal
	// the number of position sets.
	ErrArityMismatch = errors.New("arity mismatch")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ArityError reports a weights/sets count mismatch in a weighted operation.
type ArityError struct {
	// Operation names the call that failed.
	Operation string

	// Weights is the number of weights supplied.
	Weights int

	// Sets is the number of position sets supplied.
	Sets int
}

// Error implements the error interface for ArityError.
func (e *ArityError) Error() string {
	return fmt.Sprintf("arity error: operation=%s, weights=%d, sets=%d", e.Operation, e.Weights, e.Sets)
}

// Unwrap returns ErrArityMismatch so callers can use errors.Is.
func (e *ArityError) Unwrap() error { return ErrArityMismatch }

// NewArityError creates a new ArityError.
func NewArityError(operation string, weights, sets int) *ArityError {
	return &ArityError{Operation: operation, Weights: weights, Sets: sets}
}

// Issue is a single validation failure tied to one statement.
type Issue struct {
	StatementID string
	Message     string
}

// String renders the issue as one report line.
func (i Issue) String() string {
	return fmt.Sprintf("[Validation] %s: %s", i.StatementID, i.Message)
}

// ValidationError represents an error that occurred during validation of a
// set of positions. It can contain multiple failures, one per statement.
type ValidationError struct {
	// Entity names what was being validated (e.g. "voter", a party key).
	Entity string

	// Issues lists the offending statements in the order found.
	Issues []Issue
}

// Error implements the error interface for ValidationError. The report has
// one line per offending statement.
func (e *ValidationError) Error() string {
	return strings.Join(e.Lines(), "\n")
}

// Lines returns the report lines.
func (e *ValidationError) Lines() []string {
	lines := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		lines[i] = issue.String()
	}
	return lines
}

// AddIssue records a failure for statementID.
func (e *ValidationError) AddIssue(statementID, msg string) {
	e.Issues = append(e.Issues, Issue{StatementID: statementID, Message: msg})
}

// HasErrors returns true if there are any validation issues.
func (e *ValidationError) HasErrors() bool { return len(e.Issues) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Issues: make([]Issue, 0),
	}
}
