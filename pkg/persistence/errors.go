// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrCompositionNotFound indicates no composition exists for the given ID.
	ErrCompositionNotFound = errors.New("composition not found")

	// ErrExecutionNotFound indicates no execution exists for the given ID.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrScheduleNotFound indicates no schedule exists for the given ID.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrStepNotFound indicates a step was not found within a composition.
	ErrStepNotFound = errors.New("step not found")

	// ErrInvalidSortField indicates a sort field outside the allowlist.
	ErrInvalidSortField = errors.New("invalid sort field")

	// ErrInvalidRecordID indicates an identifier unsafe for storage lookups.
	ErrInvalidRecordID = errors.New("invalid record identifier")
)

// CompositionError wraps composition storage errors with operation context.
type CompositionError struct {
	Op            string // Operation being performed (e.g. "GetByID", "Save")
	CompositionID string
	Err           error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("%s operation failed for composition %s: %v", e.Op, e.CompositionID, e.Err)
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

func (e *CompositionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewCompositionError creates a composition error with context.
func NewCompositionError(op, compositionID string, err error) *CompositionError {
	return &CompositionError{Op: op, CompositionID: compositionID, Err: err}
}

// ExecutionError wraps execution storage errors with operation context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates an execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// IsCompositionNotFound checks whether an error indicates a missing composition.
func IsCompositionNotFound(err error) bool {
	return errors.Is(err, ErrCompositionNotFound)
}

// IsExecutionNotFound checks whether an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsStepNotFound checks whether an error indicates a missing step.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsInvalidSortField checks whether an error indicates a rejected sort field.
func IsInvalidSortField(err error) bool {
	return errors.Is(err, ErrInvalidSortField)
}
