// Package services provides the business operations over compositions,
// executions and schema inference, plus their standardized error types.
package services

import (
	"errors"
	"fmt"

	"github.com/stepflow/stepflow/pkg/mapping"
	"github.com/stepflow/stepflow/pkg/persistence"
)

// Business logic errors. Validation errors map to 4xx responses at the edge.
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidStatus    = errors.New("invalid execution status")
	ErrEmptyAccountID   = errors.New("account ID cannot be empty")
	ErrCompositionNil   = errors.New("composition cannot be nil")

	// ErrStepIDSetMismatch is returned when a reorder request does not name
	// exactly the existing step IDs.
	ErrStepIDSetMismatch = errors.New("step ID set does not match existing steps")

	// Not-found errors (404), aliased from persistence sentinels.
	ErrCompositionNotFound = persistence.ErrCompositionNotFound
	ErrExecutionNotFound   = persistence.ErrExecutionNotFound
	ErrScheduleNotFound    = persistence.ErrScheduleNotFound
	ErrStepNotFound        = persistence.ErrStepNotFound

	// ErrExecutionTerminal is returned for state transitions attempted on an
	// execution that already reached a terminal status (409 Conflict).
	ErrExecutionTerminal = errors.New("execution already in a terminal state")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks whether an error should produce HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyAccountID) ||
		errors.Is(err, ErrCompositionNil) ||
		errors.Is(err, ErrStepIDSetMismatch) ||
		errors.Is(err, mapping.ErrInvalidReference) ||
		errors.Is(err, mapping.ErrUnresolvedReference) ||
		errors.Is(err, mapping.ErrInvalidStepGraph)
}

// IsNotFound checks whether an error should produce HTTP 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCompositionNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrStepNotFound)
}

// IsInvalidState checks whether an error is an illegal state transition that
// should produce HTTP 409.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrExecutionTerminal)
}
