package engine

import (
	"fmt"
)

// InvocationError wraps a function invocation failure with the step it
// happened in. The execution record carries its message as the failure
// detail.
type InvocationError struct {
	StepID     string
	FunctionID string
	Err        error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("step %q (function %q): %v", e.StepID, e.FunctionID, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// InputValidationError reports a step input that does not satisfy the step's
// declared input schema.
type InputValidationError struct {
	StepID     string
	Violations []string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("step %q input is invalid: %v", e.StepID, e.Violations)
}
