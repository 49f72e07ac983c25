// Package invoker abstracts the runtime that executes a single function of a
// composition step. The engine depends on this interface only; how the
// function actually runs (embedded JavaScript, remote call) is a backend
// concern.
package invoker

import (
	"context"
	"errors"

	"github.com/stepflow/stepflow/pkg/models"
)

var (
	// ErrFunctionNotFound is returned when no function is registered under the
	// requested ID.
	ErrFunctionNotFound = errors.New("function not found")

	// ErrInvocationTimeout is returned when a function exceeds its time limit.
	ErrInvocationTimeout = errors.New("function invocation timed out")
)

// Result is the outcome of a successful invocation.
type Result struct {
	// Output is the function's return value. Nil when the function returned
	// nothing.
	Output map[string]any

	// Logs holds everything the function wrote through its console bindings,
	// in emission order.
	Logs []models.LogLine
}

// Invoker executes a registered function with the given input. A non-nil
// error means the step failed; Result.Logs may still carry output produced
// before the failure.
type Invoker interface {
	Invoke(ctx context.Context, functionID string, input map[string]any) (*Result, error)
}
