package models

import "time"

// ExecutionStatus represents the lifecycle state of a composition execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSucceeded ExecutionStatus = "succeeded"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is absorbing. No transition out of a
// terminal status is legal.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusSucceeded || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// StepStatus represents the state of a single step within an execution.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusCancelled StepStatus = "cancelled"
	// StepStatusSkipped marks steps that were never dispatched because an
	// earlier step failed.
	StepStatusSkipped StepStatus = "skipped"
)

// LogLine is a single timestamped log entry produced while a step runs.
// Lines within one step are strictly timestamp-ordered.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// StepResult is the per-step outcome record within one execution.
type StepResult struct {
	StepID     string         `json:"step_id"`
	Status     StepStatus     `json:"status"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Logs       []LogLine      `json:"logs,omitempty"`
}

// Execution represents one run of a composition against concrete input
// parameters. Step results are kept in the composition's declared step order.
type Execution struct {
	ID            string          `json:"id"`
	CompositionID string          `json:"composition_id"`
	AccountID     string          `json:"account_id"`
	Status        ExecutionStatus `json:"status"`
	Input         map[string]any  `json:"input,omitempty"`
	Output        map[string]any  `json:"output,omitempty"`
	Error         string          `json:"error,omitempty"`
	StepResults   []*StepResult   `json:"step_results"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// StepResult returns the result record for the given step ID, or nil when the
// execution has no such step.
func (e *Execution) StepResult(stepID string) *StepResult {
	for _, result := range e.StepResults {
		if result.StepID == stepID {
			return result
		}
	}

	return nil
}
