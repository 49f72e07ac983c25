// Package events defines the event types published over the bus for
// execution lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every execution lifecycle event.
const Topic = "stepflow.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionRequestedEvent EventType = "execution.requested"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	// Per-step events.
	StepFinishedEvent EventType = "step.finished"
	StepFailedEvent   EventType = "step.failed"
)

type BaseEvent struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	CompositionID string         `json:"composition_id"`
	WorkerID      string         `json:"worker_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, compositionID string) BaseEvent {
	return BaseEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		CompositionID: compositionID,
		Metadata:      make(map[string]any),
	}
}

// ExecutionRequested asks a worker to run a composition. The execution record
// already exists in pending state when this event is published.
type ExecutionRequested struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	AccountID   string         `json:"account_id"`
	Input       map[string]any `json:"input,omitempty"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

// ExecutionStarted marks the pending-to-running transition.
type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	AccountID   string `json:"account_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionCompleted marks a run that finished with every step succeeded.
type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Output      map[string]any `json:"output,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

// ExecutionFailed marks a run aborted by a step failure.
type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	StepID      string        `json:"step_id,omitempty"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// ExecutionCancelled marks a run stopped by a cancellation request.
type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

// StepFinished marks a single step completing successfully.
type StepFinished struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	StepID      string         `json:"step_id"`
	Output      map[string]any `json:"output,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (e StepFinished) GetType() EventType {
	return StepFinishedEvent
}

// StepFailed marks a single step failing; the run fails with it.
type StepFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	StepID      string        `json:"step_id"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}
