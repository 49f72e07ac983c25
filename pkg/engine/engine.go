// Package engine runs compositions: it walks the declared step order,
// resolves each step's input from the run input and prior outputs, invokes
// the step's function and records the outcome on the execution record after
// every transition.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stepflow/stepflow/pkg/eventbus"
	"github.com/stepflow/stepflow/pkg/events"
	"github.com/stepflow/stepflow/pkg/invoker"
	"github.com/stepflow/stepflow/pkg/mapping"
	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/otelhelper"
	"github.com/stepflow/stepflow/pkg/persistence"
	"github.com/stepflow/stepflow/pkg/services"
)

// Engine executes compositions. Safe for concurrent use; each run gets its
// own cancellable context tracked in the in-flight registry so Cancel can
// reach it.
type Engine struct {
	persistence persistence.Persistence
	invoker     invoker.Invoker
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	logger      *slog.Logger
	workerID    string

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewEngine creates an execution engine. The event bus may be nil; lifecycle
// events are then skipped.
func NewEngine(
	persistence persistence.Persistence,
	inv invoker.Invoker,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
	workerID string,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		persistence: persistence,
		invoker:     inv,
		eventBus:    eventBus,
		tracer:      tracer,
		workerID:    workerID,
		logger:      logger.With("module", "engine", "worker_id", workerID),
		inflight:    make(map[string]context.CancelFunc),
	}
}

// Execute runs a composition synchronously and returns the finished
// execution record. A step failure is reported through the record's status,
// not through the error return; the error covers infrastructure problems
// (unknown composition, storage failures).
func (e *Engine) Execute(ctx context.Context, compositionID, accountID string, input map[string]any) (*models.Execution, error) {
	composition, execution, err := e.prepare(ctx, compositionID, accountID, input)
	if err != nil {
		return nil, err
	}

	if err := e.run(ctx, composition, execution); err != nil {
		return execution, err
	}

	return execution, nil
}

// ExecuteAsync creates the pending execution record and returns it
// immediately; the run continues on a background goroutine and callers poll
// the record for progress.
func (e *Engine) ExecuteAsync(ctx context.Context, compositionID, accountID string, input map[string]any) (*models.Execution, error) {
	composition, execution, err := e.prepare(ctx, compositionID, accountID, input)
	if err != nil {
		return nil, err
	}

	snapshot := snapshotOf(execution)

	// The run must outlive the caller's request context.
	runCtx := context.WithoutCancel(ctx)

	go func() {
		if err := e.run(runCtx, composition, execution); err != nil {
			e.logger.Error("Background execution failed",
				"execution_id", execution.ID, "error", err)
		}
	}()

	return snapshot, nil
}

// Request creates the pending execution record and publishes an
// execution.requested event for a worker to pick up. Used when the API and
// the workers are separate processes.
func (e *Engine) Request(ctx context.Context, compositionID, accountID string, input map[string]any) (*models.Execution, error) {
	_, execution, err := e.prepare(ctx, compositionID, accountID, input)
	if err != nil {
		return nil, err
	}

	event := events.ExecutionRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionRequestedEvent, compositionID),
		ExecutionID: execution.ID,
		AccountID:   accountID,
		Input:       input,
	}
	event.WorkerID = e.workerID

	if err := e.eventBus.Publish(ctx, execution.ID, event); err != nil {
		return nil, fmt.Errorf("failed to publish execution request: %w", err)
	}

	return execution, nil
}

// Run picks up a previously requested execution and drives it to a terminal
// status. Executions that already left pending state are ignored, so
// redelivered events are harmless.
func (e *Engine) Run(ctx context.Context, executionID string) error {
	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return persistence.NewExecutionError("engine.run", executionID, err)
	}

	if execution == nil {
		return services.ErrExecutionNotFound
	}

	if execution.Status != models.ExecutionStatusPending {
		e.logger.Debug("Skipping execution not in pending state",
			"execution_id", executionID, "status", execution.Status)

		return nil
	}

	composition, err := e.loadComposition(ctx, execution.CompositionID)
	if err != nil {
		return err
	}

	return e.run(ctx, composition, execution)
}

// errCancelledElsewhere marks a run whose stored record was cancelled by
// another process; the local run stops without overwriting the terminal
// status.
var errCancelledElsewhere = errors.New("execution cancelled in store")

// Cancel requests cooperative cancellation. Terminal executions are
// rejected; a pending record with no local run is marked cancelled directly.
// A run owned by another process observes the stored cancelled status at its
// next step boundary.
func (e *Engine) Cancel(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("engine.cancel", executionID, err)
	}

	if execution == nil {
		return nil, services.ErrExecutionNotFound
	}

	if execution.Status.Terminal() {
		return nil, services.ErrExecutionTerminal
	}

	e.mu.Lock()
	cancel, running := e.inflight[executionID]
	e.mu.Unlock()

	if running {
		// The run loop observes the cancellation at the next step boundary
		// and persists the cancelled status itself.
		cancel()

		return execution, nil
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCancelled
	execution.FinishedAt = &now

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, persistence.NewExecutionError("engine.cancel", executionID, err)
	}

	e.publish(ctx, execution.ID, events.ExecutionCancelled{
		BaseEvent:   e.baseEvent(events.ExecutionCancelledEvent, execution.CompositionID),
		ExecutionID: execution.ID,
	})

	return execution, nil
}

// Close cancels every in-flight run. The runs persist their cancelled
// status before their goroutines exit.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cancel := range e.inflight {
		cancel()
	}
}

// prepare loads and validates the composition and persists the initial
// pending record with one pending result per step. Nothing is written when
// the composition is unknown or its step graph is unsound.
func (e *Engine) prepare(ctx context.Context, compositionID, accountID string, input map[string]any) (*models.Composition, *models.Execution, error) {
	composition, err := e.loadComposition(ctx, compositionID)
	if err != nil {
		return nil, nil, err
	}

	if err := mapping.ValidateSteps(composition.Steps); err != nil {
		return nil, nil, err
	}

	execution := &models.Execution{
		ID:            uuid.New().String(),
		CompositionID: composition.ID,
		AccountID:     accountID,
		Status:        models.ExecutionStatusPending,
		Input:         input,
		CreatedAt:     time.Now().UTC(),
	}

	for _, step := range composition.OrderedSteps() {
		execution.StepResults = append(execution.StepResults, &models.StepResult{
			StepID: step.ID,
			Status: models.StepStatusPending,
		})
	}

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, nil, persistence.NewExecutionError("engine.prepare", execution.ID, err)
	}

	return composition, execution, nil
}

func (e *Engine) loadComposition(ctx context.Context, compositionID string) (*models.Composition, error) {
	composition, err := e.persistence.CompositionRepository().GetByID(ctx, compositionID)
	if err != nil {
		return nil, persistence.NewCompositionError("engine.load", compositionID, err)
	}

	if composition == nil {
		return nil, services.ErrCompositionNotFound
	}

	return composition, nil
}

// run drives an execution to a terminal status. The returned error reports
// storage failures only; step failures terminate the run through the record.
func (e *Engine) run(ctx context.Context, composition *models.Composition, execution *models.Execution) error {
	start := time.Now()

	logger := e.logger.With(
		"composition_id", composition.ID,
		"execution_id", execution.ID,
	)

	runCtx, cancel := context.WithCancel(ctx)
	e.track(execution.ID, cancel)

	defer func() {
		e.untrack(execution.ID)
		cancel()
	}()

	spanCtx, span := otelhelper.StartSpan(runCtx, e.tracer, "engine.execute",
		attribute.String(otelhelper.CompositionIDKey, composition.ID),
		attribute.String(otelhelper.CompositionNameKey, composition.Name),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.AccountIDKey, execution.AccountID),
	)
	defer span.End()

	// Cancellation is observed at step boundaries: the local run context for
	// runs owned here, the stored status for runs cancelled from another
	// process.
	interrupted := func() bool {
		return runCtx.Err() != nil || e.storeCancelled(ctx, execution.ID)
	}

	logger.Info("Starting execution", "steps", len(execution.StepResults))

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusRunning
	execution.StartedAt = &now

	if err := e.save(spanCtx, execution); err != nil {
		if errors.Is(err, errCancelledElsewhere) {
			return e.finishCancelled(ctx, execution, start, logger)
		}

		return err
	}

	e.publish(spanCtx, execution.ID, events.ExecutionStarted{
		BaseEvent:   e.baseEvent(events.ExecutionStartedEvent, composition.ID),
		ExecutionID: execution.ID,
		AccountID:   execution.AccountID,
	})

	stepOutputs := make(map[string]map[string]any, len(execution.StepResults))

	for _, step := range composition.OrderedSteps() {
		// A step already dispatched runs to completion of its interrupt; no
		// new step is dispatched past this point.
		if interrupted() {
			return e.finishCancelled(ctx, execution, start, logger)
		}

		failure := e.runStep(spanCtx, runCtx, execution, step, stepOutputs, logger)
		if failure != nil {
			if runCtx.Err() != nil || errors.Is(failure, errCancelledElsewhere) {
				return e.finishCancelled(ctx, execution, start, logger)
			}

			return e.finishFailed(spanCtx, execution, step.ID, failure, start, logger)
		}
	}

	if interrupted() {
		return e.finishCancelled(ctx, execution, start, logger)
	}

	output, err := composeOutput(composition, execution.Input, stepOutputs)
	if err != nil {
		return e.finishFailed(spanCtx, execution, "", err, start, logger)
	}

	finished := time.Now().UTC()
	execution.Status = models.ExecutionStatusSucceeded
	execution.Output = output
	execution.FinishedAt = &finished

	if err := e.save(spanCtx, execution); err != nil {
		if errors.Is(err, errCancelledElsewhere) {
			execution.Output = nil

			return e.finishCancelled(ctx, execution, start, logger)
		}

		return err
	}

	e.publish(spanCtx, execution.ID, events.ExecutionCompleted{
		BaseEvent:   e.baseEvent(events.ExecutionCompletedEvent, composition.ID),
		ExecutionID: execution.ID,
		Output:      output,
		Duration:    time.Since(start),
	})

	logger.Info("Execution succeeded", "duration", time.Since(start))

	return nil
}

// runStep executes one step and records its outcome. A nil return means the
// step succeeded; otherwise the returned error is the step's failure.
func (e *Engine) runStep(
	ctx context.Context,
	runCtx context.Context,
	execution *models.Execution,
	step *models.CompositionStep,
	stepOutputs map[string]map[string]any,
	logger *slog.Logger,
) error {
	result := execution.StepResult(step.ID)

	stepCtx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.step",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepNameKey, step.Name),
		attribute.String(otelhelper.FunctionIDKey, step.FunctionID),
	)
	defer span.End()

	resolved, err := mapping.Resolve(step.InputMapping, execution.Input, stepOutputs)
	if err != nil {
		otelhelper.SetError(span, err)
		markStepFailed(result, err)

		return err
	}

	if err := validateStepInput(step, resolved); err != nil {
		otelhelper.SetError(span, err)
		markStepFailed(result, err)

		return err
	}

	started := time.Now().UTC()
	result.Status = models.StepStatusRunning
	result.Input = resolved
	result.StartedAt = &started

	if err := e.save(stepCtx, execution); err != nil {
		if errors.Is(err, errCancelledElsewhere) {
			// Never dispatched; the step keeps its pending status in the
			// cancelled record.
			result.Status = models.StepStatusPending
			result.Input = nil
			result.StartedAt = nil

			return err
		}

		markStepFailed(result, err)

		return err
	}

	logger.Info("Running step", "step_id", step.ID, "function_id", step.FunctionID)

	invokeCtx := runCtx
	if step.TimeoutSeconds > 0 {
		var cancel context.CancelFunc

		invokeCtx, cancel = context.WithTimeout(runCtx, time.Duration(step.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	invocation, invokeErr := e.invoker.Invoke(invokeCtx, step.FunctionID, resolved)

	finished := time.Now().UTC()
	result.FinishedAt = &finished

	if invocation != nil {
		result.Logs = invocation.Logs
	}

	if invokeErr != nil {
		if runCtx.Err() != nil && errors.Is(invokeErr, context.Canceled) {
			result.Status = models.StepStatusCancelled

			return invokeErr
		}

		failure := &InvocationError{StepID: step.ID, FunctionID: step.FunctionID, Err: invokeErr}
		otelhelper.SetError(span, failure)
		markStepFailed(result, failure)

		e.publish(stepCtx, execution.ID, events.StepFailed{
			BaseEvent:   e.baseEvent(events.StepFailedEvent, execution.CompositionID),
			ExecutionID: execution.ID,
			StepID:      step.ID,
			Error:       failure.Error(),
			Duration:    finished.Sub(started),
		})

		return failure
	}

	result.Status = models.StepStatusSucceeded
	result.Output = invocation.Output
	stepOutputs[step.ID] = invocation.Output

	if err := e.save(stepCtx, execution); err != nil {
		return err
	}

	e.publish(stepCtx, execution.ID, events.StepFinished{
		BaseEvent:   e.baseEvent(events.StepFinishedEvent, execution.CompositionID),
		ExecutionID: execution.ID,
		StepID:      step.ID,
		Output:      invocation.Output,
		Duration:    finished.Sub(started),
	})

	return nil
}

// finishFailed marks the failing run: remaining pending steps become
// skipped, the execution keeps the failing step's error detail.
func (e *Engine) finishFailed(
	ctx context.Context,
	execution *models.Execution,
	stepID string,
	failure error,
	start time.Time,
	logger *slog.Logger,
) error {
	for _, result := range execution.StepResults {
		if result.Status == models.StepStatusPending {
			result.Status = models.StepStatusSkipped
		}
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.Error = failure.Error()
	execution.FinishedAt = &now

	if err := e.save(ctx, execution); err != nil {
		if errors.Is(err, errCancelledElsewhere) {
			return e.finishCancelled(ctx, execution, start, logger)
		}

		return err
	}

	e.publish(ctx, execution.ID, events.ExecutionFailed{
		BaseEvent:   e.baseEvent(events.ExecutionFailedEvent, execution.CompositionID),
		ExecutionID: execution.ID,
		StepID:      stepID,
		Error:       failure.Error(),
		Duration:    time.Since(start),
	})

	logger.Warn("Execution failed", "step_id", stepID, "error", failure)

	return nil
}

// finishCancelled records the cancelled terminal status. Steps that never
// ran keep their pending status; completed results are preserved untouched.
func (e *Engine) finishCancelled(
	ctx context.Context,
	execution *models.Execution,
	start time.Time,
	logger *slog.Logger,
) error {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCancelled
	execution.FinishedAt = &now

	// The run context is already cancelled; persist with the parent.
	if err := e.save(context.WithoutCancel(ctx), execution); err != nil {
		return err
	}

	e.publish(context.WithoutCancel(ctx), execution.ID, events.ExecutionCancelled{
		BaseEvent:   e.baseEvent(events.ExecutionCancelledEvent, execution.CompositionID),
		ExecutionID: execution.ID,
		Duration:    time.Since(start),
	})

	logger.Info("Execution cancelled", "duration", time.Since(start))

	return nil
}

// save persists the whole execution record; readers always observe a
// complete snapshot. Terminal statuses are absorbing: a cancel persisted by
// another process is never overwritten, the run stops instead.
func (e *Engine) save(ctx context.Context, execution *models.Execution) error {
	if execution.Status != models.ExecutionStatusCancelled && e.storeCancelled(ctx, execution.ID) {
		return errCancelledElsewhere
	}

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		e.logger.Error("Failed to persist execution",
			"execution_id", execution.ID, "error", err)

		return persistence.NewExecutionError("engine.save", execution.ID, err)
	}

	return nil
}

// storeCancelled reports whether another process already marked the stored
// record cancelled. Read failures are answered pessimistically with false;
// the following save surfaces them.
func (e *Engine) storeCancelled(ctx context.Context, executionID string) bool {
	stored, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil || stored == nil {
		return false
	}

	return stored.Status == models.ExecutionStatusCancelled
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	if err := e.eventBus.Publish(ctx, key, event); err != nil {
		e.logger.Warn("Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}

func (e *Engine) baseEvent(eventType events.EventType, compositionID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, compositionID)
	base.WorkerID = e.workerID

	return base
}

func (e *Engine) track(executionID string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inflight[executionID] = cancel
}

func (e *Engine) untrack(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.inflight, executionID)
}

func markStepFailed(result *models.StepResult, err error) {
	now := time.Now().UTC()
	result.Status = models.StepStatusFailed
	result.Error = err.Error()

	if result.FinishedAt == nil {
		result.FinishedAt = &now
	}
}

// composeOutput builds the execution output: the fields selected by the
// composition's output mapping, or the last step's output when no mapping is
// declared.
func composeOutput(
	composition *models.Composition,
	runInput map[string]any,
	stepOutputs map[string]map[string]any,
) (map[string]any, error) {
	steps := composition.OrderedSteps()

	if len(composition.OutputMapping) > 0 {
		output, err := mapping.Resolve(composition.OutputMapping, runInput, stepOutputs)
		if err != nil {
			return nil, fmt.Errorf("failed to compose output: %w", err)
		}

		return output, nil
	}

	if len(steps) == 0 {
		return nil, nil
	}

	return stepOutputs[steps[len(steps)-1].ID], nil
}

// validateStepInput checks the resolved input against the step's declared
// input schema, when one is present.
func validateStepInput(step *models.CompositionStep, input map[string]any) error {
	if step.InputSchema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(step.InputSchema),
		gojsonschema.NewGoLoader(input),
	)
	if err != nil {
		return fmt.Errorf("failed to validate step input: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		violations = append(violations, violation.String())
	}

	return &InputValidationError{StepID: step.ID, Violations: violations}
}

func snapshotOf(execution *models.Execution) *models.Execution {
	snapshot := *execution
	snapshot.StepResults = make([]*models.StepResult, len(execution.StepResults))

	for i, result := range execution.StepResults {
		copied := *result
		snapshot.StepResults[i] = &copied
	}

	return &snapshot
}
