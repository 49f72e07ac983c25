// Package main provides the Stepflow execution worker.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/trace"

	"github.com/stepflow/stepflow/pkg/engine"
	"github.com/stepflow/stepflow/pkg/eventbus"
	"github.com/stepflow/stepflow/pkg/events"
	"github.com/stepflow/stepflow/pkg/invoker"
	"github.com/stepflow/stepflow/pkg/persistence"
	"github.com/stepflow/stepflow/pkg/schedule"
)

// Worker consumes execution requests from the event bus and drives the
// engine. Optionally it also fires stored schedules.
type Worker struct {
	id           string
	logger       *slog.Logger
	persistence  persistence.Persistence
	eventBus     eventbus.EventBus
	engine       *engine.Engine
	scheduler    *schedule.Runner
	runSchedules bool
}

func NewWorker(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	inv invoker.Invoker,
	tracer trace.Tracer,
	logger *slog.Logger,
	runSchedules bool,
) *Worker {
	eng := engine.NewEngine(persistence, inv, eventBus, tracer, id, logger)

	return &Worker{
		id:           id,
		logger:       logger.With("module", "stepflow-worker"),
		persistence:  persistence,
		eventBus:     eventBus,
		engine:       eng,
		scheduler:    schedule.NewRunner(persistence, eng, logger),
		runSchedules: runSchedules,
	}
}

// Start subscribes to execution requests and blocks until SIGINT or SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker", "worker_id", w.id)

	if err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if w.runSchedules {
		if err := w.scheduler.Start(ctx); err != nil {
			return err
		}

		defer w.scheduler.Stop()
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")
	w.engine.Close()

	return nil
}

func (w *Worker) handleExecutionRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested")

		return nil
	}

	logger := w.logger.With(
		"composition_id", requested.CompositionID,
		"execution_id", requested.ExecutionID,
		"event_id", requested.ID,
	)
	logger.InfoContext(ctx, "Processing execution request")

	if err := w.engine.Run(ctx, requested.ExecutionID); err != nil {
		logger.ErrorContext(ctx, "Failed to run execution", "error", err)

		return err
	}

	return nil
}
