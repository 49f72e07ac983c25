// Package schedule drives recurring composition executions from stored cron
// schedules.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/stepflow/stepflow/pkg/engine"
	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/persistence"
)

// Runner registers every enabled schedule with a cron scheduler and starts an
// execution each time one fires. Reload picks up schedule changes without a
// restart.
type Runner struct {
	persistence persistence.Persistence
	engine      *engine.Engine
	logger      *slog.Logger

	mutex sync.Mutex
	cron  *cron.Cron
	jobs  map[string]cron.EntryID
}

// NewRunner creates a schedule runner.
func NewRunner(persistence persistence.Persistence, eng *engine.Engine, logger *slog.Logger) *Runner {
	return &Runner{
		persistence: persistence,
		engine:      eng,
		logger:      logger.With("module", "schedule_runner"),
		jobs:        make(map[string]cron.EntryID),
	}
}

// Start loads the stored schedules and begins firing them.
func (r *Runner) Start(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if err := r.registerAll(ctx); err != nil {
		return err
	}

	r.cron.Start()
	r.logger.Info("Schedule runner started", "jobs", len(r.jobs))

	return nil
}

// Reload re-reads the stored schedules and replaces the registered jobs.
func (r *Runner) Reload(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.cron == nil {
		return nil
	}

	for scheduleID, entryID := range r.jobs {
		r.cron.Remove(entryID)
		delete(r.jobs, scheduleID)
	}

	return r.registerAll(ctx)
}

// Stop halts the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.cron == nil {
		return
	}

	<-r.cron.Stop().Done()
	r.logger.Info("Schedule runner stopped")
}

func (r *Runner) registerAll(ctx context.Context) error {
	schedules, err := r.persistence.ScheduleRepository().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	for _, schedule := range schedules {
		if !schedule.Enabled {
			continue
		}

		if err := r.register(schedule); err != nil {
			r.logger.Error("Failed to register schedule",
				"schedule_id", schedule.ID, "error", err)

			return err
		}
	}

	return nil
}

func (r *Runner) register(schedule *models.Schedule) error {
	entryID, err := r.cron.AddFunc(schedule.CronExpression, r.jobFor(schedule))
	if err != nil {
		return fmt.Errorf("failed to add cron job for schedule %q: %w", schedule.ID, err)
	}

	r.jobs[schedule.ID] = entryID
	r.logger.Debug("Registered schedule",
		"schedule_id", schedule.ID, "cron", schedule.CronExpression)

	return nil
}

func (r *Runner) jobFor(schedule *models.Schedule) func() {
	logger := r.logger.With(
		"schedule_id", schedule.ID,
		"composition_id", schedule.CompositionID,
	)

	return func() {
		execution, err := r.engine.ExecuteAsync(
			context.Background(), schedule.CompositionID, schedule.AccountID, schedule.Input)
		if err != nil {
			logger.Error("Failed to start scheduled execution", "error", err)

			return
		}

		logger.Info("Started scheduled execution", "execution_id", execution.ID)
	}
}
