package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/persistence"
)

// Schedules manages recurring execution schedules for compositions.
type Schedules struct {
	persistence persistence.Persistence
}

// NewSchedules creates a new schedule service.
func NewSchedules(persistence persistence.Persistence) *Schedules {
	return &Schedules{persistence: persistence}
}

// CreateScheduleRequest carries the data to register a recurring run.
type CreateScheduleRequest struct {
	CompositionID  string         `json:"composition_id" validate:"required"`
	AccountID      string         `json:"account_id"     validate:"required"`
	CronExpression string         `json:"cron_expression" validate:"required"`
	Input          map[string]any `json:"input,omitempty"`
	Enabled        *bool          `json:"enabled,omitempty"`
}

// Create registers a schedule after validating the cron expression and the
// target composition.
func (s *Schedules) Create(ctx context.Context, req CreateScheduleRequest) (*models.Schedule, error) {
	if req.AccountID == "" {
		return nil, ErrEmptyAccountID
	}

	if _, err := cron.ParseStandard(req.CronExpression); err != nil {
		return nil, NewValidationError("schedules.create", "invalid_cron",
			fmt.Sprintf("invalid cron expression %q: %v", req.CronExpression, err), ErrInvalidRequest)
	}

	composition, err := s.persistence.CompositionRepository().GetByID(ctx, req.CompositionID)
	if err != nil {
		return nil, persistence.NewCompositionError("schedules.create", req.CompositionID, err)
	}

	if composition == nil {
		return nil, ErrCompositionNotFound
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now().UTC()
	schedule := &models.Schedule{
		ID:             uuid.New().String(),
		CompositionID:  req.CompositionID,
		AccountID:      req.AccountID,
		CronExpression: req.CronExpression,
		Input:          req.Input,
		Enabled:        enabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}

	return schedule, nil
}

// FetchByID returns the schedule or ErrScheduleNotFound.
func (s *Schedules) FetchByID(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.persistence.ScheduleRepository().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schedule %q: %w", id, err)
	}

	if schedule == nil {
		return nil, ErrScheduleNotFound
	}

	return schedule, nil
}

// ListByComposition returns every schedule registered for a composition.
func (s *Schedules) ListByComposition(ctx context.Context, compositionID string) ([]*models.Schedule, error) {
	schedules, err := s.persistence.ScheduleRepository().ListByComposition(ctx, compositionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	return schedules, nil
}

// SetEnabled flips a schedule's enabled flag.
func (s *Schedules) SetEnabled(ctx context.Context, id string, enabled bool) (*models.Schedule, error) {
	schedule, err := s.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	schedule.Enabled = enabled
	schedule.UpdatedAt = time.Now().UTC()

	if err := s.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save schedule %q: %w", id, err)
	}

	return schedule, nil
}

// Delete removes a schedule. Deleting an unknown ID returns
// ErrScheduleNotFound.
func (s *Schedules) Delete(ctx context.Context, id string) error {
	if _, err := s.FetchByID(ctx, id); err != nil {
		return err
	}

	if err := s.persistence.ScheduleRepository().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	return nil
}
