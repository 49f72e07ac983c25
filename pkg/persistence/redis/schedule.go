package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stepflow/stepflow/pkg/models"
)

// ScheduleRepository stores schedules as JSON values in a Redis hash.
type ScheduleRepository struct {
	client *goredis.Client
}

// Save stores the schedule, overwriting any previous version.
func (sr *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	data, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule %s: %w", schedule.ID, err)
	}

	if err := sr.client.HSet(ctx, schedulesKey, schedule.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to store schedule %s: %w", schedule.ID, err)
	}

	return nil
}

// GetByID loads a schedule. Returns (nil, nil) when absent.
func (sr *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	data, err := sr.client.HGet(ctx, schedulesKey, id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read schedule %s: %w", id, err)
	}

	var schedule models.Schedule
	if err := json.Unmarshal(data, &schedule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule %s: %w", id, err)
	}

	return &schedule, nil
}

// GetAll loads every stored schedule.
func (sr *ScheduleRepository) GetAll(ctx context.Context) ([]*models.Schedule, error) {
	values, err := sr.client.HGetAll(ctx, schedulesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	schedules := make([]*models.Schedule, 0, len(values))

	for id, raw := range values {
		var schedule models.Schedule
		if err := json.Unmarshal([]byte(raw), &schedule); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schedule %s: %w", id, err)
		}

		schedules = append(schedules, &schedule)
	}

	return schedules, nil
}

// ListByComposition returns the schedules attached to a composition.
func (sr *ScheduleRepository) ListByComposition(ctx context.Context, compositionID string) ([]*models.Schedule, error) {
	all, err := sr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Schedule, 0)

	for _, schedule := range all {
		if schedule.CompositionID == compositionID {
			matched = append(matched, schedule)
		}
	}

	return matched, nil
}

// Delete removes a schedule.
func (sr *ScheduleRepository) Delete(ctx context.Context, id string) error {
	if err := sr.client.HDel(ctx, schedulesKey, id).Err(); err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}

	return nil
}
