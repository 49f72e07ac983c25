package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/stepflow/stepflow/pkg/models"
)

const schedulesDir = "schedules"

// ScheduleRepository handles schedule file operations.
type ScheduleRepository struct {
	root string
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(root string) *ScheduleRepository {
	return &ScheduleRepository{root: root}
}

// Save writes the schedule, overwriting any previous version.
func (sr *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	if err := validateRecordID(schedule.ID); err != nil {
		return fmt.Errorf("invalid schedule ID %q: %w", schedule.ID, err)
	}

	dir := filepath.Join(sr.root, schedulesDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create schedules directory: %w", err)
	}

	data, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule %s: %w", schedule.ID, err)
	}

	path := filepath.Join(dir, schedule.ID+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write schedule %s: %w", schedule.ID, err)
	}

	return nil
}

// GetByID reads a schedule by ID. Returns (nil, nil) when absent.
func (sr *ScheduleRepository) GetByID(_ context.Context, id string) (*models.Schedule, error) {
	if err := validateRecordID(id); err != nil {
		return nil, fmt.Errorf("invalid schedule ID %q: %w", id, err)
	}

	path := filepath.Join(sr.root, schedulesDir, id+".json")

	data, err := os.ReadFile(path) // #nosec G304 -- id is validated against traversal
	if err != nil {
		if os.IsNotExist(err) {
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
	dir := filepath.Join(sr.root, schedulesDir)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.Schedule{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule files: %w", err)
	}

	schedules := make([]*models.Schedule, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := strings.TrimSuffix(file, ".json")

		schedule, err := sr.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load schedule %s: %w", id, err)
		}

		if schedule != nil {
			schedules = append(schedules, schedule)
		}
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
func (sr *ScheduleRepository) Delete(_ context.Context, id string) error {
	if err := validateRecordID(id); err != nil {
		return fmt.Errorf("invalid schedule ID %q: %w", id, err)
	}

	path := filepath.Join(sr.root, schedulesDir, id+".json")

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}

	return nil
}
