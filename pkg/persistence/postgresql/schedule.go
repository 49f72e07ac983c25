package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stepflow/stepflow/pkg/models"
)

// ScheduleRepository handles schedule database operations.
type ScheduleRepository struct {
	db *sql.DB
}

// Save upserts the schedule document.
func (sr *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	document, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule %s: %w", schedule.ID, err)
	}

	query := `
		INSERT INTO schedules (id, composition_id, document)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			composition_id = EXCLUDED.composition_id,
			document       = EXCLUDED.document
	`

	if _, err := sr.db.ExecContext(ctx, query, schedule.ID, schedule.CompositionID, document); err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", schedule.ID, err)
	}

	return nil
}

// GetByID loads a schedule. Returns (nil, nil) when absent.
func (sr *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	var raw []byte

	err := sr.db.QueryRowContext(ctx, `SELECT document FROM schedules WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query schedule %s: %w", id, err)
	}

	var schedule models.Schedule
	if err := json.Unmarshal(raw, &schedule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule %s: %w", id, err)
	}

	return &schedule, nil
}

// GetAll returns every schedule.
func (sr *ScheduleRepository) GetAll(ctx context.Context) ([]*models.Schedule, error) {
	return sr.query(ctx, `SELECT document FROM schedules`)
}

// ListByComposition returns the schedules attached to a composition.
func (sr *ScheduleRepository) ListByComposition(ctx context.Context, compositionID string) ([]*models.Schedule, error) {
	return sr.query(ctx, `SELECT document FROM schedules WHERE composition_id = $1`, compositionID)
}

// Delete removes a schedule row.
func (sr *ScheduleRepository) Delete(ctx context.Context, id string) error {
	if _, err := sr.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}

	return nil
}

func (sr *ScheduleRepository) query(ctx context.Context, query string, args ...any) ([]*models.Schedule, error) {
	rows, err := sr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	schedules := make([]*models.Schedule, 0)

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		var schedule models.Schedule
		if err := json.Unmarshal(raw, &schedule); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schedule: %w", err)
		}

		schedules = append(schedules, &schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}
