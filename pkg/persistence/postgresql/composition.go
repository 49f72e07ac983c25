package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/stepflow/stepflow/pkg/models"
)

// CompositionRepository handles composition database operations.
type CompositionRepository struct {
	db *sql.DB
}

// Save upserts the whole composition document in one statement, which keeps
// step mutations atomic read-modify-write on the parent row.
func (cr *CompositionRepository) Save(ctx context.Context, composition *models.Composition) error {
	document, err := json.Marshal(composition)
	if err != nil {
		return fmt.Errorf("failed to marshal composition %s: %w", composition.ID, err)
	}

	query := `
		INSERT INTO compositions (id, account_id, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			document   = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`

	_, err = cr.db.ExecContext(ctx, query,
		composition.ID, composition.AccountID, document,
		composition.CreatedAt, composition.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save composition %s: %w", composition.ID, err)
	}

	return nil
}

// GetByID loads a composition. Returns (nil, nil) when absent.
func (cr *CompositionRepository) GetByID(ctx context.Context, id string) (*models.Composition, error) {
	query := `SELECT document FROM compositions WHERE id = $1`

	var raw []byte

	err := cr.db.QueryRowContext(ctx, query, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query composition %s: %w", id, err)
	}

	var composition models.Composition
	if err := json.Unmarshal(raw, &composition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal composition %s: %w", id, err)
	}

	return &composition, nil
}

// GetAll returns all compositions ordered by creation time.
func (cr *CompositionRepository) GetAll(ctx context.Context) ([]*models.Composition, error) {
	return cr.query(ctx, `SELECT document FROM compositions ORDER BY created_at DESC`)
}

// ListByAccount returns compositions owned by the given account.
func (cr *CompositionRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Composition, error) {
	return cr.query(ctx,
		`SELECT document FROM compositions WHERE account_id = $1 ORDER BY created_at DESC`,
		accountID)
}

// ListByTags returns compositions carrying at least one of the given tags.
func (cr *CompositionRepository) ListByTags(ctx context.Context, tags []string) ([]*models.Composition, error) {
	query := `
		SELECT document FROM compositions
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(COALESCE(document -> 'tags', '[]'::jsonb)) AS tag
			WHERE tag = ANY($1)
		)
		ORDER BY created_at DESC
	`

	return cr.query(ctx, query, pq.Array(tags))
}

// ListByFunctionID returns compositions with a step targeting the function.
func (cr *CompositionRepository) ListByFunctionID(ctx context.Context, functionID string) ([]*models.Composition, error) {
	query := `
		SELECT document FROM compositions
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(COALESCE(document -> 'steps', '[]'::jsonb)) AS step
			WHERE step ->> 'function_id' = $1
		)
		ORDER BY created_at DESC
	`

	return cr.query(ctx, query, functionID)
}

// Delete removes a composition row.
func (cr *CompositionRepository) Delete(ctx context.Context, id string) error {
	if _, err := cr.db.ExecContext(ctx, `DELETE FROM compositions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete composition %s: %w", id, err)
	}

	return nil
}

func (cr *CompositionRepository) query(ctx context.Context, query string, args ...any) ([]*models.Composition, error) {
	rows, err := cr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query compositions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	compositions := make([]*models.Composition, 0)

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan composition: %w", err)
		}

		var composition models.Composition
		if err := json.Unmarshal(raw, &composition); err != nil {
			return nil, fmt.Errorf("failed to unmarshal composition: %w", err)
		}

		compositions = append(compositions, &composition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating compositions: %w", err)
	}

	return compositions, nil
}
