package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stepflow/stepflow/pkg/models"
)

// CompositionRepository stores compositions as JSON values in a Redis hash.
type CompositionRepository struct {
	client *goredis.Client
}

// Save stores the composition, overwriting any previous version.
func (cr *CompositionRepository) Save(ctx context.Context, composition *models.Composition) error {
	data, err := json.Marshal(composition)
	if err != nil {
		return fmt.Errorf("failed to marshal composition %s: %w", composition.ID, err)
	}

	if err := cr.client.HSet(ctx, compositionsKey, composition.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to store composition %s: %w", composition.ID, err)
	}

	return nil
}

// GetByID loads a composition. Returns (nil, nil) when absent.
func (cr *CompositionRepository) GetByID(ctx context.Context, id string) (*models.Composition, error) {
	data, err := cr.client.HGet(ctx, compositionsKey, id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read composition %s: %w", id, err)
	}

	var composition models.Composition
	if err := json.Unmarshal(data, &composition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal composition %s: %w", id, err)
	}

	return &composition, nil
}

// GetAll loads every stored composition.
func (cr *CompositionRepository) GetAll(ctx context.Context) ([]*models.Composition, error) {
	values, err := cr.client.HGetAll(ctx, compositionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list compositions: %w", err)
	}

	compositions := make([]*models.Composition, 0, len(values))

	for id, raw := range values {
		var composition models.Composition
		if err := json.Unmarshal([]byte(raw), &composition); err != nil {
			return nil, fmt.Errorf("failed to unmarshal composition %s: %w", id, err)
		}

		compositions = append(compositions, &composition)
	}

	return compositions, nil
}

// ListByAccount returns compositions owned by the given account.
func (cr *CompositionRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Composition, error) {
	return cr.filter(ctx, func(c *models.Composition) bool {
		return c.AccountID == accountID
	})
}

// ListByTags returns compositions carrying at least one of the given tags.
func (cr *CompositionRepository) ListByTags(ctx context.Context, tags []string) ([]*models.Composition, error) {
	return cr.filter(ctx, func(c *models.Composition) bool {
		for _, tag := range tags {
			if c.HasTag(tag) {
				return true
			}
		}

		return false
	})
}

// ListByFunctionID returns compositions with a step targeting the function.
func (cr *CompositionRepository) ListByFunctionID(ctx context.Context, functionID string) ([]*models.Composition, error) {
	return cr.filter(ctx, func(c *models.Composition) bool {
		for _, step := range c.Steps {
			if step.FunctionID == functionID {
				return true
			}
		}

		return false
	})
}

// Delete removes a composition.
func (cr *CompositionRepository) Delete(ctx context.Context, id string) error {
	if err := cr.client.HDel(ctx, compositionsKey, id).Err(); err != nil {
		return fmt.Errorf("failed to delete composition %s: %w", id, err)
	}

	return nil
}

func (cr *CompositionRepository) filter(ctx context.Context, keep func(*models.Composition) bool) ([]*models.Composition, error) {
	all, err := cr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Composition, 0)

	for _, composition := range all {
		if keep(composition) {
			matched = append(matched, composition)
		}
	}

	return matched, nil
}
