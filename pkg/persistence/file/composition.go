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

const compositionsDir = "compositions"

// CompositionRepository handles composition file operations.
type CompositionRepository struct {
	root string
}

// NewCompositionRepository creates a new composition repository.
func NewCompositionRepository(root string) *CompositionRepository {
	return &CompositionRepository{root: root}
}

// Save writes the composition as a JSON document, overwriting any previous
// version. The whole aggregate (steps included) is stored in one file, so
// step mutations are naturally atomic read-modify-write on the parent.
func (cr *CompositionRepository) Save(_ context.Context, composition *models.Composition) error {
	if err := validateRecordID(composition.ID); err != nil {
		return fmt.Errorf("invalid composition ID %q: %w", composition.ID, err)
	}

	dir := filepath.Join(cr.root, compositionsDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create compositions directory: %w", err)
	}

	data, err := json.Marshal(composition)
	if err != nil {
		return fmt.Errorf("failed to marshal composition %s: %w", composition.ID, err)
	}

	path := filepath.Join(dir, composition.ID+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write composition %s: %w", composition.ID, err)
	}

	return nil
}

// GetByID reads a composition by ID. Returns (nil, nil) when absent.
func (cr *CompositionRepository) GetByID(_ context.Context, id string) (*models.Composition, error) {
	if err := validateRecordID(id); err != nil {
		return nil, fmt.Errorf("invalid composition ID %q: %w", id, err)
	}

	path := filepath.Join(cr.root, compositionsDir, id+".json")

	data, err := os.ReadFile(path) // #nosec G304 -- id is validated against traversal
	if err != nil {
		if os.IsNotExist(err) {
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

// GetAll loads every stored composition in stable file order.
func (cr *CompositionRepository) GetAll(ctx context.Context) ([]*models.Composition, error) {
	dir := filepath.Join(cr.root, compositionsDir)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.Composition{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list composition files: %w", err)
	}

	compositions := make([]*models.Composition, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := strings.TrimSuffix(file, ".json")

		composition, err := cr.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load composition %s: %w", id, err)
		}

		if composition != nil {
			compositions = append(compositions, composition)
		}
	}

	return compositions, nil
}

// ListByAccount returns the compositions owned by the given account.
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

// ListByFunctionID returns compositions with at least one step targeting the
// given function.
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

// Delete removes a composition document. Executions are left in place; their
// cleanup policy belongs to the caller.
func (cr *CompositionRepository) Delete(_ context.Context, id string) error {
	if err := validateRecordID(id); err != nil {
		return fmt.Errorf("invalid composition ID %q: %w", id, err)
	}

	path := filepath.Join(cr.root, compositionsDir, id+".json")

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}

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
