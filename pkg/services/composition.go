package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stepflow/stepflow/pkg/mapping"
	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/persistence"
)

// Composition handles composition-related business operations. Ownership
// checks against the caller's account happen in the calling layer; this
// service receives already-resolved account IDs.
type Composition struct {
	persistence persistence.Persistence
}

// NewComposition creates a new composition service.
func NewComposition(persistence persistence.Persistence) *Composition {
	return &Composition{persistence: persistence}
}

// HealthCheck checks the health of the persistence layer.
func (s *Composition) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates the step graph, assigns server-side fields and persists
// the composition. Validation failures happen before any write.
func (s *Composition) Create(ctx context.Context, composition *models.Composition) (*models.Composition, error) {
	if composition == nil {
		return nil, ErrCompositionNil
	}

	if err := mapping.ValidateSteps(composition.Steps); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	composition.ID = uuid.New().String()
	composition.CreatedAt = now
	composition.UpdatedAt = now

	for _, step := range composition.Steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}
	}

	if err := s.persistence.CompositionRepository().Save(ctx, composition); err != nil {
		return nil, fmt.Errorf("failed to create composition: %w", err)
	}

	return composition, nil
}

// FetchByID retrieves a composition by its ID.
func (s *Composition) FetchByID(ctx context.Context, id string) (*models.Composition, error) {
	composition, err := s.persistence.CompositionRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if composition == nil {
		return nil, ErrCompositionNotFound
	}

	return composition, nil
}

// ListByAccount returns the compositions owned by an account.
func (s *Composition) ListByAccount(ctx context.Context, accountID string) ([]*models.Composition, error) {
	if accountID == "" {
		return nil, ErrEmptyAccountID
	}

	return s.persistence.CompositionRepository().ListByAccount(ctx, accountID)
}

// ListByTags returns compositions carrying at least one of the given tags.
func (s *Composition) ListByTags(ctx context.Context, tags []string) ([]*models.Composition, error) {
	return s.persistence.CompositionRepository().ListByTags(ctx, tags)
}

// ListByFunctionID returns compositions referencing the given function.
func (s *Composition) ListByFunctionID(ctx context.Context, functionID string) ([]*models.Composition, error) {
	return s.persistence.CompositionRepository().ListByFunctionID(ctx, functionID)
}

// Update replaces an existing composition. The stored creation time and ID
// are preserved; the step graph is re-validated before the write.
func (s *Composition) Update(ctx context.Context, compositionID string, composition *models.Composition) (*models.Composition, error) {
	if composition == nil {
		return nil, ErrCompositionNil
	}

	existing, err := s.FetchByID(ctx, compositionID)
	if err != nil {
		return nil, err
	}

	if err := mapping.ValidateSteps(composition.Steps); err != nil {
		return nil, err
	}

	composition.ID = compositionID
	composition.AccountID = existing.AccountID
	composition.CreatedAt = existing.CreatedAt
	composition.CreatedBy = existing.CreatedBy
	composition.UpdatedAt = time.Now().UTC()

	if err := s.persistence.CompositionRepository().Save(ctx, composition); err != nil {
		return nil, fmt.Errorf("failed to update composition: %w", err)
	}

	return composition, nil
}

// Delete removes a composition by its ID. Executions of the composition are
// not deleted; their retention policy belongs to the caller.
func (s *Composition) Delete(ctx context.Context, compositionID string) error {
	if _, err := s.FetchByID(ctx, compositionID); err != nil {
		return err
	}

	if err := s.persistence.CompositionRepository().Delete(ctx, compositionID); err != nil {
		return fmt.Errorf("failed to delete composition: %w", err)
	}

	return nil
}

// AddStep appends a step to the composition. When no order is supplied the
// step lands at the end of the pipeline.
func (s *Composition) AddStep(ctx context.Context, compositionID string, step *models.CompositionStep) (*models.Composition, error) {
	composition, err := s.FetchByID(ctx, compositionID)
	if err != nil {
		return nil, err
	}

	if step.ID == "" {
		step.ID = uuid.New().String()
	}

	// A negative order appends the step at the end. An explicit order goes
	// through graph validation like any other; a position already taken is
	// rejected, not silently moved.
	if step.Order < 0 {
		step.Order = len(composition.Steps)
	}

	updated := append(composition.Steps, step)
	if err := mapping.ValidateSteps(updated); err != nil {
		return nil, err
	}

	composition.Steps = updated

	return s.saveSteps(ctx, composition)
}

// UpdateStep replaces the step with the given ID.
func (s *Composition) UpdateStep(ctx context.Context, compositionID string, step *models.CompositionStep) (*models.Composition, error) {
	composition, err := s.FetchByID(ctx, compositionID)
	if err != nil {
		return nil, err
	}

	replaced := false

	updated := make([]*models.CompositionStep, len(composition.Steps))
	for i, existing := range composition.Steps {
		if existing.ID == step.ID {
			updated[i] = step
			replaced = true
		} else {
			updated[i] = existing
		}
	}

	if !replaced {
		return nil, ErrStepNotFound
	}

	if err := mapping.ValidateSteps(updated); err != nil {
		return nil, err
	}

	composition.Steps = updated

	return s.saveSteps(ctx, composition)
}

// RemoveStep deletes a step and closes the gap in the order positions.
func (s *Composition) RemoveStep(ctx context.Context, compositionID, stepID string) (*models.Composition, error) {
	composition, err := s.FetchByID(ctx, compositionID)
	if err != nil {
		return nil, err
	}

	if composition.Step(stepID) == nil {
		return nil, ErrStepNotFound
	}

	remaining := make([]*models.CompositionStep, 0, len(composition.Steps)-1)
	for _, step := range composition.OrderedSteps() {
		if step.ID != stepID {
			remaining = append(remaining, step)
		}
	}

	for position, step := range remaining {
		step.Order = position
	}

	if err := mapping.ValidateSteps(remaining); err != nil {
		return nil, err
	}

	composition.Steps = remaining

	return s.saveSteps(ctx, composition)
}

// ReorderSteps rewrites the execution order to match the given ID sequence.
// The supplied set must name exactly the existing steps; on failure the
// stored order is left unchanged.
func (s *Composition) ReorderSteps(ctx context.Context, compositionID string, orderedStepIDs []string) (*models.Composition, error) {
	composition, err := s.FetchByID(ctx, compositionID)
	if err != nil {
		return nil, err
	}

	if len(orderedStepIDs) != len(composition.Steps) {
		return nil, ErrStepIDSetMismatch
	}

	seen := make(map[string]bool, len(orderedStepIDs))

	reordered := make([]*models.CompositionStep, 0, len(orderedStepIDs))
	for position, stepID := range orderedStepIDs {
		if seen[stepID] {
			return nil, fmt.Errorf("%w: duplicate step ID %q", ErrStepIDSetMismatch, stepID)
		}

		seen[stepID] = true

		step := composition.Step(stepID)
		if step == nil {
			return nil, fmt.Errorf("%w: unknown step ID %q", ErrStepIDSetMismatch, stepID)
		}

		step.Order = position
		reordered = append(reordered, step)
	}

	if err := mapping.ValidateSteps(reordered); err != nil {
		return nil, err
	}

	composition.Steps = reordered

	return s.saveSteps(ctx, composition)
}

func (s *Composition) saveSteps(ctx context.Context, composition *models.Composition) (*models.Composition, error) {
	composition.UpdatedAt = time.Now().UTC()

	if err := s.persistence.CompositionRepository().Save(ctx, composition); err != nil {
		return nil, fmt.Errorf("failed to save composition steps: %w", err)
	}

	return composition, nil
}
