package services

import (
	"context"
	"sort"
	"strings"

	"github.com/stepflow/stepflow/pkg/mapping"
	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/persistence"
)

// Schema derives input and output schema descriptions for compositions by
// static analysis over the stored step metadata. No function is ever invoked.
type Schema struct {
	persistence persistence.Persistence
}

// NewSchema creates a new schema inference service.
func NewSchema(persistence persistence.Persistence) *Schema {
	return &Schema{persistence: persistence}
}

// GenerateInputSchema derives the schema of the run's top-level input: every
// step-input field fed by an "input.<path>" reference contributes the path's
// top-level segment, and declared step-input fields without any mapping are
// expected in the run input under their own name. Deterministic for a given
// composition.
func (s *Schema) GenerateInputSchema(ctx context.Context, compositionID string) (*models.JSONSchema, error) {
	composition, err := s.load(ctx, compositionID)
	if err != nil {
		return nil, err
	}

	schema := models.EmptyObjectSchema()
	required := make(map[string]bool)

	for _, step := range composition.OrderedSteps() {
		declared := map[string]*models.Property{}

		var declaredRequired []string

		if step.InputSchema != nil {
			declared = step.InputSchema.Properties
			declaredRequired = step.InputSchema.Required
		}

		for field, property := range declared {
			refStr, mapped := step.InputMapping[field]
			if !mapped {
				// Unmapped declared fields come straight from the run input.
				addProperty(schema, field, property)

				if contains(declaredRequired, field) {
					required[field] = true
				}

				continue
			}

			ref, err := mapping.Parse(refStr)
			if err != nil {
				return nil, err
			}

			if !ref.IsInput() || ref.Path == "" {
				continue
			}

			segment := topSegment(ref.Path)
			addProperty(schema, segment, inputPropertyFor(ref.Path, property))

			if contains(declaredRequired, field) {
				required[segment] = true
			}
		}

		// Mappings without a declared schema still tell us which top-level
		// input fields the run needs.
		for field, refStr := range step.InputMapping {
			if _, hasSchema := declared[field]; hasSchema {
				continue
			}

			ref, err := mapping.Parse(refStr)
			if err != nil {
				return nil, err
			}

			if ref.IsInput() && ref.Path != "" {
				addProperty(schema, topSegment(ref.Path), nil)
			}
		}
	}

	for field := range required {
		schema.Required = append(schema.Required, field)
	}

	sort.Strings(schema.Required)

	return schema, nil
}

// GenerateOutputSchema derives the schema of a successful run's output: the
// last step's declared output schema, or the fields selected by the
// composition's output mapping when one is present.
func (s *Schema) GenerateOutputSchema(ctx context.Context, compositionID string) (*models.JSONSchema, error) {
	composition, err := s.load(ctx, compositionID)
	if err != nil {
		return nil, err
	}

	steps := composition.OrderedSteps()
	if len(steps) == 0 {
		return models.EmptyObjectSchema(), nil
	}

	if len(composition.OutputMapping) == 0 {
		last := steps[len(steps)-1]
		if last.OutputSchema != nil {
			return last.OutputSchema, nil
		}

		return models.EmptyObjectSchema(), nil
	}

	schema := models.EmptyObjectSchema()

	for field, refStr := range composition.OutputMapping {
		ref, err := mapping.Parse(refStr)
		if err != nil {
			return nil, err
		}

		var property *models.Property

		if !ref.IsInput() {
			step := composition.Step(ref.StepID)
			if step != nil && step.OutputSchema != nil && ref.Path != "" {
				property = step.OutputSchema.Properties[topSegment(ref.Path)]
			}
		}

		addProperty(schema, field, property)
	}

	return schema, nil
}

// load fetches the composition and validates its step graph so that callers
// get a validation error for unresolved mapping references, not a schema
// built from garbage.
func (s *Schema) load(ctx context.Context, compositionID string) (*models.Composition, error) {
	composition, err := s.persistence.CompositionRepository().GetByID(ctx, compositionID)
	if err != nil {
		return nil, err
	}

	if composition == nil {
		return nil, ErrCompositionNotFound
	}

	if err := mapping.ValidateSteps(composition.Steps); err != nil {
		return nil, err
	}

	return composition, nil
}

func addProperty(schema *models.JSONSchema, name string, property *models.Property) {
	if name == "" {
		return
	}

	if property == nil {
		if _, exists := schema.Properties[name]; exists {
			return
		}

		property = &models.Property{Type: "object"}
	}

	schema.Properties[name] = property
}

// inputPropertyFor keeps the declared property only when the reference
// selects a whole top-level field; deeper paths fall back to a generic
// object, since the field's siblings are unknown.
func inputPropertyFor(path string, declared *models.Property) *models.Property {
	if !strings.Contains(path, ".") {
		return declared
	}

	return nil
}

func topSegment(path string) string {
	segment, _, _ := strings.Cut(path, ".")

	return segment
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}
