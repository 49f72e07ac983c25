// Package mapping resolves step input mappings against a run's top-level
// input and the outputs of previously completed steps.
//
// References take the form "input", "input.<path>", "steps.<stepID>" or
// "steps.<stepID>.<path>". Paths use gjson syntax for nested fields.
package mapping

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stepflow/stepflow/pkg/models"
)

const (
	inputPrefix = "input"
	stepsPrefix = "steps"
)

// Reference is a parsed mapping reference.
type Reference struct {
	// StepID is empty for references into the run's top-level input.
	StepID string
	// Path is the gjson path within the referenced document. Empty selects
	// the whole document.
	Path string
}

// IsInput reports whether the reference targets the run's top-level input.
func (r Reference) IsInput() bool {
	return r.StepID == ""
}

// Parse parses a mapping reference string.
func Parse(ref string) (Reference, error) {
	if ref == inputPrefix {
		return Reference{}, nil
	}

	if rest, ok := strings.CutPrefix(ref, inputPrefix+"."); ok {
		if rest == "" {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
		}

		return Reference{Path: rest}, nil
	}

	if rest, ok := strings.CutPrefix(ref, stepsPrefix+"."); ok {
		stepID, path, _ := strings.Cut(rest, ".")
		if stepID == "" {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
		}

		return Reference{StepID: stepID, Path: path}, nil
	}

	return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
}

// Resolve computes a step's effective input by applying its mapping against
// the run input and the outputs of already-completed steps.
func Resolve(
	inputMapping map[string]string,
	runInput map[string]any,
	stepOutputs map[string]map[string]any,
) (map[string]any, error) {
	resolved := make(map[string]any, len(inputMapping))

	for field, refStr := range inputMapping {
		ref, err := Parse(refStr)
		if err != nil {
			return nil, err
		}

		var source map[string]any
		if ref.IsInput() {
			source = runInput
		} else {
			output, ok := stepOutputs[ref.StepID]
			if !ok {
				return nil, fmt.Errorf("%w: step %q has no output", ErrUnresolvedReference, ref.StepID)
			}

			source = output
		}

		value, err := extract(source, ref.Path)
		if err != nil {
			return nil, fmt.Errorf("resolving %q for field %q: %w", refStr, field, err)
		}

		resolved[field] = value
	}

	return resolved, nil
}

// extract selects a value from a document by gjson path. An empty path yields
// the whole document.
func extract(document map[string]any, path string) (any, error) {
	if path == "" {
		return document, nil
	}

	raw, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mapping source: %w", err)
	}

	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return nil, fmt.Errorf("%w: path %q", ErrUnresolvedReference, path)
	}

	return result.Value(), nil
}

// ValidateSteps checks the soundness invariant of a composition's step graph:
// order positions are unique and contiguous from zero, and every mapping
// reference points at the run input or at a step with a lower order.
func ValidateSteps(steps []*models.CompositionStep) error {
	orders := make(map[int]string, len(steps))
	byID := make(map[string]*models.CompositionStep, len(steps))

	for _, step := range steps {
		if previous, taken := orders[step.Order]; taken {
			return fmt.Errorf("%w: steps %q and %q share order %d",
				ErrInvalidStepGraph, previous, step.ID, step.Order)
		}

		if _, dup := byID[step.ID]; dup {
			return fmt.Errorf("%w: duplicate step ID %q", ErrInvalidStepGraph, step.ID)
		}

		orders[step.Order] = step.ID
		byID[step.ID] = step
	}

	for position := range len(steps) {
		if _, ok := orders[position]; !ok {
			return fmt.Errorf("%w: order positions are not contiguous, missing %d",
				ErrInvalidStepGraph, position)
		}
	}

	for _, step := range steps {
		for field, refStr := range step.InputMapping {
			ref, err := Parse(refStr)
			if err != nil {
				return fmt.Errorf("step %q field %q: %w", step.ID, field, err)
			}

			if ref.IsInput() {
				continue
			}

			target, ok := byID[ref.StepID]
			if !ok {
				return fmt.Errorf("%w: step %q references unknown step %q",
					ErrUnresolvedReference, step.ID, ref.StepID)
			}

			// No forward or self references: acyclic execution depends on it.
			if target.Order >= step.Order {
				return fmt.Errorf("%w: step %q references step %q at or after its own position",
					ErrInvalidStepGraph, step.ID, ref.StepID)
			}
		}
	}

	return nil
}

// Dependencies returns the IDs of the steps the given step reads from via its
// input mapping. The result preserves no particular order.
func Dependencies(step *models.CompositionStep) []string {
	seen := make(map[string]bool)

	var deps []string

	for _, refStr := range step.InputMapping {
		ref, err := Parse(refStr)
		if err != nil || ref.IsInput() || seen[ref.StepID] {
			continue
		}

		seen[ref.StepID] = true
		deps = append(deps, ref.StepID)
	}

	return deps
}
