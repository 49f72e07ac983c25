// Package models defines the core domain models for function composition pipelines.
package models

import (
	"sort"
	"time"
)

// Composition represents a named, ordered pipeline of function-invocation steps
// owned by a single account.
type Composition struct {
	ID            string             `json:"id"`
	AccountID     string             `json:"account_id"     validate:"required"`
	Name          string             `json:"name"           validate:"required,min=3"`
	Description   string             `json:"description"`
	Tags          []string           `json:"tags,omitempty"`
	Steps         []*CompositionStep `json:"steps"`
	OutputMapping map[string]string  `json:"output_mapping,omitempty"`
	CreatedBy     string             `json:"created_by"`
	UpdatedBy     string             `json:"updated_by"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// CompositionStep is one stage of a composition. It invokes one function with
// inputs derived from prior step outputs or the run's top-level input.
type CompositionStep struct {
	ID         string `json:"id"         validate:"required"`
	FunctionID string `json:"function_id" validate:"required"`
	Name       string `json:"name"`
	// Order is the execution position within the composition. Positions are
	// unique and contiguous starting at zero.
	Order int `json:"order"`
	// InputMapping maps input field names to references of the form
	// "input.<path>" or "steps.<stepID>.<path>". A step may only reference
	// steps with a lower order.
	InputMapping   map[string]string `json:"input_mapping,omitempty"`
	InputSchema    *JSONSchema       `json:"input_schema,omitempty"`
	OutputSchema   *JSONSchema       `json:"output_schema,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// Step returns the step with the given ID, or nil if the composition has no
// such step.
func (c *Composition) Step(stepID string) *CompositionStep {
	for _, step := range c.Steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}

// OrderedSteps returns the composition's steps sorted by execution order.
// The composition itself is not modified.
func (c *Composition) OrderedSteps() []*CompositionStep {
	steps := make([]*CompositionStep, len(c.Steps))
	copy(steps, c.Steps)

	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})

	return steps
}

// HasTag reports whether the composition carries the given tag.
func (c *Composition) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}

	return false
}
