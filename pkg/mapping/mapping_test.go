package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow/stepflow/pkg/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		expected Reference
		wantErr  bool
	}{
		{name: "whole input", ref: "input", expected: Reference{}},
		{name: "input path", ref: "input.user.name", expected: Reference{Path: "user.name"}},
		{name: "whole step output", ref: "steps.step-a", expected: Reference{StepID: "step-a"}},
		{name: "step output path", ref: "steps.step-a.total", expected: Reference{StepID: "step-a", Path: "total"}},
		{name: "deep step path", ref: "steps.step-a.result.items", expected: Reference{StepID: "step-a", Path: "result.items"}},
		{name: "empty", ref: "", wantErr: true},
		{name: "bare prefix", ref: "steps.", wantErr: true},
		{name: "trailing dot input", ref: "input.", wantErr: true},
		{name: "unknown prefix", ref: "vars.x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := Parse(tt.ref)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidReference)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, ref)
		})
	}
}

func TestResolve(t *testing.T) {
	runInput := map[string]any{
		"city": "Lisbon",
		"user": map[string]any{"name": "ada"},
	}
	stepOutputs := map[string]map[string]any{
		"fetch": {"total": float64(3), "items": []any{"a", "b", "c"}},
	}

	resolved, err := Resolve(map[string]string{
		"city":     "input.city",
		"username": "input.user.name",
		"count":    "steps.fetch.total",
		"all":      "steps.fetch",
	}, runInput, stepOutputs)
	require.NoError(t, err)

	assert.Equal(t, "Lisbon", resolved["city"])
	assert.Equal(t, "ada", resolved["username"])
	assert.InDelta(t, 3, resolved["count"], 0)
	assert.Equal(t, stepOutputs["fetch"], resolved["all"])
}

func TestResolve_WholeInput(t *testing.T) {
	runInput := map[string]any{"a": "b"}

	resolved, err := Resolve(map[string]string{"payload": "input"}, runInput, nil)
	require.NoError(t, err)
	assert.Equal(t, runInput, resolved["payload"])
}

func TestResolve_MissingPath(t *testing.T) {
	_, err := Resolve(map[string]string{"x": "input.missing"}, map[string]any{"a": 1}, nil)
	require.ErrorIs(t, err, ErrUnresolvedReference)
}

func TestResolve_MissingStepOutput(t *testing.T) {
	_, err := Resolve(map[string]string{"x": "steps.later.value"}, nil, map[string]map[string]any{})
	require.ErrorIs(t, err, ErrUnresolvedReference)
}

func TestValidateSteps(t *testing.T) {
	steps := []*models.CompositionStep{
		{ID: "a", FunctionID: "f1", Order: 0},
		{ID: "b", FunctionID: "f2", Order: 1, InputMapping: map[string]string{"x": "steps.a.value"}},
		{ID: "c", FunctionID: "f3", Order: 2, InputMapping: map[string]string{"y": "input.seed"}},
	}

	require.NoError(t, ValidateSteps(steps))
}

func TestValidateSteps_DuplicateOrder(t *testing.T) {
	err := ValidateSteps([]*models.CompositionStep{
		{ID: "a", Order: 0},
		{ID: "b", Order: 0},
	})
	require.ErrorIs(t, err, ErrInvalidStepGraph)
}

func TestValidateSteps_DuplicateID(t *testing.T) {
	err := ValidateSteps([]*models.CompositionStep{
		{ID: "a", Order: 0},
		{ID: "a", Order: 1},
	})
	require.ErrorIs(t, err, ErrInvalidStepGraph)
}

func TestValidateSteps_NonContiguousOrders(t *testing.T) {
	err := ValidateSteps([]*models.CompositionStep{
		{ID: "a", Order: 0},
		{ID: "b", Order: 2},
	})
	require.ErrorIs(t, err, ErrInvalidStepGraph)
}

func TestValidateSteps_ForwardReference(t *testing.T) {
	err := ValidateSteps([]*models.CompositionStep{
		{ID: "a", Order: 0, InputMapping: map[string]string{"x": "steps.b.value"}},
		{ID: "b", Order: 1},
	})
	require.ErrorIs(t, err, ErrInvalidStepGraph)
}

func TestValidateSteps_SelfReference(t *testing.T) {
	err := ValidateSteps([]*models.CompositionStep{
		{ID: "a", Order: 0, InputMapping: map[string]string{"x": "steps.a.value"}},
	})
	require.ErrorIs(t, err, ErrInvalidStepGraph)
}

func TestValidateSteps_UnknownStepReference(t *testing.T) {
	err := ValidateSteps([]*models.CompositionStep{
		{ID: "a", Order: 0, InputMapping: map[string]string{"x": "steps.ghost.value"}},
	})
	require.ErrorIs(t, err, ErrUnresolvedReference)
}

func TestDependencies(t *testing.T) {
	step := &models.CompositionStep{
		ID:    "c",
		Order: 2,
		InputMapping: map[string]string{
			"x":    "steps.a.value",
			"y":    "steps.b.value",
			"z":    "steps.a.other",
			"seed": "input.seed",
		},
	}

	deps := Dependencies(step)
	assert.ElementsMatch(t, []string{"a", "b"}, deps)
}
