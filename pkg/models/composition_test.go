package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposition_OrderedSteps(t *testing.T) {
	composition := &Composition{
		Steps: []*CompositionStep{
			{ID: "c", Order: 2},
			{ID: "a", Order: 0},
			{ID: "b", Order: 1},
		},
	}

	ordered := composition.OrderedSteps()

	assert.Equal(t, "a", ordered[0].ID)
	assert.Equal(t, "b", ordered[1].ID)
	assert.Equal(t, "c", ordered[2].ID)

	// The composition's own slice keeps its declaration order.
	assert.Equal(t, "c", composition.Steps[0].ID)
}

func TestComposition_Step(t *testing.T) {
	composition := &Composition{
		Steps: []*CompositionStep{
			{ID: "a", Order: 0},
			{ID: "b", Order: 1},
		},
	}

	assert.Equal(t, "b", composition.Step("b").ID)
	assert.Nil(t, composition.Step("ghost"))
}

func TestComposition_HasTag(t *testing.T) {
	composition := &Composition{Tags: []string{"etl", "nightly"}}

	assert.True(t, composition.HasTag("etl"))
	assert.False(t, composition.HasTag("adhoc"))
}
