package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/persistence/file"
)

func saveComposition(t *testing.T, persistence *file.Persistence, composition *models.Composition) {
	t.Helper()

	if composition.ID == "" {
		composition.ID = "comp-1"
	}

	require.NoError(t, persistence.CompositionRepository().Save(t.Context(), composition))
}

func TestSchema_GenerateInputSchema_EmptyComposition(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewSchema(persistence)

	saveComposition(t, persistence, &models.Composition{
		AccountID: "acct-1",
		Name:      "Empty",
	})

	schema, err := service.GenerateInputSchema(t.Context(), "comp-1")
	require.NoError(t, err)

	assert.Equal(t, "object", schema.Type)
	assert.Empty(t, schema.Properties)
	assert.Empty(t, schema.Required)
}

func TestSchema_GenerateInputSchema_Union(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewSchema(persistence)

	saveComposition(t, persistence, &models.Composition{
		AccountID: "acct-1",
		Name:      "Orders",
		Steps: []*models.CompositionStep{
			{
				ID:         "fetch",
				FunctionID: "fn-fetch",
				Order:      0,
				InputMapping: map[string]string{
					"order_id": "input.order_id",
				},
				InputSchema: &models.JSONSchema{
					Type: "object",
					Properties: map[string]*models.Property{
						"order_id": {Type: "string"},
						// No mapping: expected in the run input by name.
						"region": {Type: "string"},
					},
					Required: []string{"order_id"},
				},
				OutputSchema: &models.JSONSchema{
					Type: "object",
					Properties: map[string]*models.Property{
						"order": {Type: "object"},
					},
				},
			},
			{
				ID:         "enrich",
				FunctionID: "fn-enrich",
				Order:      1,
				InputMapping: map[string]string{
					"order": "steps.fetch.order",
					// Deep input path: only the top segment is inferable.
					"currency": "input.settings.currency",
				},
				InputSchema: &models.JSONSchema{
					Type: "object",
					Properties: map[string]*models.Property{
						"order":    {Type: "object"},
						"currency": {Type: "string"},
					},
					Required: []string{"order", "currency"},
				},
			},
		},
	})

	schema, err := service.GenerateInputSchema(t.Context(), "comp-1")
	require.NoError(t, err)

	require.NotNil(t, schema.Properties["order_id"])
	assert.Equal(t, "string", schema.Properties["order_id"].Type)

	require.NotNil(t, schema.Properties["region"])
	assert.Equal(t, "string", schema.Properties["region"].Type)

	// Deep paths degrade to a generic object under the top segment.
	require.NotNil(t, schema.Properties["settings"])
	assert.Equal(t, "object", schema.Properties["settings"].Type)

	// Step-to-step mappings contribute nothing to the run input.
	assert.NotContains(t, schema.Properties, "order")

	assert.Equal(t, []string{"order_id", "settings"}, schema.Required)
}

func TestSchema_GenerateInputSchema_MappingWithoutDeclaredSchema(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewSchema(persistence)

	saveComposition(t, persistence, &models.Composition{
		AccountID: "acct-1",
		Name:      "Bare",
		Steps: []*models.CompositionStep{
			{
				ID:         "only",
				FunctionID: "fn-only",
				Order:      0,
				InputMapping: map[string]string{
					"payload": "input.payload",
				},
			},
		},
	})

	schema, err := service.GenerateInputSchema(t.Context(), "comp-1")
	require.NoError(t, err)

	require.NotNil(t, schema.Properties["payload"])
	assert.Equal(t, "object", schema.Properties["payload"].Type)
	assert.Empty(t, schema.Required)
}

func TestSchema_GenerateOutputSchema_LastStep(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewSchema(persistence)

	saveComposition(t, persistence, &models.Composition{
		AccountID: "acct-1",
		Name:      "Orders",
		Steps: []*models.CompositionStep{
			{ID: "fetch", FunctionID: "fn-fetch", Order: 0},
			{
				ID:         "enrich",
				FunctionID: "fn-enrich",
				Order:      1,
				OutputSchema: &models.JSONSchema{
					Type: "object",
					Properties: map[string]*models.Property{
						"enriched": {Type: "object"},
					},
				},
			},
		},
	})

	schema, err := service.GenerateOutputSchema(t.Context(), "comp-1")
	require.NoError(t, err)
	require.NotNil(t, schema.Properties["enriched"])
}

func TestSchema_GenerateOutputSchema_OutputMapping(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewSchema(persistence)

	saveComposition(t, persistence, &models.Composition{
		AccountID: "acct-1",
		Name:      "Orders",
		OutputMapping: map[string]string{
			"total":  "steps.fetch.total",
			"region": "input.region",
		},
		Steps: []*models.CompositionStep{
			{
				ID:         "fetch",
				FunctionID: "fn-fetch",
				Order:      0,
				OutputSchema: &models.JSONSchema{
					Type: "object",
					Properties: map[string]*models.Property{
						"total": {Type: "number"},
					},
				},
			},
		},
	})

	schema, err := service.GenerateOutputSchema(t.Context(), "comp-1")
	require.NoError(t, err)

	require.NotNil(t, schema.Properties["total"])
	assert.Equal(t, "number", schema.Properties["total"].Type)

	// No declared type to borrow for input-sourced fields.
	require.NotNil(t, schema.Properties["region"])
	assert.Equal(t, "object", schema.Properties["region"].Type)
}

func TestSchema_GenerateOutputSchema_EmptyComposition(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewSchema(persistence)

	saveComposition(t, persistence, &models.Composition{
		AccountID: "acct-1",
		Name:      "Empty",
	})

	schema, err := service.GenerateOutputSchema(t.Context(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, "object", schema.Type)
	assert.Empty(t, schema.Properties)
}

func TestSchema_NotFound(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewSchema(persistence)

	_, err := service.GenerateInputSchema(t.Context(), "missing")
	require.ErrorIs(t, err, ErrCompositionNotFound)

	_, err = service.GenerateOutputSchema(t.Context(), "missing")
	require.ErrorIs(t, err, ErrCompositionNotFound)
}
