package file

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/persistence"
)

func TestPersistence_HealthCheck(t *testing.T) {
	p := NewPersistence(t.TempDir())
	require.NoError(t, p.HealthCheck(t.Context()))

	missing := NewPersistence("/nonexistent/stepflow-test-root")
	require.Error(t, missing.HealthCheck(t.Context()))

	require.NoError(t, p.Close(t.Context()))
}

func TestCompositionRepository_SaveAndGet(t *testing.T) {
	p := NewPersistence(t.TempDir())

	composition := &models.Composition{
		ID:        "comp-1",
		AccountID: "acct-1",
		Name:      "Orders",
		Tags:      []string{"orders", "billing"},
		Steps: []*models.CompositionStep{
			{
				ID:         "fetch",
				FunctionID: "fn-fetch",
				Order:      0,
				InputMapping: map[string]string{
					"order_id": "input.order_id",
				},
			},
		},
	}
	require.NoError(t, p.CompositionRepository().Save(t.Context(), composition))

	loaded, err := p.CompositionRepository().GetByID(t.Context(), "comp-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "Orders", loaded.Name)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "input.order_id", loaded.Steps[0].InputMapping["order_id"])

	// Absent records come back as nil, not as an error.
	absent, err := p.CompositionRepository().GetByID(t.Context(), "comp-2")
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestCompositionRepository_RejectsTraversalIDs(t *testing.T) {
	p := NewPersistence(t.TempDir())

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		_, err := p.CompositionRepository().GetByID(t.Context(), id)
		require.ErrorIs(t, err, persistence.ErrInvalidRecordID, id)

		err = p.CompositionRepository().Save(t.Context(), &models.Composition{ID: id})
		require.ErrorIs(t, err, persistence.ErrInvalidRecordID, id)
	}
}

func TestCompositionRepository_Filters(t *testing.T) {
	p := NewPersistence(t.TempDir())

	require.NoError(t, p.CompositionRepository().Save(t.Context(), &models.Composition{
		ID:        "comp-1",
		AccountID: "acct-1",
		Name:      "Tagged",
		Tags:      []string{"orders"},
		Steps: []*models.CompositionStep{
			{ID: "s1", FunctionID: "fn-a", Order: 0},
		},
	}))
	require.NoError(t, p.CompositionRepository().Save(t.Context(), &models.Composition{
		ID:        "comp-2",
		AccountID: "acct-2",
		Name:      "Other",
		Steps: []*models.CompositionStep{
			{ID: "s1", FunctionID: "fn-b", Order: 0},
		},
	}))

	byAccount, err := p.CompositionRepository().ListByAccount(t.Context(), "acct-1")
	require.NoError(t, err)
	require.Len(t, byAccount, 1)
	assert.Equal(t, "comp-1", byAccount[0].ID)

	byTag, err := p.CompositionRepository().ListByTags(t.Context(), []string{"orders", "unused"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "comp-1", byTag[0].ID)

	byFunction, err := p.CompositionRepository().ListByFunctionID(t.Context(), "fn-b")
	require.NoError(t, err)
	require.Len(t, byFunction, 1)
	assert.Equal(t, "comp-2", byFunction[0].ID)
}

func TestCompositionRepository_Delete(t *testing.T) {
	p := NewPersistence(t.TempDir())

	require.NoError(t, p.CompositionRepository().Save(t.Context(), &models.Composition{
		ID:        "comp-1",
		AccountID: "acct-1",
		Name:      "Doomed",
	}))

	require.NoError(t, p.CompositionRepository().Delete(t.Context(), "comp-1"))

	loaded, err := p.CompositionRepository().GetByID(t.Context(), "comp-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting twice is not an error.
	require.NoError(t, p.CompositionRepository().Delete(t.Context(), "comp-1"))
}

func TestExecutionRepository_SaveRoundTrip(t *testing.T) {
	p := NewPersistence(t.TempDir())

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	execution := &models.Execution{
		ID:            "exec-1",
		CompositionID: "comp-1",
		AccountID:     "acct-1",
		Status:        models.ExecutionStatusRunning,
		Input:         map[string]any{"order_id": "o-1"},
		StartedAt:     &started,
		CreatedAt:     started,
		StepResults: []*models.StepResult{
			{
				StepID: "fetch",
				Status: models.StepStatusSucceeded,
				Output: map[string]any{"ok": true},
				Logs: []models.LogLine{
					{Timestamp: started, Message: "INFO: done"},
				},
			},
			{StepID: "enrich", Status: models.StepStatusPending},
		},
	}
	require.NoError(t, p.ExecutionRepository().Save(t.Context(), execution))

	loaded, err := p.ExecutionRepository().GetByID(t.Context(), "exec-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, models.ExecutionStatusRunning, loaded.Status)
	require.Len(t, loaded.StepResults, 2)
	assert.Equal(t, models.StepStatusSucceeded, loaded.StepResults[0].Status)
	require.Len(t, loaded.StepResults[0].Logs, 1)
	assert.Equal(t, "INFO: done", loaded.StepResults[0].Logs[0].Message)
	require.NotNil(t, loaded.StartedAt)
	assert.True(t, started.Equal(*loaded.StartedAt))
}

func TestExecutionRepository_ListSorting(t *testing.T) {
	p := NewPersistence(t.TempDir())

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	finishedEarly := base.Add(1 * time.Minute)
	finishedLate := base.Add(10 * time.Minute)

	executions := []*models.Execution{
		{
			ID: "exec-a", CompositionID: "comp-1", AccountID: "acct-1",
			Status: models.ExecutionStatusSucceeded, CreatedAt: base,
			FinishedAt: &finishedLate,
		},
		{
			ID: "exec-b", CompositionID: "comp-1", AccountID: "acct-1",
			Status: models.ExecutionStatusSucceeded, CreatedAt: base.Add(time.Minute),
			FinishedAt: &finishedEarly,
		},
		{
			// Still running: no finish time, sorts last.
			ID: "exec-c", CompositionID: "comp-1", AccountID: "acct-1",
			Status: models.ExecutionStatusRunning, CreatedAt: base.Add(2 * time.Minute),
		},
	}
	for _, execution := range executions {
		require.NoError(t, p.ExecutionRepository().Save(t.Context(), execution))
	}

	result, err := p.ExecutionRepository().ListExecutions(t.Context(), persistence.ListExecutionsOptions{
		SortBy:    "finished_at",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	require.Len(t, result.Executions, 3)

	assert.Equal(t, "exec-b", result.Executions[0].ID)
	assert.Equal(t, "exec-a", result.Executions[1].ID)
	assert.Equal(t, "exec-c", result.Executions[2].ID)
}

func TestExecutionRepository_ListRejectsUnknownSortField(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.ExecutionRepository().ListExecutions(t.Context(), persistence.ListExecutionsOptions{
		SortBy: "color",
	})
	require.ErrorIs(t, err, persistence.ErrInvalidSortField)
}

func TestScheduleRepository_CRUD(t *testing.T) {
	p := NewPersistence(t.TempDir())

	schedule := &models.Schedule{
		ID:             "sched-1",
		CompositionID:  "comp-1",
		AccountID:      "acct-1",
		CronExpression: "*/5 * * * *",
		Enabled:        true,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, p.ScheduleRepository().Save(t.Context(), schedule))

	loaded, err := p.ScheduleRepository().GetByID(t.Context(), "sched-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "*/5 * * * *", loaded.CronExpression)

	listed, err := p.ScheduleRepository().ListByComposition(t.Context(), "comp-1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	other, err := p.ScheduleRepository().ListByComposition(t.Context(), "comp-2")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, p.ScheduleRepository().Delete(t.Context(), "sched-1"))

	gone, err := p.ScheduleRepository().GetByID(t.Context(), "sched-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
