package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow/stepflow/pkg/persistence/file"
)

func TestSchedules_Create(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	compositions := NewComposition(persistence)
	service := NewSchedules(persistence)

	composition, err := compositions.Create(t.Context(), newTestComposition())
	require.NoError(t, err)

	schedule, err := service.Create(t.Context(), CreateScheduleRequest{
		CompositionID:  composition.ID,
		AccountID:      "acct-1",
		CronExpression: "*/5 * * * *",
		Input:          map[string]any{"order_id": "recurring"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, schedule.ID)
	assert.True(t, schedule.Enabled)
	assert.False(t, schedule.CreatedAt.IsZero())

	fetched, err := service.FetchByID(t.Context(), schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, composition.ID, fetched.CompositionID)
	assert.Equal(t, "recurring", fetched.Input["order_id"])
}

func TestSchedules_Create_InvalidCron(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewSchedules(persistence)

	_, err := service.Create(t.Context(), CreateScheduleRequest{
		CompositionID:  "comp-1",
		AccountID:      "acct-1",
		CronExpression: "every five minutes",
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestSchedules_Create_UnknownComposition(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewSchedules(persistence)

	_, err := service.Create(t.Context(), CreateScheduleRequest{
		CompositionID:  "missing",
		AccountID:      "acct-1",
		CronExpression: "0 * * * *",
	})
	require.ErrorIs(t, err, ErrCompositionNotFound)
}

func TestSchedules_SetEnabledAndDelete(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	compositions := NewComposition(persistence)
	service := NewSchedules(persistence)

	composition, err := compositions.Create(t.Context(), newTestComposition())
	require.NoError(t, err)

	schedule, err := service.Create(t.Context(), CreateScheduleRequest{
		CompositionID:  composition.ID,
		AccountID:      "acct-1",
		CronExpression: "0 * * * *",
	})
	require.NoError(t, err)

	disabled, err := service.SetEnabled(t.Context(), schedule.ID, false)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)

	listed, err := service.ListByComposition(t.Context(), composition.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.False(t, listed[0].Enabled)

	require.NoError(t, service.Delete(t.Context(), schedule.ID))

	err = service.Delete(t.Context(), schedule.ID)
	require.ErrorIs(t, err, ErrScheduleNotFound)
}
