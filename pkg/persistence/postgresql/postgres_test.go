package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/persistence"
	"github.com/stepflow/stepflow/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"schedules", "executions", "compositions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("stepflow_test"),
			postgres.WithUsername("stepflow"),
			postgres.WithPassword("stepflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)
		require.NoError(t, p.Close(ctx))
		cancel()
	})

	return p, ctx
}

func TestPersistence_MigrationsAndHealth(t *testing.T) {
	p, ctx := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))
}

func TestCompositionRepository_Postgres(t *testing.T) {
	p, ctx := setupTestDB(t)

	composition := &models.Composition{
		ID:        "comp-1",
		AccountID: "acct-1",
		Name:      "Orders",
		Tags:      []string{"orders"},
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
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, p.CompositionRepository().Save(ctx, composition))

	loaded, err := p.CompositionRepository().GetByID(ctx, "comp-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Orders", loaded.Name)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "input.order_id", loaded.Steps[0].InputMapping["order_id"])

	// Upsert replaces the document.
	composition.Name = "Orders v2"
	require.NoError(t, p.CompositionRepository().Save(ctx, composition))

	loaded, err = p.CompositionRepository().GetByID(ctx, "comp-1")
	require.NoError(t, err)
	assert.Equal(t, "Orders v2", loaded.Name)

	byAccount, err := p.CompositionRepository().ListByAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, byAccount, 1)

	byTags, err := p.CompositionRepository().ListByTags(ctx, []string{"orders"})
	require.NoError(t, err)
	assert.Len(t, byTags, 1)

	byFunction, err := p.CompositionRepository().ListByFunctionID(ctx, "fn-fetch")
	require.NoError(t, err)
	assert.Len(t, byFunction, 1)

	require.NoError(t, p.CompositionRepository().Delete(ctx, "comp-1"))

	gone, err := p.CompositionRepository().GetByID(ctx, "comp-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestExecutionRepository_Postgres(t *testing.T) {
	p, ctx := setupTestDB(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	statuses := []models.ExecutionStatus{
		models.ExecutionStatusSucceeded,
		models.ExecutionStatusFailed,
		models.ExecutionStatusRunning,
	}

	for i, status := range statuses {
		require.NoError(t, p.ExecutionRepository().Save(ctx, &models.Execution{
			ID:            "exec-" + string(rune('a'+i)),
			CompositionID: "comp-1",
			AccountID:     "acct-1",
			Status:        status,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
			StepResults: []*models.StepResult{
				{StepID: "fetch", Status: models.StepStatusSucceeded},
			},
		}))
	}

	loaded, err := p.ExecutionRepository().GetByID(ctx, "exec-a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.StepResults, 1)

	result, err := p.ExecutionRepository().ListExecutions(ctx, persistence.ListExecutionsOptions{
		CompositionID: "comp-1",
		SortOrder:     "asc",
	})
	require.NoError(t, err)
	require.Len(t, result.Executions, 3)
	assert.Equal(t, int64(3), result.TotalCount)
	assert.Equal(t, "exec-a", result.Executions[0].ID)

	failed := models.ExecutionStatusFailed
	result, err = p.ExecutionRepository().ListExecutions(ctx, persistence.ListExecutionsOptions{
		Status: &failed,
	})
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)
	assert.Equal(t, "exec-b", result.Executions[0].ID)

	result, err = p.ExecutionRepository().ListExecutions(ctx, persistence.ListExecutionsOptions{
		Limit: 2,
	})
	require.NoError(t, err)
	assert.Len(t, result.Executions, 2)
	assert.True(t, result.HasNextPage)

	// Status transitions persist via upsert.
	loaded.Status = models.ExecutionStatusCancelled
	require.NoError(t, p.ExecutionRepository().Save(ctx, loaded))

	reloaded, err := p.ExecutionRepository().GetByID(ctx, "exec-a")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, reloaded.Status)
}

func TestScheduleRepository_Postgres(t *testing.T) {
	p, ctx := setupTestDB(t)

	schedule := &models.Schedule{
		ID:             "sched-1",
		CompositionID:  "comp-1",
		AccountID:      "acct-1",
		CronExpression: "*/5 * * * *",
		Enabled:        true,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, p.ScheduleRepository().Save(ctx, schedule))

	loaded, err := p.ScheduleRepository().GetByID(ctx, "sched-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Enabled)

	listed, err := p.ScheduleRepository().ListByComposition(ctx, "comp-1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	all, err := p.ScheduleRepository().GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, p.ScheduleRepository().Delete(ctx, "sched-1"))

	gone, err := p.ScheduleRepository().GetByID(ctx, "sched-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
