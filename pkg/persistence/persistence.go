// Package persistence provides the data storage abstraction for compositions,
// executions and schedules.
package persistence

import (
	"context"
	"time"

	"github.com/stepflow/stepflow/pkg/models"
)

// Persistence bundles the repositories of one storage backend.
type Persistence interface {
	CompositionRepository() CompositionRepository
	ExecutionRepository() ExecutionRepository
	ScheduleRepository() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// CompositionRepository stores composition definitions. GetByID returns
// (nil, nil) when no composition exists for the ID; the service layer maps
// that to its not-found error.
type CompositionRepository interface {
	Save(ctx context.Context, composition *models.Composition) error
	GetByID(ctx context.Context, id string) (*models.Composition, error)
	GetAll(ctx context.Context) ([]*models.Composition, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.Composition, error)
	ListByTags(ctx context.Context, tags []string) ([]*models.Composition, error)
	ListByFunctionID(ctx context.Context, functionID string) ([]*models.Composition, error)
	Delete(ctx context.Context, id string) error
}

// ListExecutionsOptions filters, sorts and paginates execution listings.
type ListExecutionsOptions struct {
	CompositionID string
	AccountID     string
	Status        *models.ExecutionStatus
	From          *time.Time
	To            *time.Time

	Limit  int
	Offset int

	SortBy    string
	SortOrder string
}

// ExecutionListResult is one page of executions.
type ExecutionListResult struct {
	Executions  []*models.Execution `json:"executions"`
	TotalCount  int64               `json:"total_count"`
	HasNextPage bool                `json:"has_next_page"`
}

// ExecutionRepository stores execution records. Saves are whole-record
// read-modify-write: concurrent readers always observe a consistent snapshot.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	ListExecutions(ctx context.Context, opts ListExecutionsOptions) (*ExecutionListResult, error)
	Delete(ctx context.Context, id string) error
}

// ScheduleRepository stores cron schedules for recurring runs.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.Schedule) error
	GetByID(ctx context.Context, id string) (*models.Schedule, error)
	GetAll(ctx context.Context) ([]*models.Schedule, error)
	ListByComposition(ctx context.Context, compositionID string) ([]*models.Schedule, error)
	Delete(ctx context.Context, id string) error
}
