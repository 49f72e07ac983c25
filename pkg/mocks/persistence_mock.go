package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/persistence"
)

// MockCompositionRepository is a mock implementation of
// persistence.CompositionRepository.
type MockCompositionRepository struct {
	mock.Mock
}

func (m *MockCompositionRepository) Save(ctx context.Context, composition *models.Composition) error {
	args := m.Called(ctx, composition)

	return args.Error(0)
}

func (m *MockCompositionRepository) GetByID(ctx context.Context, id string) (*models.Composition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Composition), args.Error(1)
}

func (m *MockCompositionRepository) GetAll(ctx context.Context) ([]*models.Composition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Composition), args.Error(1)
}

func (m *MockCompositionRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Composition, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Composition), args.Error(1)
}

func (m *MockCompositionRepository) ListByTags(ctx context.Context, tags []string) ([]*models.Composition, error) {
	args := m.Called(ctx, tags)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Composition), args.Error(1)
}

func (m *MockCompositionRepository) ListByFunctionID(ctx context.Context, functionID string) ([]*models.Composition, error) {
	args := m.Called(ctx, functionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Composition), args.Error(1)
}

func (m *MockCompositionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of
// persistence.ExecutionRepository.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) ListExecutions(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.ExecutionListResult), args.Error(1)
}

func (m *MockExecutionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockScheduleRepository is a mock implementation of
// persistence.ScheduleRepository.
type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	args := m.Called(ctx, schedule)

	return args.Error(0)
}

func (m *MockScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) GetAll(ctx context.Context) ([]*models.Schedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) ListByComposition(ctx context.Context, compositionID string) ([]*models.Schedule, error) {
	args := m.Called(ctx, compositionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence that
// hands out the repository mocks it was built with.
type MockPersistence struct {
	mock.Mock

	Compositions *MockCompositionRepository
	Executions   *MockExecutionRepository
	Schedules    *MockScheduleRepository
}

// NewMockPersistence creates a MockPersistence with fresh repository mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Compositions: &MockCompositionRepository{},
		Executions:   &MockExecutionRepository{},
		Schedules:    &MockScheduleRepository{},
	}
}

func (m *MockPersistence) CompositionRepository() persistence.CompositionRepository {
	return m.Compositions
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) ScheduleRepository() persistence.ScheduleRepository {
	return m.Schedules
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
