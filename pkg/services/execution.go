package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/persistence"
)

// Execution handles read and lifecycle operations over execution records.
// Starting a run belongs to the engine; this service covers everything a
// polling caller needs afterwards.
type Execution struct {
	persistence persistence.Persistence
}

// NewExecution creates a new execution service.
func NewExecution(persistence persistence.Persistence) *Execution {
	return &Execution{persistence: persistence}
}

// FetchByID retrieves an execution snapshot by its ID. Step results are
// reported in the composition's declared order.
func (s *Execution) FetchByID(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := s.persistence.ExecutionRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if execution == nil {
		return nil, ErrExecutionNotFound
	}

	return execution, nil
}

// ListExecutionsRequest contains options for listing executions.
type ListExecutionsRequest struct {
	CompositionID string
	AccountID     string
	Status        *models.ExecutionStatus
	From          *time.Time
	To            *time.Time

	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`

	SortBy    string `validate:"omitempty,oneof=created_at started_at finished_at"`
	SortOrder string `validate:"omitempty,oneof=asc desc"`
}

// ListExecutionsResponse contains the result of listing executions.
type ListExecutionsResponse struct {
	Executions  []*models.Execution `json:"executions"`
	TotalCount  int64               `json:"total_count"`
	HasNextPage bool                `json:"has_next_page"`
}

// ListExecutions retrieves executions with filtering, sorting and pagination.
func (s *Execution) ListExecutions(ctx context.Context, req ListExecutionsRequest) (*ListExecutionsResponse, error) {
	if err := s.validateListExecutionsRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	opts := persistence.ListExecutionsOptions{
		CompositionID: req.CompositionID,
		AccountID:     req.AccountID,
		Status:        req.Status,
		From:          req.From,
		To:            req.To,
		Limit:         req.Limit,
		Offset:        req.Offset,
		SortBy:        req.SortBy,
		SortOrder:     req.SortOrder,
	}

	result, err := s.persistence.ExecutionRepository().ListExecutions(ctx, opts)
	if err != nil {
		if persistence.IsInvalidSortField(err) {
			return nil, ErrInvalidSortField
		}

		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return &ListExecutionsResponse{
		Executions:  result.Executions,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

func (s *Execution) validateListExecutionsRequest(req *ListExecutionsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "started_at", "finished_at"}
	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListExecutionsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListExecutionsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.Status != nil {
		allowedStatuses := []models.ExecutionStatus{
			models.ExecutionStatusPending,
			models.ExecutionStatusRunning,
			models.ExecutionStatusSucceeded,
			models.ExecutionStatusFailed,
			models.ExecutionStatusCancelled,
		}

		if !slices.Contains(allowedStatuses, *req.Status) {
			return NewValidationError(
				"validateListExecutionsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	return nil
}

// ExecutionLogs returns the accumulated log sequence of a whole execution,
// ordered by declared step order, then by timestamp within each step.
func (s *Execution) ExecutionLogs(ctx context.Context, executionID string) ([]models.LogLine, error) {
	execution, err := s.FetchByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	logs := make([]models.LogLine, 0)
	for _, result := range execution.StepResults {
		logs = append(logs, result.Logs...)
	}

	return logs, nil
}

// StepLogs returns the log sequence of one step within an execution.
func (s *Execution) StepLogs(ctx context.Context, executionID, stepID string) ([]models.LogLine, error) {
	execution, err := s.FetchByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	result := execution.StepResult(stepID)
	if result == nil {
		return nil, ErrStepNotFound
	}

	return result.Logs, nil
}
