package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/persistence"
)

// ExecutionRepository stores execution records as JSON values in a Redis hash.
// HSET of a whole record gives the per-record snapshot atomicity the engine
// relies on for polling readers.
type ExecutionRepository struct {
	client *goredis.Client
}

// Save stores the execution snapshot.
func (er *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	if err := er.client.HSet(ctx, executionsKey, execution.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to store execution %s: %w", execution.ID, err)
	}

	return nil
}

// GetByID loads an execution. Returns (nil, nil) when absent.
func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	data, err := er.client.HGet(ctx, executionsKey, id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

// ListExecutions filters, sorts and paginates in memory over the hash.
func (er *ExecutionRepository) ListExecutions(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at":  true,
		"started_at":  true,
		"finished_at": true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	values, err := er.client.HGetAll(ctx, executionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	filtered := make([]*models.Execution, 0, len(values))

	for id, raw := range values {
		var execution models.Execution
		if err := json.Unmarshal([]byte(raw), &execution); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
		}

		if opts.CompositionID != "" && execution.CompositionID != opts.CompositionID {
			continue
		}

		if opts.AccountID != "" && execution.AccountID != opts.AccountID {
			continue
		}

		if opts.Status != nil && execution.Status != *opts.Status {
			continue
		}

		if opts.From != nil && execution.CreatedAt.Before(*opts.From) {
			continue
		}

		if opts.To != nil && execution.CreatedAt.After(*opts.To) {
			continue
		}

		filtered = append(filtered, &execution)
	}

	sort.Slice(filtered, func(i, j int) bool {
		var less bool

		switch opts.SortBy {
		case "started_at":
			less = earlier(filtered[i].StartedAt, filtered[j].StartedAt)
		case "finished_at":
			less = earlier(filtered[i].FinishedAt, filtered[j].FinishedAt)
		default:
			less = filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
		}

		if opts.SortOrder == "desc" {
			return !less
		}

		return less
	})

	totalCount := int64(len(filtered))
	startIdx := opts.Offset
	endIdx := opts.Offset + opts.Limit

	if startIdx >= len(filtered) {
		return &persistence.ExecutionListResult{
			Executions:  make([]*models.Execution, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	if endIdx > len(filtered) {
		endIdx = len(filtered)
	}

	return &persistence.ExecutionListResult{
		Executions:  filtered[startIdx:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

// earlier compares nullable times; a nil time sorts last.
func earlier(a, b *time.Time) bool {
	if a == nil {
		return false
	}

	if b == nil {
		return true
	}

	return a.Before(*b)
}

// Delete removes an execution record.
func (er *ExecutionRepository) Delete(ctx context.Context, id string) error {
	if err := er.client.HDel(ctx, executionsKey, id).Err(); err != nil {
		return fmt.Errorf("failed to delete execution %s: %w", id, err)
	}

	return nil
}
