package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/persistence"
)

const executionsDir = "executions"

// ExecutionRepository handles execution record file operations.
type ExecutionRepository struct {
	root string
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

// Save writes the execution snapshot, overwriting any previous version.
func (er *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	if err := validateRecordID(execution.ID); err != nil {
		return fmt.Errorf("invalid execution ID %q: %w", execution.ID, err)
	}

	dir := filepath.Join(er.root, executionsDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	path := filepath.Join(dir, execution.ID+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execution.ID, err)
	}

	return nil
}

// GetByID reads an execution by ID. Returns (nil, nil) when absent.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	if err := validateRecordID(id); err != nil {
		return nil, fmt.Errorf("invalid execution ID %q: %w", id, err)
	}

	path := filepath.Join(er.root, executionsDir, id+".json")

	data, err := os.ReadFile(path) // #nosec G304 -- id is validated against traversal
	if err != nil {
		if os.IsNotExist(err) {
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

// ListExecutions loads every record and filters, sorts, and pages
// in memory.
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

	all, err := er.getAll(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Execution, 0, len(all))

	for _, execution := range all {
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

		filtered = append(filtered, execution)
	}

	sortExecutions(filtered, opts.SortBy, opts.SortOrder)

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

// Delete removes an execution record.
func (er *ExecutionRepository) Delete(_ context.Context, id string) error {
	if err := validateRecordID(id); err != nil {
		return fmt.Errorf("invalid execution ID %q: %w", id, err)
	}

	path := filepath.Join(er.root, executionsDir, id+".json")

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to delete execution %s: %w", id, err)
	}

	return nil
}

func (er *ExecutionRepository) getAll(ctx context.Context) ([]*models.Execution, error) {
	dir := filepath.Join(er.root, executionsDir)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.Execution{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.Execution, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := strings.TrimSuffix(file, ".json")

		execution, err := er.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
		}

		if execution != nil {
			executions = append(executions, execution)
		}
	}

	return executions, nil
}

func sortExecutions(executions []*models.Execution, sortBy, sortOrder string) {
	sort.Slice(executions, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "started_at":
			less = earlier(executions[i].StartedAt, executions[j].StartedAt)
		case "finished_at":
			less = earlier(executions[i].FinishedAt, executions[j].FinishedAt)
		default:
			less = executions[i].CreatedAt.Before(executions[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
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
