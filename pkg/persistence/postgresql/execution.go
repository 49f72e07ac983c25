package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/persistence"
)

// ExecutionRepository handles execution database operations. Each save
// replaces the whole document row, so polling readers always see a
// consistent snapshot.
type ExecutionRepository struct {
	db *sql.DB
}

// Save upserts the execution snapshot.
func (er *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	document, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	query := `
		INSERT INTO executions (id, composition_id, account_id, status, document, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status   = EXCLUDED.status,
			document = EXCLUDED.document
	`

	_, err = er.db.ExecContext(ctx, query,
		execution.ID, execution.CompositionID, execution.AccountID,
		string(execution.Status), document, execution.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", execution.ID, err)
	}

	return nil
}

// GetByID loads an execution. Returns (nil, nil) when absent.
func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	var raw []byte

	err := er.db.QueryRowContext(ctx, `SELECT document FROM executions WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query execution %s: %w", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal(raw, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

// ListExecutions filters, sorts and paginates at the database.
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

	// Sort input is interpolated into SQL, so allowlist it strictly.
	sortColumns := map[string]string{
		"created_at":  "created_at",
		"started_at":  "document ->> 'started_at'",
		"finished_at": "document ->> 'finished_at'",
	}

	sortColumn, ok := sortColumns[opts.SortBy]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	direction := "ASC"
	if strings.EqualFold(opts.SortOrder, "desc") {
		direction = "DESC"
	}

	conditions := []string{"TRUE"}
	args := []any{}

	addCondition := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, strings.Replace(condition, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	if opts.CompositionID != "" {
		addCondition("composition_id = ?", opts.CompositionID)
	}

	if opts.AccountID != "" {
		addCondition("account_id = ?", opts.AccountID)
	}

	if opts.Status != nil {
		addCondition("status = ?", string(*opts.Status))
	}

	if opts.From != nil {
		addCondition("created_at >= ?", *opts.From)
	}

	if opts.To != nil {
		addCondition("created_at <= ?", *opts.To)
	}

	where := strings.Join(conditions, " AND ")

	var totalCount int64

	countQuery := "SELECT COUNT(*) FROM executions WHERE " + where
	if err := er.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT document FROM executions WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		where, sortColumn, direction, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := er.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		var execution models.Execution
		if err := json.Unmarshal(raw, &execution); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
		}

		executions = append(executions, &execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return &persistence.ExecutionListResult{
		Executions:  executions,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(executions)) < totalCount,
	}, nil
}

// Delete removes an execution row.
func (er *ExecutionRepository) Delete(ctx context.Context, id string) error {
	if _, err := er.db.ExecContext(ctx, `DELETE FROM executions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete execution %s: %w", id, err)
	}

	return nil
}
