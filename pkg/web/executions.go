package web

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/services"
)

// ExecuteComposition starts a new execution and returns the pending record
// with 202; callers poll GET /executions/:id for progress.
func (h *APIHandlers) ExecuteComposition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Composition ID is required")
	}

	var req ExecuteRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	composition, err := h.fetchOwned(c, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	var execution *models.Execution
	if h.queueExecutions {
		execution, err = h.engine.Request(c.Context(), composition.ID, composition.AccountID, req.Input)
	} else {
		execution, err = h.engine.ExecuteAsync(c.Context(), composition.ID, composition.AccountID, req.Input)
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	if _, err := h.requireAccount(c); err != nil {
		return handleServiceError(c, err)
	}

	req, err := h.parseListExecutionsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.executionService.ListExecutions(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":    result.Executions,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListExecutionsRequest parses and validates query parameters for
// listing executions.
func (h *APIHandlers) parseListExecutionsRequest(c fiber.Ctx) (*services.ListExecutionsRequest, error) {
	req := &services.ListExecutionsRequest{
		AccountID:     h.accountID(c),
		CompositionID: c.Query("composition_id"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.ExecutionStatus(statusStr)
		req.Status = &status
	}

	if fromStr := c.Query("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return nil, err
		}

		req.From = &from
	}

	if toStr := c.Query("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return nil, err
		}

		req.To = &to
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

// fetchOwnedExecution loads an execution and hides it from other accounts.
func (h *APIHandlers) fetchOwnedExecution(c fiber.Ctx, id string) (*models.Execution, error) {
	accountID, err := h.requireAccount(c)
	if err != nil {
		return nil, err
	}

	execution, err := h.executionService.FetchByID(c.Context(), id)
	if err != nil {
		return nil, err
	}

	if execution.AccountID != accountID {
		return nil, services.ErrExecutionNotFound
	}

	return execution, nil
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.fetchOwnedExecution(c, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if _, err := h.fetchOwnedExecution(c, id); err != nil {
		return handleServiceError(c, err)
	}

	execution, err := h.engine.Cancel(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if _, err := h.fetchOwnedExecution(c, id); err != nil {
		return handleServiceError(c, err)
	}

	logs, err := h.executionService.ExecutionLogs(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"logs": logs})
}

func (h *APIHandlers) GetStepLogs(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Execution ID and step ID are required")
	}

	if _, err := h.fetchOwnedExecution(c, id); err != nil {
		return handleServiceError(c, err)
	}

	logs, err := h.executionService.StepLogs(c.Context(), id, stepID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"logs": logs})
}
