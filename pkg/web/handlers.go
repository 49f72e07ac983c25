// Package web provides HTTP handlers and REST API endpoints for composition
// management.
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/stepflow/stepflow/pkg/engine"
	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/services"
)

type APIHandlers struct {
	compositionService *services.Composition
	executionService   *services.Execution
	scheduleService    *services.Schedules
	schemaService      *services.Schema
	engine             *engine.Engine
	validator          *validator.Validate

	// queueExecutions routes new executions through the event bus instead of
	// running them in-process.
	queueExecutions bool
}

func NewAPIHandlers(
	compositionService *services.Composition,
	executionService *services.Execution,
	scheduleService *services.Schedules,
	schemaService *services.Schema,
	eng *engine.Engine,
	validator *validator.Validate,
	queueExecutions bool,
) *APIHandlers {
	return &APIHandlers{
		compositionService: compositionService,
		executionService:   executionService,
		scheduleService:    scheduleService,
		schemaService:      schemaService,
		engine:             eng,
		validator:          validator,
		queueExecutions:    queueExecutions,
	}
}

func (h *APIHandlers) accountID(c fiber.Ctx) string {
	return c.Get(AccountIDHeader)
}

// requireAccount returns the caller's account. A missing header fails
// closed: tenant data is never served without one.
func (h *APIHandlers) requireAccount(c fiber.Ctx) (string, error) {
	accountID := h.accountID(c)
	if accountID == "" {
		return "", services.ErrEmptyAccountID
	}

	return accountID, nil
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.compositionService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateComposition(c fiber.Ctx) error {
	accountID := h.accountID(c)
	if accountID == "" {
		return badRequest(c, "X-Account-ID header is required")
	}

	var req CreateCompositionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	composition := &models.Composition{
		AccountID:     accountID,
		Name:          req.Name,
		Description:   req.Description,
		Tags:          req.Tags,
		Steps:         req.Steps,
		OutputMapping: req.OutputMapping,
		CreatedBy:     accountID,
		UpdatedBy:     accountID,
	}

	created, err := h.compositionService.Create(c.Context(), composition)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetCompositions(c fiber.Ctx) error {
	accountID, err := h.requireAccount(c)
	if err != nil {
		return handleServiceError(c, err)
	}

	if tags := c.Query("tags"); tags != "" {
		compositions, err := h.compositionService.ListByTags(c.Context(), strings.Split(tags, ","))
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(fiber.Map{"compositions": ownedOnly(compositions, accountID)})
	}

	if functionID := c.Query("function_id"); functionID != "" {
		compositions, err := h.compositionService.ListByFunctionID(c.Context(), functionID)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(fiber.Map{"compositions": ownedOnly(compositions, accountID)})
	}

	compositions, err := h.compositionService.ListByAccount(c.Context(), accountID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"compositions": compositions})
}

// ownedOnly narrows tag and function filter results to the caller's account.
func ownedOnly(compositions []*models.Composition, accountID string) []*models.Composition {
	owned := make([]*models.Composition, 0, len(compositions))

	for _, composition := range compositions {
		if composition.AccountID == accountID {
			owned = append(owned, composition)
		}
	}

	return owned
}

// fetchOwned loads a composition and hides it from other accounts.
func (h *APIHandlers) fetchOwned(c fiber.Ctx, id string) (*models.Composition, error) {
	accountID, err := h.requireAccount(c)
	if err != nil {
		return nil, err
	}

	composition, err := h.compositionService.FetchByID(c.Context(), id)
	if err != nil {
		return nil, err
	}

	if composition.AccountID != accountID {
		return nil, services.ErrCompositionNotFound
	}

	return composition, nil
}

func (h *APIHandlers) GetComposition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Composition ID is required")
	}

	composition, err := h.fetchOwned(c, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(composition)
}

func (h *APIHandlers) UpdateComposition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Composition ID is required")
	}

	var req UpdateCompositionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.fetchOwned(c, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Tags != nil {
		existing.Tags = req.Tags
	}

	if req.OutputMapping != nil {
		existing.OutputMapping = req.OutputMapping
	}

	existing.UpdatedBy = h.accountID(c)

	updated, err := h.compositionService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteComposition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Composition ID is required")
	}

	if _, err := h.fetchOwned(c, id); err != nil {
		return handleServiceError(c, err)
	}

	if err := h.compositionService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateStep(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Composition ID is required")
	}

	var req CreateStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.fetchOwned(c, id); err != nil {
		return handleServiceError(c, err)
	}

	step := &models.CompositionStep{
		ID:             req.ID,
		FunctionID:     req.FunctionID,
		Name:           req.Name,
		InputMapping:   req.InputMapping,
		InputSchema:    req.InputSchema,
		OutputSchema:   req.OutputSchema,
		TimeoutSeconds: req.TimeoutSeconds,
	}
	if req.Order != nil {
		step.Order = *req.Order
	} else {
		step.Order = -1 // append at the end
	}

	updated, err := h.compositionService.AddStep(c.Context(), id, step)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(updated)
}

func (h *APIHandlers) UpdateStep(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Composition ID and step ID are required")
	}

	var req UpdateStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	composition, err := h.fetchOwned(c, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	existing := composition.Step(stepID)
	if existing == nil {
		return notFound(c, "Step not found")
	}

	step := &models.CompositionStep{
		ID:             stepID,
		FunctionID:     req.FunctionID,
		Name:           req.Name,
		Order:          existing.Order,
		InputMapping:   req.InputMapping,
		InputSchema:    req.InputSchema,
		OutputSchema:   req.OutputSchema,
		TimeoutSeconds: req.TimeoutSeconds,
	}

	updated, err := h.compositionService.UpdateStep(c.Context(), id, step)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteStep(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Composition ID and step ID are required")
	}

	if _, err := h.fetchOwned(c, id); err != nil {
		return handleServiceError(c, err)
	}

	updated, err := h.compositionService.RemoveStep(c.Context(), id, stepID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ReorderSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Composition ID is required")
	}

	var req ReorderStepsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.fetchOwned(c, id); err != nil {
		return handleServiceError(c, err)
	}

	updated, err := h.compositionService.ReorderSteps(c.Context(), id, req.StepIDs)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) GetInputSchema(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Composition ID is required")
	}

	if _, err := h.fetchOwned(c, id); err != nil {
		return handleServiceError(c, err)
	}

	schema, err := h.schemaService.GenerateInputSchema(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schema)
}

func (h *APIHandlers) GetOutputSchema(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Composition ID is required")
	}

	if _, err := h.fetchOwned(c, id); err != nil {
		return handleServiceError(c, err)
	}

	schema, err := h.schemaService.GenerateOutputSchema(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schema)
}
