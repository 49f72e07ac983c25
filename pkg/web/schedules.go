package web

import (
	"github.com/gofiber/fiber/v3"

	"github.com/stepflow/stepflow/pkg/models"
	"github.com/stepflow/stepflow/pkg/services"
)

func (h *APIHandlers) CreateSchedule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Composition ID is required")
	}

	var req CreateScheduleRequest
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

	schedule, err := h.scheduleService.Create(c.Context(), services.CreateScheduleRequest{
		CompositionID:  composition.ID,
		AccountID:      composition.AccountID,
		CronExpression: req.CronExpression,
		Input:          req.Input,
		Enabled:        req.Enabled,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(schedule)
}

func (h *APIHandlers) GetSchedules(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Composition ID is required")
	}

	if _, err := h.fetchOwned(c, id); err != nil {
		return handleServiceError(c, err)
	}

	schedules, err := h.scheduleService.ListByComposition(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"schedules": schedules})
}

// fetchOwnedSchedule loads a schedule and hides it from other accounts.
func (h *APIHandlers) fetchOwnedSchedule(c fiber.Ctx, id string) (*models.Schedule, error) {
	accountID, err := h.requireAccount(c)
	if err != nil {
		return nil, err
	}

	schedule, err := h.scheduleService.FetchByID(c.Context(), id)
	if err != nil {
		return nil, err
	}

	if schedule.AccountID != accountID {
		return nil, services.ErrScheduleNotFound
	}

	return schedule, nil
}

func (h *APIHandlers) UpdateSchedule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Schedule ID is required")
	}

	var req UpdateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.fetchOwnedSchedule(c, id); err != nil {
		return handleServiceError(c, err)
	}

	schedule, err := h.scheduleService.SetEnabled(c.Context(), id, *req.Enabled)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) DeleteSchedule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Schedule ID is required")
	}

	if _, err := h.fetchOwnedSchedule(c, id); err != nil {
		return handleServiceError(c, err)
	}

	if err := h.scheduleService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
