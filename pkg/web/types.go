// Package web provides HTTP request and response types for the composition API.
package web

import "github.com/stepflow/stepflow/pkg/models"

// AccountIDHeader carries the caller's account identity, resolved by the
// edge layer. The core trusts the value as-is.
const AccountIDHeader = "X-Account-ID"

// CreateCompositionRequest represents the request body for creating a new
// composition.
type CreateCompositionRequest struct {
	Name          string                    `json:"name"           validate:"required,min=3"`
	Description   string                    `json:"description"`
	Tags          []string                  `json:"tags,omitempty"`
	Steps         []*models.CompositionStep `json:"steps,omitempty"`
	OutputMapping map[string]string         `json:"output_mapping,omitempty"`
}

// UpdateCompositionRequest represents the request body for updating an
// existing composition. All fields are optional to support partial updates.
type UpdateCompositionRequest struct {
	Name          *string           `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description   *string           `json:"description,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	OutputMapping map[string]string `json:"output_mapping,omitempty"`
}

// CreateStepRequest represents the request body for appending or inserting a
// step.
type CreateStepRequest struct {
	ID             string             `json:"id,omitempty"`
	FunctionID     string             `json:"function_id" validate:"required"`
	Name           string             `json:"name"`
	Order          *int               `json:"order,omitempty"`
	InputMapping   map[string]string  `json:"input_mapping,omitempty"`
	InputSchema    *models.JSONSchema `json:"input_schema,omitempty"`
	OutputSchema   *models.JSONSchema `json:"output_schema,omitempty"`
	TimeoutSeconds int                `json:"timeout_seconds,omitempty"`
}

// UpdateStepRequest represents the request body for updating a step. The
// step's ID comes from the URL; order changes go through the reorder
// endpoint.
type UpdateStepRequest struct {
	FunctionID     string             `json:"function_id" validate:"required"`
	Name           string             `json:"name"`
	InputMapping   map[string]string  `json:"input_mapping,omitempty"`
	InputSchema    *models.JSONSchema `json:"input_schema,omitempty"`
	OutputSchema   *models.JSONSchema `json:"output_schema,omitempty"`
	TimeoutSeconds int                `json:"timeout_seconds,omitempty"`
}

// ReorderStepsRequest names every existing step ID in its new order.
type ReorderStepsRequest struct {
	StepIDs []string `json:"step_ids" validate:"required,min=1"`
}

// ExecuteRequest carries the top-level input for a new execution.
type ExecuteRequest struct {
	Input map[string]any `json:"input,omitempty"`
}

// CreateScheduleRequest represents the request body for registering a
// recurring run.
type CreateScheduleRequest struct {
	CronExpression string         `json:"cron_expression" validate:"required"`
	Input          map[string]any `json:"input,omitempty"`
	Enabled        *bool          `json:"enabled,omitempty"`
}

// UpdateScheduleRequest toggles a schedule's enabled flag.
type UpdateScheduleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
