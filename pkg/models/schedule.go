package models

import "time"

// Schedule describes a recurring run of a composition on a cron expression.
type Schedule struct {
	ID             string         `json:"id"`
	CompositionID  string         `json:"composition_id"  validate:"required"`
	AccountID      string         `json:"account_id"      validate:"required"`
	CronExpression string         `json:"cron_expression" validate:"required"`
	Input          map[string]any `json:"input,omitempty"`
	Enabled        bool           `json:"enabled"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
