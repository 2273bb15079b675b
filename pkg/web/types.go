// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/flowmill/flowmill/pkg/models"

// CreateTemplateRequest represents the request body for creating a new draft
// template (version 1 of a new lineage).
type CreateTemplateRequest struct {
	OrganizationID string                    `json:"organization_id"    validate:"required"`
	Name           string                    `json:"name"               validate:"required,min=3"`
	Description    string                    `json:"description"`
	Stages         []*models.StageDefinition `json:"stages"`
	WorkflowSLA    *float64                  `json:"workflow_sla_hours" validate:"omitempty,gt=0"`
}

// UpdateTemplateRequest represents the request body for updating a draft.
// All fields are optional to support partial updates.
type UpdateTemplateRequest struct {
	Name        *string                   `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                   `json:"description,omitempty"`
	Stages      []*models.StageDefinition `json:"stages,omitempty"`
	WorkflowSLA *float64                  `json:"workflow_sla_hours,omitempty" validate:"omitempty,gt=0"`
}

// StartInstanceRequest represents the request body for starting a workflow
// instance from a published template version.
type StartInstanceRequest struct {
	TemplateID string            `json:"template_id" validate:"required"`
	Subject    models.SubjectRef `json:"subject"     validate:"required"`
}

// StageOutcomeRequest carries the outcome payload reported against an active
// stage. The stage's gate evaluates it before the stage completes.
type StageOutcomeRequest struct {
	Outcome map[string]any `json:"outcome"`
}

// FailStageRequest reports a stage failure; the stage's failure policy
// decides what happens next.
type FailStageRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// LifecycleRequest carries the mandatory reason for pause, resume and cancel
// operations, plus the acting user for the audit trail.
type LifecycleRequest struct {
	Reason string `json:"reason" validate:"required"`
	By     string `json:"by,omitempty"`
}
