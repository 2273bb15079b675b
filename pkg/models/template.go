// Package models defines the core domain models for workflow orchestration.
package models

import "time"

// TemplateStatus represents the lifecycle state of a workflow template.
type TemplateStatus string

const (
	TemplateStatusDraft     TemplateStatus = "draft"     // Editable, not instantiable
	TemplateStatusPublished TemplateStatus = "published" // Immutable, instantiable
	TemplateStatusArchived  TemplateStatus = "archived"  // Immutable, no new instances
)

// StageKind classifies what a stage does when it becomes active.
type StageKind string

const (
	StageKindTask         StageKind = "task"
	StageKindApproval     StageKind = "approval"
	StageKindNotification StageKind = "notification"
	StageKindSubWorkflow  StageKind = "sub_workflow"
)

// FailurePolicy controls how the engine reacts when a stage is reported failed.
type FailurePolicy string

const (
	// FailurePolicyPause transitions the owning instance to paused and waits
	// for manual intervention.
	FailurePolicyPause FailurePolicy = "pause"

	// FailurePolicySkipAfterRetry allows RetryLimit re-attempts, then marks
	// the stage skipped and lets successors proceed.
	FailurePolicySkipAfterRetry FailurePolicy = "skip_after_retry"

	// FailurePolicyCompensate invokes a compensating action, then behaves
	// like pause.
	FailurePolicyCompensate FailurePolicy = "compensate"
)

// WorkflowTemplate is a versioned definition of a staged business process.
// Versions in the same lineage share LineageID; a published version is
// immutable and instances reference it by exact (LineageID, Version) forever.
type WorkflowTemplate struct {
	ID              string             `json:"id"`
	OrganizationID  string             `json:"organization_id" validate:"required"`
	LineageID       string             `json:"lineage_id"` // Stable ID linking all versions
	Name            string             `json:"name"            validate:"required,min=3"`
	Description     string             `json:"description"`
	Version         int                `json:"version"`
	Status          TemplateStatus     `json:"status"          validate:"required,oneof=draft published archived"`
	Stages          []*StageDefinition `json:"stages"`
	WorkflowSLA     *float64           `json:"workflow_sla_hours,omitempty"` // Whole-instance SLA, independent of stage SLAs
	ParentVersionID *string            `json:"parent_version_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	PublishedAt     *time.Time         `json:"published_at,omitempty"`
	ArchivedAt      *time.Time         `json:"archived_at,omitempty"`
}

// Stage returns the stage definition with the given ID, or nil.
func (t *WorkflowTemplate) Stage(stageID string) *StageDefinition {
	for _, stage := range t.Stages {
		if stage.ID == stageID {
			return stage
		}
	}

	return nil
}

// IsPublished reports whether the template may be instantiated.
func (t *WorkflowTemplate) IsPublished() bool {
	return t.Status == TemplateStatusPublished
}

// StageDefinition is one unit of work in a template's stage graph.
type StageDefinition struct {
	ID             string           `json:"id"   validate:"required"`
	Name           string           `json:"name" validate:"required,min=1"`
	Kind           StageKind        `json:"kind" validate:"required,oneof=task approval notification sub_workflow"`
	Predecessors   []string         `json:"predecessors,omitempty"`
	Successors     []string         `json:"successors,omitempty"`
	SLAHours       *float64         `json:"sla_hours,omitempty"`
	Assignment     AssignmentConfig `json:"assignment"`
	Gate           []GateRule       `json:"gate,omitempty"`
	FailurePolicy  FailurePolicy    `json:"failure_policy" validate:"omitempty,oneof=pause skip_after_retry compensate"`
	RetryLimit     int              `json:"retry_limit,omitempty"`
	SubWorkflowRef *string          `json:"sub_workflow_ref,omitempty"` // Lineage ID of the child template
}

// IsEntry reports whether the stage has no predecessors.
func (s *StageDefinition) IsEntry() bool {
	return len(s.Predecessors) == 0
}

// IsExit reports whether the stage has no successors.
func (s *StageDefinition) IsExit() bool {
	return len(s.Successors) == 0
}
