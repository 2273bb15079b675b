package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusRunning   InstanceStatus = "running"
	InstanceStatusPaused    InstanceStatus = "paused"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// StageStatus represents the runtime state of one stage instance.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
	StageStatusSkipped   StageStatus = "skipped"
	StageStatusFailed    StageStatus = "failed"
	StageStatusPaused    StageStatus = "paused"
)

// SubjectRef is a polymorphic reference to the business entity an instance
// drives (a case, investigation, disclosure, ...).
type SubjectRef struct {
	EntityType string `json:"entity_type" validate:"required"`
	EntityID   string `json:"entity_id"   validate:"required"`
}

// Valid reports whether both parts of the reference are set.
func (r SubjectRef) Valid() bool {
	return r.EntityType != "" && r.EntityID != ""
}

// WorkflowInstance is one running execution of a published template version
// against a subject. TemplateVersion is locked at creation and never changes,
// even if the lineage is republished while the instance is in flight.
type WorkflowInstance struct {
	ID              string           `json:"id"`
	OrganizationID  string           `json:"organization_id"`
	TemplateID      string           `json:"template_id"`
	LineageID       string           `json:"lineage_id"`
	TemplateVersion int              `json:"template_version"`
	Subject         SubjectRef       `json:"subject"`
	Status          InstanceStatus   `json:"status"`
	SLAStatus       SLAStatus        `json:"sla_status"`
	StartedAt       time.Time        `json:"started_at"`
	DueAt           *time.Time       `json:"due_at,omitempty"` // Fixed at start from the template's workflow SLA
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
	PauseReason     string           `json:"pause_reason,omitempty"`
	Stages          []*StageInstance `json:"stages"`

	// Revision supports optimistic concurrency in persistence layers that
	// use version stamps instead of row locks.
	Revision int64 `json:"revision"`
}

// StageState returns the stage instance for a stage definition ID, or nil
// if the stage has not been materialized yet.
func (i *WorkflowInstance) StageState(stageDefinitionID string) *StageInstance {
	for _, stage := range i.Stages {
		if stage.StageDefinitionID == stageDefinitionID {
			return stage
		}
	}

	return nil
}

// StageByID returns the stage instance with the given instance ID, or nil.
func (i *WorkflowInstance) StageByID(stageInstanceID string) *StageInstance {
	for _, stage := range i.Stages {
		if stage.ID == stageInstanceID {
			return stage
		}
	}

	return nil
}

// IsTerminal reports whether the instance reached a final state. Terminal
// instances accept no further stage mutation.
func (i *WorkflowInstance) IsTerminal() bool {
	return i.Status == InstanceStatusCompleted || i.Status == InstanceStatusCancelled
}

// StageInstance is the per-execution runtime record of one stage definition.
type StageInstance struct {
	ID                string      `json:"id"`
	WorkflowInstance  string      `json:"workflow_instance_id"`
	StageDefinitionID string      `json:"stage_definition_id"`
	Status            StageStatus `json:"status"`
	SLAStatus         SLAStatus   `json:"sla_status"`
	ActivatedAt       *time.Time  `json:"activated_at,omitempty"`
	DueAt             *time.Time  `json:"due_at,omitempty"` // Fixed at activation from the stage SLA
	FinishedAt        *time.Time  `json:"finished_at,omitempty"`

	// Assignees is ordered: strategies that rank candidates put the primary
	// assignee first. NeedsManualAssignment flags activation without any
	// resolved assignee (directory timeout or empty candidate pool).
	Assignees             []string `json:"assignees,omitempty"`
	NeedsManualAssignment bool     `json:"needs_manual_assignment,omitempty"`

	AttemptCount      int            `json:"attempt_count"`
	Outcome           map[string]any `json:"outcome,omitempty"`
	GateFailureReason string         `json:"gate_failure_reason,omitempty"`
	FailureReason     string         `json:"failure_reason,omitempty"`
}

// IsTerminal reports whether the stage reached a final state.
func (s *StageInstance) IsTerminal() bool {
	return s.Status == StageStatusCompleted || s.Status == StageStatusSkipped
}

// SatisfiesJoin reports whether this stage counts as "done" for successor
// join evaluation. AND-join semantics: completed and skipped both satisfy.
func (s *StageInstance) SatisfiesJoin() bool {
	return s.Status == StageStatusCompleted || s.Status == StageStatusSkipped
}
