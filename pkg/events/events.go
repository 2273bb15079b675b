// Package events defines event types emitted by the workflow engine for
// audit, notification and search collaborators. Delivery is best-effort and
// never rolls back the state transition that produced an event.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowmill/flowmill/pkg/models"
)

type EventType string

// Kafka topic for engine events.
const Topic = "flowmill.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceStartedEvent   EventType = "instance_started"
	InstancePausedEvent    EventType = "instance_paused"
	InstanceResumedEvent   EventType = "instance_resumed"
	InstanceCompletedEvent EventType = "instance_completed"
	InstanceCancelledEvent EventType = "instance_cancelled"

	StageActivatedEvent EventType = "stage_activated"
	StageCompletedEvent EventType = "stage_completed"
	StageFailedEvent    EventType = "stage_failed"
	StageSkippedEvent   EventType = "stage_skipped"

	SLAStatusChangedEvent EventType = "sla_status_changed"
)

// Event is the narrow contract every emitted event satisfies.
type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, instanceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
		Metadata:   make(map[string]any),
	}
}

type InstanceStarted struct {
	BaseEvent

	TemplateID      string            `json:"template_id"`
	LineageID       string            `json:"lineage_id"`
	TemplateVersion int               `json:"template_version"`
	Subject         models.SubjectRef `json:"subject"`
	EntryStages     []string          `json:"entry_stages"`
}

func (e InstanceStarted) GetType() EventType { return InstanceStartedEvent }

type InstancePaused struct {
	BaseEvent

	Reason   string `json:"reason"`
	PausedBy string `json:"paused_by,omitempty"`
}

func (e InstancePaused) GetType() EventType { return InstancePausedEvent }

type InstanceResumed struct {
	BaseEvent

	Reason           string   `json:"reason"`
	ResumedBy        string   `json:"resumed_by,omitempty"`
	ReactivatedStage []string `json:"reactivated_stages,omitempty"`
}

func (e InstanceResumed) GetType() EventType { return InstanceResumedEvent }

type InstanceCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e InstanceCompleted) GetType() EventType { return InstanceCompletedEvent }

type InstanceCancelled struct {
	BaseEvent

	Reason        string   `json:"reason"`
	SkippedStages []string `json:"skipped_stages,omitempty"`
}

func (e InstanceCancelled) GetType() EventType { return InstanceCancelledEvent }

type StageActivated struct {
	BaseEvent

	StageInstanceID       string     `json:"stage_instance_id"`
	StageDefinitionID     string     `json:"stage_definition_id"`
	Assignees             []string   `json:"assignees,omitempty"`
	NeedsManualAssignment bool       `json:"needs_manual_assignment,omitempty"`
	DueAt                 *time.Time `json:"due_at,omitempty"`
}

func (e StageActivated) GetType() EventType { return StageActivatedEvent }

type StageCompleted struct {
	BaseEvent

	StageInstanceID   string         `json:"stage_instance_id"`
	StageDefinitionID string         `json:"stage_definition_id"`
	Outcome           map[string]any `json:"outcome,omitempty"`
}

func (e StageCompleted) GetType() EventType { return StageCompletedEvent }

type StageFailed struct {
	BaseEvent

	StageInstanceID   string               `json:"stage_instance_id"`
	StageDefinitionID string               `json:"stage_definition_id"`
	Reason            string               `json:"reason"`
	Policy            models.FailurePolicy `json:"policy"`
	AttemptCount      int                  `json:"attempt_count"`
}

func (e StageFailed) GetType() EventType { return StageFailedEvent }

type StageSkipped struct {
	BaseEvent

	StageInstanceID   string `json:"stage_instance_id"`
	StageDefinitionID string `json:"stage_definition_id"`
	Reason            string `json:"reason,omitempty"`
}

func (e StageSkipped) GetType() EventType { return StageSkippedEvent }

// SLAStatusChanged carries both the previous and new level so downstream
// consumers never have to reconstruct the transition.
type SLAStatusChanged struct {
	BaseEvent

	StageInstanceID string           `json:"stage_instance_id,omitempty"` // Empty for whole-instance SLA
	Previous        models.SLAStatus `json:"previous"`
	Current         models.SLAStatus `json:"current"`
	HoursOverdue    float64          `json:"hours_overdue,omitempty"`
}

func (e SLAStatusChanged) GetType() EventType { return SLAStatusChangedEvent }
