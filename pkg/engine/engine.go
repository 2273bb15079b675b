// Package engine implements the workflow transition engine: instance start,
// stage completion with gate checks, fork/join propagation, failure policies
// and lifecycle operations. All transitions of one instance serialize behind
// a per-instance lock; persistence adds an optimistic revision stamp for
// multi-replica deployments.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flowmill/flowmill/pkg/assignment"
	"github.com/flowmill/flowmill/pkg/events"
	"github.com/flowmill/flowmill/pkg/eventbus"
	"github.com/flowmill/flowmill/pkg/gate"
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/otelhelper"
	"github.com/flowmill/flowmill/pkg/persistence"
	"github.com/flowmill/flowmill/pkg/protocol"
	"github.com/flowmill/flowmill/pkg/sla"
)

// defaultSaveRetries bounds re-reads after an optimistic revision conflict
// before the operation is surfaced as failed.
const defaultSaveRetries = 3

type Config struct {
	Persistence persistence.Persistence
	Resolver    *assignment.Resolver
	Gates       *gate.Evaluator
	Tracker     *sla.Tracker

	// EventBus receives domain events after a transition persists. Optional;
	// delivery is best-effort and never rolls back a transition.
	EventBus eventbus.EventPublisher

	// Subjects exposes read-only fields of the business entity an instance
	// drives. Optional; gates and strategies see empty fields without it.
	Subjects protocol.SubjectProvider

	// Compensator backs the compensate failure policy. Optional.
	Compensator protocol.Compensator

	Logger *slog.Logger
	Tracer trace.Tracer

	// Clock defaults to time.Now. Injected by tests and the SLA scanner.
	Clock func() time.Time

	SaveRetries int
}

type Engine struct {
	persistence persistence.Persistence
	resolver    *assignment.Resolver
	gates       *gate.Evaluator
	tracker     *sla.Tracker
	bus         eventbus.EventPublisher
	subjects    protocol.SubjectProvider
	compensator protocol.Compensator
	locks       *lockTable
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	saveRetries int
}

func NewEngine(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if cfg.SaveRetries <= 0 {
		cfg.SaveRetries = defaultSaveRetries
	}

	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("engine")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		persistence: cfg.Persistence,
		resolver:    cfg.Resolver,
		gates:       cfg.Gates,
		tracker:     cfg.Tracker,
		bus:         cfg.EventBus,
		subjects:    cfg.Subjects,
		compensator: cfg.Compensator,
		locks:       newLockTable(),
		logger:      cfg.Logger.With("module", "engine"),
		tracer:      cfg.Tracer,
		now:         cfg.Clock,
		saveRetries: cfg.SaveRetries,
	}
}

// opFunc mutates a freshly loaded instance. It returns the events the
// transition produced, whether the instance must be saved, and the error to
// surface to the caller. A GateRejectedError still persists (the failure
// reason is recorded on the stage) but is returned to the caller.
type opFunc func(instance *models.WorkflowInstance, graph *models.StageGraph, template *models.WorkflowTemplate) ([]events.Event, bool, error)

// withInstance runs fn under the instance's serialization lock, retrying the
// load-mutate-save cycle on optimistic revision conflicts from concurrent
// replicas.
func (e *Engine) withInstance(ctx context.Context, instanceID string, fn opFunc) ([]events.Event, error) {
	release := e.locks.acquire(instanceID)
	defer release()

	var lastErr error

	for attempt := 0; attempt < e.saveRetries; attempt++ {
		instance, err := e.persistence.Instances().GetByID(ctx, instanceID)
		if err != nil {
			return nil, err
		}

		template, err := e.persistence.Templates().GetByID(ctx, instance.TemplateID)
		if err != nil {
			return nil, err
		}

		graph, err := models.BuildGraph(template.Stages)
		if err != nil {
			return nil, err
		}

		evs, dirty, opErr := fn(instance, graph, template)

		if opErr != nil && !IsGateRejected(opErr) {
			return nil, opErr
		}

		if !dirty {
			return evs, opErr
		}

		if err := e.persistence.Instances().Save(ctx, instance); err != nil {
			if persistence.IsRevisionConflict(err) {
				lastErr = err

				continue
			}

			return nil, err
		}

		e.publish(ctx, instanceID, evs)

		return evs, opErr
	}

	return nil, lastErr
}

// publish delivers events best-effort after the transition persisted.
func (e *Engine) publish(ctx context.Context, instanceID string, evs []events.Event) {
	if e.bus == nil {
		return
	}

	for _, event := range evs {
		if err := e.bus.Publish(ctx, instanceID, event); err != nil {
			e.logger.WarnContext(ctx, "Failed to publish event",
				"event_type", event.GetType(), "instance_id", instanceID, "error", err)
		}
	}
}

// stageContext assembles the read-only context handed to assignment
// strategies and gate rules. Subject field lookup failures degrade to empty
// fields.
func (e *Engine) stageContext(ctx context.Context, instance *models.WorkflowInstance, stageDefinitionID string) models.StageContext {
	fields := map[string]any{}

	if e.subjects != nil {
		resolved, err := e.subjects.SubjectFields(ctx, instance.Subject)
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to resolve subject fields",
				"instance_id", instance.ID, "error", err)
		} else if resolved != nil {
			fields = resolved
		}
	}

	return models.StageContext{
		OrganizationID:    instance.OrganizationID,
		WorkflowInstance:  instance.ID,
		StageDefinitionID: stageDefinitionID,
		Subject:           instance.Subject,
		SubjectFields:     fields,
	}
}

// materializeStage creates the pending stage instance for a definition.
func (e *Engine) materializeStage(instance *models.WorkflowInstance, definitionID string) *models.StageInstance {
	stage := &models.StageInstance{
		ID:                uuid.New().String(),
		WorkflowInstance:  instance.ID,
		StageDefinitionID: definitionID,
		Status:            models.StageStatusPending,
		SLAStatus:         models.SLAOnTrack,
	}

	instance.Stages = append(instance.Stages, stage)

	return stage
}

// activateStage transitions a pending stage to active: stamps the activation
// time, fixes the stage due date and resolves assignment.
func (e *Engine) activateStage(ctx context.Context, instance *models.WorkflowInstance, stage *models.StageInstance, def *models.StageDefinition) events.Event {
	now := e.now().UTC()

	stage.Status = models.StageStatusActive
	stage.ActivatedAt = &now
	stage.SLAStatus = models.SLAOnTrack

	if def.SLAHours != nil {
		due := now.Add(time.Duration(*def.SLAHours * float64(time.Hour)))
		stage.DueAt = &due
	}

	resolution := e.resolver.Resolve(ctx, def.Assignment, e.stageContext(ctx, instance, def.ID))
	stage.Assignees = resolution.Assignees
	stage.NeedsManualAssignment = resolution.NeedsManual

	event := events.StageActivated{
		BaseEvent:             events.NewBaseEvent(events.StageActivatedEvent, instance.ID),
		StageInstanceID:       stage.ID,
		StageDefinitionID:     def.ID,
		Assignees:             stage.Assignees,
		NeedsManualAssignment: stage.NeedsManualAssignment,
		DueAt:                 stage.DueAt,
	}

	e.logger.InfoContext(ctx, "Stage activated",
		"instance_id", instance.ID,
		"stage_definition_id", def.ID,
		"assignees", len(stage.Assignees),
		"needs_manual_assignment", stage.NeedsManualAssignment)

	return event
}

// advanceFrom evaluates the successors of a finished stage. Each successor
// materializes as soon as one predecessor finishes and activates exactly once,
// when every predecessor satisfies the join.
func (e *Engine) advanceFrom(ctx context.Context, instance *models.WorkflowInstance, graph *models.StageGraph, definitionID string) ([]*models.StageInstance, []events.Event) {
	var (
		activated []*models.StageInstance
		evs       []events.Event
	)

	for _, successorID := range graph.Successors(definitionID) {
		state := instance.StageState(successorID)
		if state == nil {
			state = e.materializeStage(instance, successorID)
		}

		if state.Status != models.StageStatusPending {
			continue
		}

		if !e.joinSatisfied(instance, graph, successorID) {
			continue
		}

		evs = append(evs, e.activateStage(ctx, instance, state, graph.Stage(successorID)))
		activated = append(activated, state)
	}

	return activated, evs
}

// joinSatisfied implements AND-join semantics: every predecessor must have a
// materialized stage instance in a state that counts as done.
func (e *Engine) joinSatisfied(instance *models.WorkflowInstance, graph *models.StageGraph, definitionID string) bool {
	for _, predecessorID := range graph.Predecessors(definitionID) {
		state := instance.StageState(predecessorID)
		if state == nil || !state.SatisfiesJoin() {
			return false
		}
	}

	return true
}

// maybeComplete terminalizes the instance once every stage in the graph has a
// materialized stage instance in a terminal state.
func (e *Engine) maybeComplete(ctx context.Context, instance *models.WorkflowInstance, graph *models.StageGraph) []events.Event {
	if instance.Status != models.InstanceStatusRunning {
		return nil
	}

	for _, definitionID := range graph.Stages() {
		state := instance.StageState(definitionID)
		if state == nil || !state.IsTerminal() {
			return nil
		}
	}

	now := e.now().UTC()
	instance.Status = models.InstanceStatusCompleted
	instance.FinishedAt = &now

	e.logger.InfoContext(ctx, "Instance completed",
		"instance_id", instance.ID, "duration", now.Sub(instance.StartedAt))

	return []events.Event{events.InstanceCompleted{
		BaseEvent: events.NewBaseEvent(events.InstanceCompletedEvent, instance.ID),
		Duration:  now.Sub(instance.StartedAt),
	}}
}

// refreshSLALocked recomputes SLA levels for the instance and its active
// stages. Levels only escalate; an event is emitted per level transition, so
// recomputing at the same logical time is a no-op.
func (e *Engine) refreshSLALocked(instance *models.WorkflowInstance) []events.Event {
	now := e.now().UTC()

	var evs []events.Event

	if instance.Status == models.InstanceStatusRunning && instance.DueAt != nil {
		status := e.tracker.ComputeStatus(instance.StartedAt, *instance.DueAt, now)
		if status.Level.Rank() > instance.SLAStatus.Rank() {
			evs = append(evs, events.SLAStatusChanged{
				BaseEvent:    events.NewBaseEvent(events.SLAStatusChangedEvent, instance.ID),
				Previous:     instance.SLAStatus,
				Current:      status.Level,
				HoursOverdue: status.HoursOverdue,
			})
			instance.SLAStatus = status.Level
		}
	}

	for _, stage := range instance.Stages {
		if stage.Status != models.StageStatusActive || stage.DueAt == nil || stage.ActivatedAt == nil {
			continue
		}

		status := e.tracker.ComputeStatus(*stage.ActivatedAt, *stage.DueAt, now)
		if status.Level.Rank() > stage.SLAStatus.Rank() {
			evs = append(evs, events.SLAStatusChanged{
				BaseEvent:       events.NewBaseEvent(events.SLAStatusChangedEvent, instance.ID),
				StageInstanceID: stage.ID,
				Previous:        stage.SLAStatus,
				Current:         status.Level,
				HoursOverdue:    status.HoursOverdue,
			})
			stage.SLAStatus = status.Level
		}
	}

	return evs
}

// RefreshSLA recomputes SLA levels for one instance under its lock and
// persists only when a level changed. Called by the scanner sweep.
func (e *Engine) RefreshSLA(ctx context.Context, instanceID string) ([]events.Event, error) {
	ctx, span := e.tracer.Start(ctx, "engine.RefreshSLA", trace.WithAttributes(
		attribute.String(otelhelper.InstanceIDKey, instanceID),
	))
	defer span.End()

	evs, err := e.withInstance(ctx, instanceID, func(instance *models.WorkflowInstance, _ *models.StageGraph, _ *models.WorkflowTemplate) ([]events.Event, bool, error) {
		changes := e.refreshSLALocked(instance)

		return changes, len(changes) > 0, nil
	})
	if err != nil {
		// A vanished instance between list and refresh is not an error.
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, nil
		}

		otelhelper.SetError(span, err)

		return nil, err
	}

	return evs, nil
}
