package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmill/flowmill/pkg/events"
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/otelhelper"
)

// PauseInstance halts a running instance with a mandatory reason. Active
// stages move to paused; no stage transition is accepted until resume.
func (e *Engine) PauseInstance(ctx context.Context, instanceID, reason, pausedBy string) ([]events.Event, error) {
	ctx, span := e.tracer.Start(ctx, "engine.PauseInstance", trace.WithAttributes(
		attribute.String(otelhelper.InstanceIDKey, instanceID),
	))
	defer span.End()

	if reason == "" {
		return nil, ErrReasonRequired
	}

	evs, err := e.withInstance(ctx, instanceID, func(instance *models.WorkflowInstance, _ *models.StageGraph, _ *models.WorkflowTemplate) ([]events.Event, bool, error) {
		if instance.IsTerminal() {
			return nil, false, ErrInstanceTerminal
		}

		if instance.Status != models.InstanceStatusRunning {
			return nil, false, ErrInstanceNotRunning
		}

		instance.Status = models.InstanceStatusPaused
		instance.PauseReason = reason

		for _, stage := range instance.Stages {
			if stage.Status == models.StageStatusActive {
				stage.Status = models.StageStatusPaused
			}
		}

		e.logger.InfoContext(ctx, "Instance paused",
			"instance_id", instance.ID, "reason", reason, "paused_by", pausedBy)

		return []events.Event{events.InstancePaused{
			BaseEvent: events.NewBaseEvent(events.InstancePausedEvent, instance.ID),
			Reason:    reason,
			PausedBy:  pausedBy,
		}}, true, nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return evs, nil
}

// ResumeInstance returns a paused instance to running and re-activates its
// paused and failed stages. Activation timestamps, due dates and attempt
// counts carry over unchanged; no retry budget is granted by resuming.
func (e *Engine) ResumeInstance(ctx context.Context, instanceID, reason, resumedBy string) ([]events.Event, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ResumeInstance", trace.WithAttributes(
		attribute.String(otelhelper.InstanceIDKey, instanceID),
	))
	defer span.End()

	if reason == "" {
		return nil, ErrReasonRequired
	}

	evs, err := e.withInstance(ctx, instanceID, func(instance *models.WorkflowInstance, graph *models.StageGraph, _ *models.WorkflowTemplate) ([]events.Event, bool, error) {
		if instance.IsTerminal() {
			return nil, false, ErrInstanceTerminal
		}

		if instance.Status != models.InstanceStatusPaused {
			return nil, false, ErrInstanceNotPaused
		}

		instance.Status = models.InstanceStatusRunning
		instance.PauseReason = ""

		var (
			reactivated []string
			evs         []events.Event
		)

		for _, stage := range instance.Stages {
			if stage.Status != models.StageStatusPaused && stage.Status != models.StageStatusFailed {
				continue
			}

			stage.Status = models.StageStatusActive
			reactivated = append(reactivated, stage.ID)

			evs = append(evs, events.StageActivated{
				BaseEvent:             events.NewBaseEvent(events.StageActivatedEvent, instance.ID),
				StageInstanceID:       stage.ID,
				StageDefinitionID:     stage.StageDefinitionID,
				Assignees:             stage.Assignees,
				NeedsManualAssignment: stage.NeedsManualAssignment,
				DueAt:                 stage.DueAt,
			})
		}

		evs = append([]events.Event{events.InstanceResumed{
			BaseEvent:        events.NewBaseEvent(events.InstanceResumedEvent, instance.ID),
			Reason:           reason,
			ResumedBy:        resumedBy,
			ReactivatedStage: reactivated,
		}}, evs...)

		e.logger.InfoContext(ctx, "Instance resumed",
			"instance_id", instance.ID, "reason", reason,
			"resumed_by", resumedBy, "reactivated_stages", len(reactivated))

		return evs, true, nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return evs, nil
}

// CancelInstance terminalizes a non-terminal instance. Every stage that has
// not finished moves to skipped; subsequent stage operations are rejected.
func (e *Engine) CancelInstance(ctx context.Context, instanceID, reason string) ([]events.Event, error) {
	ctx, span := e.tracer.Start(ctx, "engine.CancelInstance", trace.WithAttributes(
		attribute.String(otelhelper.InstanceIDKey, instanceID),
	))
	defer span.End()

	if reason == "" {
		return nil, ErrReasonRequired
	}

	evs, err := e.withInstance(ctx, instanceID, func(instance *models.WorkflowInstance, _ *models.StageGraph, _ *models.WorkflowTemplate) ([]events.Event, bool, error) {
		if instance.IsTerminal() {
			return nil, false, ErrInstanceTerminal
		}

		now := e.now().UTC()

		var (
			skipped []string
			evs     []events.Event
		)

		for _, stage := range instance.Stages {
			if stage.IsTerminal() {
				continue
			}

			stage.Status = models.StageStatusSkipped
			stage.FinishedAt = &now
			skipped = append(skipped, stage.ID)

			evs = append(evs, events.StageSkipped{
				BaseEvent:         events.NewBaseEvent(events.StageSkippedEvent, instance.ID),
				StageInstanceID:   stage.ID,
				StageDefinitionID: stage.StageDefinitionID,
				Reason:            reason,
			})
		}

		instance.Status = models.InstanceStatusCancelled
		instance.PauseReason = ""
		instance.FinishedAt = &now

		evs = append(evs, events.InstanceCancelled{
			BaseEvent:     events.NewBaseEvent(events.InstanceCancelledEvent, instance.ID),
			Reason:        reason,
			SkippedStages: skipped,
		})

		e.logger.InfoContext(ctx, "Instance cancelled",
			"instance_id", instance.ID, "reason", reason, "skipped_stages", len(skipped))

		return evs, true, nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return evs, nil
}
