package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmill/flowmill/pkg/events"
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/otelhelper"
)

// FailStage records a failure against an active stage and applies the
// stage's failure policy: pause the instance, retry then skip, or compensate
// then pause. An unset policy behaves like pause.
func (e *Engine) FailStage(ctx context.Context, stageInstanceID, reason string) ([]events.Event, error) {
	ctx, span := e.tracer.Start(ctx, "engine.FailStage", trace.WithAttributes(
		attribute.String(otelhelper.StageInstanceIDKey, stageInstanceID),
	))
	defer span.End()

	if reason == "" {
		return nil, ErrReasonRequired
	}

	owner, err := e.persistence.Instances().FindByStageInstanceID(ctx, stageInstanceID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, owner.ID))

	evs, err := e.withInstance(ctx, owner.ID, func(instance *models.WorkflowInstance, graph *models.StageGraph, _ *models.WorkflowTemplate) ([]events.Event, bool, error) {
		return e.failStage(ctx, instance, graph, stageInstanceID, reason)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return evs, nil
}

func (e *Engine) failStage(ctx context.Context, instance *models.WorkflowInstance, graph *models.StageGraph, stageInstanceID, reason string) ([]events.Event, bool, error) {
	if instance.IsTerminal() {
		return nil, false, ErrInstanceTerminal
	}

	if instance.Status != models.InstanceStatusRunning {
		return nil, false, ErrInstanceNotRunning
	}

	stage := instance.StageByID(stageInstanceID)
	if stage == nil {
		return nil, false, ErrStageNotFound
	}

	if stage.Status != models.StageStatusActive {
		return nil, false, ErrStageNotActive
	}

	def := graph.Stage(stage.StageDefinitionID)

	policy := def.FailurePolicy
	if policy == "" {
		policy = models.FailurePolicyPause
	}

	stage.AttemptCount++
	stage.FailureReason = reason

	evs := []events.Event{events.StageFailed{
		BaseEvent:         events.NewBaseEvent(events.StageFailedEvent, instance.ID),
		StageInstanceID:   stage.ID,
		StageDefinitionID: def.ID,
		Reason:            reason,
		Policy:            policy,
		AttemptCount:      stage.AttemptCount,
	}}

	e.logger.InfoContext(ctx, "Stage failed",
		"instance_id", instance.ID,
		"stage_instance_id", stage.ID,
		"policy", policy,
		"attempt_count", stage.AttemptCount,
		"reason", reason)

	switch policy {
	case models.FailurePolicySkipAfterRetry:
		if stage.AttemptCount <= def.RetryLimit {
			// Stage stays active for the re-attempt.
			return evs, true, nil
		}

		now := e.now().UTC()
		stage.Status = models.StageStatusSkipped
		stage.FinishedAt = &now

		evs = append(evs, events.StageSkipped{
			BaseEvent:         events.NewBaseEvent(events.StageSkippedEvent, instance.ID),
			StageInstanceID:   stage.ID,
			StageDefinitionID: def.ID,
			Reason:            reason,
		})

		// A skipped stage satisfies downstream joins like a completed one.
		_, activationEvents := e.advanceFrom(ctx, instance, graph, def.ID)
		evs = append(evs, activationEvents...)
		evs = append(evs, e.maybeComplete(ctx, instance, graph)...)

		return evs, true, nil

	case models.FailurePolicyCompensate:
		if e.compensator != nil {
			if err := e.compensator.Compensate(ctx, instance, stage, reason); err != nil {
				e.logger.ErrorContext(ctx, "Compensation failed",
					"instance_id", instance.ID, "stage_instance_id", stage.ID, "error", err)
			}
		}

		fallthrough

	default: // pause
		stage.Status = models.StageStatusFailed
		instance.Status = models.InstanceStatusPaused
		instance.PauseReason = reason

		evs = append(evs, events.InstancePaused{
			BaseEvent: events.NewBaseEvent(events.InstancePausedEvent, instance.ID),
			Reason:    reason,
		})

		return evs, true, nil
	}
}
