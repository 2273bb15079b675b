package engine

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmill/flowmill/pkg/events"
	"github.com/flowmill/flowmill/pkg/gate"
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/otelhelper"
)

// ReportResult describes what a successful stage completion changed.
type ReportResult struct {
	Instance *models.WorkflowInstance

	// Activated lists the successor stages this completion unlocked. A join
	// successor appears only when its last predecessor finished.
	Activated []*models.StageInstance

	Events []events.Event
}

// ReportStageOutcome records an outcome against an active stage. The stage's
// gate evaluates first; on rejection the stage stays active, the collected
// failures persist on it and a GateRejectedError is returned. On pass the
// stage completes and successors are evaluated under AND-join semantics.
func (e *Engine) ReportStageOutcome(ctx context.Context, stageInstanceID string, outcome map[string]any) (*ReportResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ReportStageOutcome", trace.WithAttributes(
		attribute.String(otelhelper.StageInstanceIDKey, stageInstanceID),
	))
	defer span.End()

	owner, err := e.persistence.Instances().FindByStageInstanceID(ctx, stageInstanceID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, owner.ID))

	result := &ReportResult{}

	evs, err := e.withInstance(ctx, owner.ID, func(instance *models.WorkflowInstance, graph *models.StageGraph, _ *models.WorkflowTemplate) ([]events.Event, bool, error) {
		result.Instance = instance
		result.Activated = nil

		return e.completeStage(ctx, instance, graph, stageInstanceID, outcome, result)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	result.Events = evs

	return result, nil
}

func (e *Engine) completeStage(ctx context.Context, instance *models.WorkflowInstance, graph *models.StageGraph, stageInstanceID string, outcome map[string]any, result *ReportResult) ([]events.Event, bool, error) {
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
	if def == nil {
		return nil, false, fmt.Errorf("stage definition %s missing from template", stage.StageDefinitionID)
	}

	decision := e.gates.Evaluate(ctx, def.Gate, gate.Input{
		Outcome:      outcome,
		StageContext: e.stageContext(ctx, instance, def.ID),
		ActivatedAt:  stage.ActivatedAt,
		Now:          e.now().UTC(),
	})

	if !decision.Pass {
		stage.GateFailureReason = formatFailures(decision.Failures)

		e.logger.InfoContext(ctx, "Gate rejected stage outcome",
			"instance_id", instance.ID,
			"stage_instance_id", stage.ID,
			"failures", len(decision.Failures))

		return nil, true, &GateRejectedError{StageInstanceID: stage.ID, Failures: decision.Failures}
	}

	now := e.now().UTC()
	stage.Status = models.StageStatusCompleted
	stage.Outcome = outcome
	stage.GateFailureReason = ""
	stage.FinishedAt = &now

	evs := []events.Event{events.StageCompleted{
		BaseEvent:         events.NewBaseEvent(events.StageCompletedEvent, instance.ID),
		StageInstanceID:   stage.ID,
		StageDefinitionID: def.ID,
		Outcome:           outcome,
	}}

	activated, activationEvents := e.advanceFrom(ctx, instance, graph, def.ID)
	result.Activated = activated
	evs = append(evs, activationEvents...)

	evs = append(evs, e.maybeComplete(ctx, instance, graph)...)
	evs = append(evs, e.refreshSLALocked(instance)...)

	return evs, true, nil
}

func formatFailures(failures []models.RuleFailure) string {
	reasons := make([]string, 0, len(failures))
	for _, failure := range failures {
		reasons = append(reasons, fmt.Sprintf("%s: %s", failure.Kind, failure.Reason))
	}

	return strings.Join(reasons, "; ")
}
