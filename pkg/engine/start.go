package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmill/flowmill/pkg/events"
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/otelhelper"
)

// StartInstance creates a running instance from a published template version
// and activates every entry stage. The template version is locked into the
// instance forever; later publishes in the lineage never affect it.
func (e *Engine) StartInstance(ctx context.Context, templateID string, subject models.SubjectRef) (*models.WorkflowInstance, []events.Event, error) {
	ctx, span := e.tracer.Start(ctx, "engine.StartInstance", trace.WithAttributes(
		attribute.String(otelhelper.TemplateIDKey, templateID),
		attribute.String(otelhelper.SubjectTypeKey, subject.EntityType),
		attribute.String(otelhelper.SubjectIDKey, subject.EntityID),
	))
	defer span.End()

	instance, evs, err := e.startInstance(ctx, templateID, subject)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, instance.ID))

	return instance, evs, nil
}

func (e *Engine) startInstance(ctx context.Context, templateID string, subject models.SubjectRef) (*models.WorkflowInstance, []events.Event, error) {
	if !subject.Valid() {
		return nil, nil, ErrInvalidSubjectRef
	}

	template, err := e.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, nil, err
	}

	if !template.IsPublished() {
		return nil, nil, ErrTemplateNotPublished
	}

	graph, err := models.BuildGraph(template.Stages)
	if err != nil {
		return nil, nil, err
	}

	now := e.now().UTC()

	instance := &models.WorkflowInstance{
		ID:              uuid.New().String(),
		OrganizationID:  template.OrganizationID,
		TemplateID:      template.ID,
		LineageID:       template.LineageID,
		TemplateVersion: template.Version,
		Subject:         subject,
		Status:          models.InstanceStatusRunning,
		SLAStatus:       models.SLAOnTrack,
		StartedAt:       now,
	}

	if template.WorkflowSLA != nil {
		due := now.Add(time.Duration(*template.WorkflowSLA * float64(time.Hour)))
		instance.DueAt = &due
	}

	evs := []events.Event{events.InstanceStarted{
		BaseEvent:       events.NewBaseEvent(events.InstanceStartedEvent, instance.ID),
		TemplateID:      template.ID,
		LineageID:       template.LineageID,
		TemplateVersion: template.Version,
		Subject:         subject,
		EntryStages:     graph.Entries(),
	}}

	for _, entryID := range graph.Entries() {
		stage := e.materializeStage(instance, entryID)
		evs = append(evs, e.activateStage(ctx, instance, stage, graph.Stage(entryID)))
	}

	if err := e.persistence.Instances().Save(ctx, instance); err != nil {
		return nil, nil, err
	}

	e.logger.InfoContext(ctx, "Instance started",
		"instance_id", instance.ID,
		"template_id", template.ID,
		"template_version", template.Version,
		"entry_stages", len(graph.Entries()))

	e.publish(ctx, instance.ID, evs)

	return instance, evs, nil
}
