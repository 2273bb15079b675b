package services

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
	"github.com/flowmill/flowmill/pkg/registry"
)

// Publishing handles template publication and archival within a lineage.
// Publishing is the validation chokepoint: a version that passes here is
// immutable and structurally sound for the rest of its life, so instance
// execution never re-validates.
type Publishing struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

// NewPublishing creates a new template publishing service.
func NewPublishing(persistence persistence.Persistence, registry *registry.Registry) *Publishing {
	return &Publishing{
		persistence: persistence,
		registry:    registry,
	}
}

// Publish validates a draft and makes it the published version of its
// lineage. A previously published version is archived in the same operation;
// instances already running on it are unaffected.
func (p *Publishing) Publish(ctx context.Context, templateID string) (*models.WorkflowTemplate, error) {
	template, err := p.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if template.Status != models.TemplateStatusDraft {
		return nil, ErrNotDraft
	}

	if err := p.validateForPublishing(template); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	previous, err := p.persistence.Templates().CurrentPublished(ctx, template.OrganizationID, template.LineageID)
	if err != nil && !persistence.IsTemplateNotFound(err) {
		return nil, fmt.Errorf("failed to look up published version: %w", err)
	}

	if previous != nil {
		previous.Status = models.TemplateStatusArchived
		previous.ArchivedAt = &now
		previous.UpdatedAt = now

		if err := p.persistence.Templates().Save(ctx, previous); err != nil {
			return nil, fmt.Errorf("failed to archive version %d: %w", previous.Version, err)
		}
	}

	template.Status = models.TemplateStatusPublished
	template.PublishedAt = &now
	template.UpdatedAt = now

	if err := p.persistence.Templates().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to publish template: %w", err)
	}

	return template, nil
}

// Archive retires the published version of a lineage without replacing it.
// New instances can no longer start from it; running ones keep going.
func (p *Publishing) Archive(ctx context.Context, templateID string) (*models.WorkflowTemplate, error) {
	template, err := p.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if template.Status != models.TemplateStatusPublished {
		return nil, ErrNotPublished
	}

	now := time.Now().UTC()
	template.Status = models.TemplateStatusArchived
	template.ArchivedAt = &now
	template.UpdatedAt = now

	if err := p.persistence.Templates().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to archive template: %w", err)
	}

	return template, nil
}

// validateForPublishing ensures a draft is executable: a valid stage graph
// plus well-formed assignment and gate configuration on every stage.
func (p *Publishing) validateForPublishing(template *models.WorkflowTemplate) error {
	if template == nil {
		return ErrTemplateNil
	}

	if template.Name == "" {
		return ErrTemplateNameRequired
	}

	if len(template.Stages) == 0 {
		return ErrStagesRequired
	}

	if template.WorkflowSLA != nil && *template.WorkflowSLA <= 0 {
		return ErrInvalidSLA
	}

	if _, err := models.BuildGraph(template.Stages); err != nil {
		return err
	}

	for _, stage := range template.Stages {
		if err := p.validateStage(stage); err != nil {
			return fmt.Errorf("stage %s: %w", stage.ID, err)
		}
	}

	return nil
}

func (p *Publishing) validateStage(stage *models.StageDefinition) error {
	if stage.SLAHours != nil && *stage.SLAHours <= 0 {
		return ErrInvalidSLA
	}

	if stage.RetryLimit < 0 {
		return ErrInvalidRetryLimit
	}

	if stage.Kind == models.StageKindSubWorkflow && (stage.SubWorkflowRef == nil || *stage.SubWorkflowRef == "") {
		return ErrMissingSubWorkflowRef
	}

	if err := p.registry.ValidateAssignmentConfig(stage.Assignment); err != nil {
		return err
	}

	for _, rule := range stage.Gate {
		if err := p.registry.ValidateGateRule(rule); err != nil {
			return err
		}
	}

	return nil
}
