package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
)

// ErrTemplateNotFound is returned when a template is not found.
var ErrTemplateNotFound = persistence.ErrTemplateNotFound

// Template manages the authoring side of workflow templates: drafts, lineage
// versioning and reads. Publishing lives in the Publishing service.
type Template struct {
	persistence persistence.Persistence
}

// NewTemplate creates a new template service.
func NewTemplate(persistence persistence.Persistence) *Template {
	return &Template{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (t *Template) HealthCheck(ctx context.Context) (string, bool) {
	if t.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := t.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateTemplateRequest carries the fields for a new draft in a new lineage.
type CreateTemplateRequest struct {
	OrganizationID string                    `json:"organization_id"`
	Name           string                    `json:"name"`
	Description    string                    `json:"description"`
	Stages         []*models.StageDefinition `json:"stages"`
	WorkflowSLA    *float64                  `json:"workflow_sla_hours,omitempty"`
}

// CreateDraft starts a new lineage at version 1 in draft status. Structural
// validation is deferred to publish so incomplete drafts can be saved.
func (t *Template) CreateDraft(ctx context.Context, req CreateTemplateRequest) (*models.WorkflowTemplate, error) {
	if req.OrganizationID == "" {
		return nil, ErrEmptyOrganizationID
	}

	if req.Name == "" {
		return nil, ErrTemplateNameRequired
	}

	now := time.Now().UTC()

	template := &models.WorkflowTemplate{
		ID:             uuid.New().String(),
		OrganizationID: req.OrganizationID,
		LineageID:      uuid.New().String(),
		Name:           req.Name,
		Description:    req.Description,
		Version:        1,
		Status:         models.TemplateStatusDraft,
		Stages:         req.Stages,
		WorkflowSLA:    req.WorkflowSLA,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := t.persistence.Templates().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	return template, nil
}

// UpdateTemplateRequest carries the editable fields of a draft. Nil fields
// are left unchanged.
type UpdateTemplateRequest struct {
	Name        *string                   `json:"name,omitempty"`
	Description *string                   `json:"description,omitempty"`
	Stages      []*models.StageDefinition `json:"stages,omitempty"`
	WorkflowSLA *float64                  `json:"workflow_sla_hours,omitempty"`
}

// UpdateDraft modifies a draft in place. Published and archived versions are
// immutable; edits to them go through NewDraftFromVersion.
func (t *Template) UpdateDraft(ctx context.Context, templateID string, req UpdateTemplateRequest) (*models.WorkflowTemplate, error) {
	template, err := t.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	switch template.Status {
	case models.TemplateStatusPublished:
		return nil, ErrCannotModifyPublished
	case models.TemplateStatusArchived:
		return nil, ErrCannotModifyArchived
	case models.TemplateStatusDraft:
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, ErrTemplateNameRequired
		}

		template.Name = *req.Name
	}

	if req.Description != nil {
		template.Description = *req.Description
	}

	if req.Stages != nil {
		template.Stages = req.Stages
	}

	if req.WorkflowSLA != nil {
		template.WorkflowSLA = req.WorkflowSLA
	}

	template.UpdatedAt = time.Now().UTC()

	if err := t.persistence.Templates().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	return template, nil
}

// NewDraftFromVersion copies an existing version into a new draft at the next
// version number of the lineage. The source version is untouched; running
// instances keep executing it.
func (t *Template) NewDraftFromVersion(ctx context.Context, templateID string) (*models.WorkflowTemplate, error) {
	source, err := t.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	nextVersion, err := t.nextVersion(ctx, source.OrganizationID, source.LineageID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	parentID := source.ID

	draft := &models.WorkflowTemplate{
		ID:              uuid.New().String(),
		OrganizationID:  source.OrganizationID,
		LineageID:       source.LineageID,
		Name:            source.Name,
		Description:     source.Description,
		Version:         nextVersion,
		Status:          models.TemplateStatusDraft,
		Stages:          cloneStages(source.Stages),
		WorkflowSLA:     source.WorkflowSLA,
		ParentVersionID: &parentID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := t.persistence.Templates().Save(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	return draft, nil
}

// Get returns a template version by its exact ID.
func (t *Template) Get(ctx context.Context, templateID string) (*models.WorkflowTemplate, error) {
	return t.persistence.Templates().GetByID(ctx, templateID)
}

// GetByVersion returns one version of a lineage.
func (t *Template) GetByVersion(ctx context.Context, organizationID, lineageID string, version int) (*models.WorkflowTemplate, error) {
	return t.persistence.Templates().GetByVersion(ctx, organizationID, lineageID, version)
}

// CurrentPublished returns the published version of a lineage, the one new
// instances should start from.
func (t *Template) CurrentPublished(ctx context.Context, organizationID, lineageID string) (*models.WorkflowTemplate, error) {
	return t.persistence.Templates().CurrentPublished(ctx, organizationID, lineageID)
}

// List returns all template versions of an organization, newest lineage
// versions first.
func (t *Template) List(ctx context.Context, organizationID string) ([]*models.WorkflowTemplate, error) {
	if organizationID == "" {
		return nil, ErrEmptyOrganizationID
	}

	templates, err := t.persistence.Templates().List(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	sort.Slice(templates, func(i, j int) bool {
		if templates[i].LineageID != templates[j].LineageID {
			return templates[i].LineageID < templates[j].LineageID
		}

		return templates[i].Version > templates[j].Version
	})

	return templates, nil
}

// ListLineage returns every version of one lineage, newest first.
func (t *Template) ListLineage(ctx context.Context, organizationID, lineageID string) ([]*models.WorkflowTemplate, error) {
	templates, err := t.persistence.Templates().List(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	versions := make([]*models.WorkflowTemplate, 0)

	for _, template := range templates {
		if template.LineageID == lineageID {
			versions = append(versions, template)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version > versions[j].Version
	})

	return versions, nil
}

func (t *Template) nextVersion(ctx context.Context, organizationID, lineageID string) (int, error) {
	versions, err := t.ListLineage(ctx, organizationID, lineageID)
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, version := range versions {
		if version.Version > highest {
			highest = version.Version
		}
	}

	return highest + 1, nil
}

func cloneStages(stages []*models.StageDefinition) []*models.StageDefinition {
	cloned := make([]*models.StageDefinition, 0, len(stages))

	for _, stage := range stages {
		copied := *stage
		copied.Predecessors = append([]string(nil), stage.Predecessors...)
		copied.Successors = append([]string(nil), stage.Successors...)
		copied.Gate = append([]models.GateRule(nil), stage.Gate...)
		cloned = append(cloned, &copied)
	}

	return cloned
}
