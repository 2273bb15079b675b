// Package persistence provides the storage abstraction for workflow
// templates and instances.
package persistence

import (
	"context"

	"github.com/flowmill/flowmill/pkg/models"
)

type Persistence interface {
	Templates() TemplateRepository
	Instances() InstanceRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// TemplateRepository stores workflow templates keyed by ID, with lineage
// lookups keyed by (organization, lineage, version).
type TemplateRepository interface {
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	GetByVersion(ctx context.Context, organizationID, lineageID string, version int) (*models.WorkflowTemplate, error)

	// CurrentPublished returns the published version of a lineage that new
	// instances should use, or ErrTemplateNotFound when none exists.
	CurrentPublished(ctx context.Context, organizationID, lineageID string) (*models.WorkflowTemplate, error)

	List(ctx context.Context, organizationID string) ([]*models.WorkflowTemplate, error)
}

// InstanceRepository stores workflow instances with their stage instances.
// Save enforces optimistic concurrency: the caller's Revision must match the
// stored one or ErrRevisionConflict is returned.
type InstanceRepository interface {
	Save(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)

	// FindByStageInstanceID returns the instance owning the given stage
	// instance, or ErrInstanceNotFound.
	FindByStageInstanceID(ctx context.Context, stageInstanceID string) (*models.WorkflowInstance, error)

	FindBySubject(ctx context.Context, organizationID string, subject models.SubjectRef) ([]*models.WorkflowInstance, error)
	ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error)
}
