package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
)

// TemplateRepository handles template-related database operations. Stage
// definitions are stored as a JSONB document: templates are immutable after
// publish, so there is nothing to update row-by-row.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

const templateColumns = `
	id
  , organization_id
  , lineage_id
  , name
  , description
  , version
  , status
  , stages
  , workflow_sla_hours
  , parent_version_id
  , created_at
  , updated_at
  , published_at
  , archived_at
`

func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	stages, err := json.Marshal(template.Stages)
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	query := `
		INSERT INTO workflow_templates (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			stages = EXCLUDED.stages,
			workflow_sla_hours = EXCLUDED.workflow_sla_hours,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at,
			archived_at = EXCLUDED.archived_at
	`

	_, err = r.db.ExecContext(ctx, query,
		template.ID,
		template.OrganizationID,
		template.LineageID,
		template.Name,
		template.Description,
		template.Version,
		template.Status,
		stages,
		template.WorkflowSLA,
		template.ParentVersionID,
		template.CreatedAt,
		template.UpdatedAt,
		template.PublishedAt,
		template.ArchivedAt,
	)
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates WHERE id = $1`

	template, err := r.scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	return template, nil
}

func (r *TemplateRepository) GetByVersion(ctx context.Context, organizationID, lineageID string, version int) (*models.WorkflowTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM workflow_templates
		WHERE organization_id = $1 AND lineage_id = $2 AND version = $3
	`

	template, err := r.scanTemplate(r.db.QueryRowContext(ctx, query, organizationID, lineageID, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.TemplateError{Op: "GetByVersion", LineageID: lineageID, Err: persistence.ErrTemplateNotFound}
		}

		return nil, &persistence.TemplateError{Op: "GetByVersion", LineageID: lineageID, Err: err}
	}

	return template, nil
}

func (r *TemplateRepository) CurrentPublished(ctx context.Context, organizationID, lineageID string) (*models.WorkflowTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM workflow_templates
		WHERE organization_id = $1 AND lineage_id = $2 AND status = 'published'
		ORDER BY version DESC
		LIMIT 1
	`

	template, err := r.scanTemplate(r.db.QueryRowContext(ctx, query, organizationID, lineageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.TemplateError{Op: "CurrentPublished", LineageID: lineageID, Err: persistence.ErrTemplateNotFound}
		}

		return nil, &persistence.TemplateError{Op: "CurrentPublished", LineageID: lineageID, Err: err}
	}

	return template, nil
}

func (r *TemplateRepository) List(ctx context.Context, organizationID string) ([]*models.WorkflowTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM workflow_templates
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := r.scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TemplateRepository) scanTemplate(row rowScanner) (*models.WorkflowTemplate, error) {
	var (
		template models.WorkflowTemplate
		stages   []byte
	)

	err := row.Scan(
		&template.ID,
		&template.OrganizationID,
		&template.LineageID,
		&template.Name,
		&template.Description,
		&template.Version,
		&template.Status,
		&stages,
		&template.WorkflowSLA,
		&template.ParentVersionID,
		&template.CreatedAt,
		&template.UpdatedAt,
		&template.PublishedAt,
		&template.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stages, &template.Stages); err != nil {
		return nil, fmt.Errorf("failed to decode stages: %w", err)
	}

	return &template, nil
}
