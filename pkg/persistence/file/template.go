package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
)

// TemplateRepository stores templates as JSON files under <root>/templates.
type TemplateRepository struct {
	root string
	mu   sync.RWMutex
}

// NewTemplateRepository creates a new file-backed template repository.
func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: root}
}

func (tr *TemplateRepository) dir() string {
	return filepath.Join(tr.root, "templates")
}

func (tr *TemplateRepository) path(id string) string {
	return filepath.Join(tr.dir(), id+".json")
}

func (tr *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if err := os.MkdirAll(tr.dir(), 0o755); err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	if err := os.WriteFile(tr.path(template.ID), data, 0o600); err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

func (tr *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	return tr.read(id)
}

func (tr *TemplateRepository) read(id string) (*models.WorkflowTemplate, error) {
	data, err := os.ReadFile(tr.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	var template models.WorkflowTemplate
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, persistence.NewTemplateError("GetByID", id, fmt.Errorf("corrupt template file: %w", err))
	}

	return &template, nil
}

func (tr *TemplateRepository) GetByVersion(ctx context.Context, organizationID, lineageID string, version int) (*models.WorkflowTemplate, error) {
	templates, err := tr.all()
	if err != nil {
		return nil, err
	}

	for _, template := range templates {
		if template.OrganizationID == organizationID &&
			template.LineageID == lineageID &&
			template.Version == version {
			return template, nil
		}
	}

	return nil, &persistence.TemplateError{Op: "GetByVersion", LineageID: lineageID, Err: persistence.ErrTemplateNotFound}
}

func (tr *TemplateRepository) CurrentPublished(ctx context.Context, organizationID, lineageID string) (*models.WorkflowTemplate, error) {
	templates, err := tr.all()
	if err != nil {
		return nil, err
	}

	var latest *models.WorkflowTemplate

	for _, template := range templates {
		if template.OrganizationID != organizationID || template.LineageID != lineageID {
			continue
		}

		if template.Status != models.TemplateStatusPublished {
			continue
		}

		if latest == nil || template.Version > latest.Version {
			latest = template
		}
	}

	if latest == nil {
		return nil, &persistence.TemplateError{Op: "CurrentPublished", LineageID: lineageID, Err: persistence.ErrTemplateNotFound}
	}

	return latest, nil
}

func (tr *TemplateRepository) List(ctx context.Context, organizationID string) ([]*models.WorkflowTemplate, error) {
	templates, err := tr.all()
	if err != nil {
		return nil, err
	}

	result := make([]*models.WorkflowTemplate, 0, len(templates))

	for _, template := range templates {
		if organizationID == "" || template.OrganizationID == organizationID {
			result = append(result, template)
		}
	}

	return result, nil
}

func (tr *TemplateRepository) all() ([]*models.WorkflowTemplate, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	root := os.DirFS(tr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, err
	}

	templates := make([]*models.WorkflowTemplate, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		template, err := tr.read(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		templates = append(templates, template)
	}

	return templates, nil
}
