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

// InstanceRepository stores workflow instances (with their stage instances
// embedded) as JSON files under <root>/instances.
type InstanceRepository struct {
	root string
	mu   sync.Mutex
}

// NewInstanceRepository creates a new file-backed instance repository.
func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

func (ir *InstanceRepository) dir() string {
	return filepath.Join(ir.root, "instances")
}

func (ir *InstanceRepository) path(id string) string {
	return filepath.Join(ir.dir(), id+".json")
}

// Save persists an instance, enforcing the optimistic revision stamp: the
// incoming revision must match the stored one. The stored revision is bumped
// on every successful save.
func (ir *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	if err := os.MkdirAll(ir.dir(), 0o755); err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	existing, err := ir.read(instance.ID)
	if err != nil && !persistence.IsInstanceNotFound(err) {
		return err
	}

	if existing != nil && existing.Revision != instance.Revision {
		return persistence.NewInstanceError("Save", instance.ID, persistence.ErrRevisionConflict)
	}

	instance.Revision++

	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		instance.Revision--

		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	if err := os.WriteFile(ir.path(instance.ID), data, 0o600); err != nil {
		instance.Revision--

		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	return nil
}

func (ir *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	return ir.read(id)
}

func (ir *InstanceRepository) read(id string) (*models.WorkflowInstance, error) {
	data, err := os.ReadFile(ir.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	var instance models.WorkflowInstance
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, persistence.NewInstanceError("GetByID", id, fmt.Errorf("corrupt instance file: %w", err))
	}

	return &instance, nil
}

func (ir *InstanceRepository) FindByStageInstanceID(ctx context.Context, stageInstanceID string) (*models.WorkflowInstance, error) {
	instances, err := ir.all()
	if err != nil {
		return nil, err
	}

	for _, instance := range instances {
		if instance.StageByID(stageInstanceID) != nil {
			return instance, nil
		}
	}

	return nil, persistence.NewInstanceError("FindByStageInstanceID", stageInstanceID, persistence.ErrInstanceNotFound)
}

func (ir *InstanceRepository) FindBySubject(ctx context.Context, organizationID string, subject models.SubjectRef) ([]*models.WorkflowInstance, error) {
	instances, err := ir.all()
	if err != nil {
		return nil, err
	}

	result := make([]*models.WorkflowInstance, 0)

	for _, instance := range instances {
		if instance.OrganizationID == organizationID && instance.Subject == subject {
			result = append(result, instance)
		}
	}

	return result, nil
}

func (ir *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	instances, err := ir.all()
	if err != nil {
		return nil, err
	}

	result := make([]*models.WorkflowInstance, 0)

	for _, instance := range instances {
		if instance.Status == status {
			result = append(result, instance)
		}
	}

	return result, nil
}

func (ir *InstanceRepository) all() ([]*models.WorkflowInstance, error) {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	root := os.DirFS(ir.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, err
	}

	instances := make([]*models.WorkflowInstance, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		instance, err := ir.read(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	return instances, nil
}
