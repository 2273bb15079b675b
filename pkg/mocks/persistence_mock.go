package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
)

// MockPersistence is a mock implementation of the persistence.Persistence
// interface.
type MockPersistence struct {
	mock.Mock

	TemplateRepo *MockTemplateRepository
	InstanceRepo *MockInstanceRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		TemplateRepo: &MockTemplateRepository{},
		InstanceRepo: &MockInstanceRepository{},
	}
}

func (m *MockPersistence) Templates() persistence.TemplateRepository {
	return m.TemplateRepo
}

func (m *MockPersistence) Instances() persistence.InstanceRepository {
	return m.InstanceRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockTemplateRepository is a mock implementation of
// persistence.TemplateRepository.
type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	args := m.Called(ctx, template)

	return args.Error(0)
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	args := m.Called(ctx, id)

	if template, ok := args.Get(0).(*models.WorkflowTemplate); ok {
		return template, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *MockTemplateRepository) GetByVersion(ctx context.Context, organizationID, lineageID string, version int) (*models.WorkflowTemplate, error) {
	args := m.Called(ctx, organizationID, lineageID, version)

	if template, ok := args.Get(0).(*models.WorkflowTemplate); ok {
		return template, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *MockTemplateRepository) CurrentPublished(ctx context.Context, organizationID, lineageID string) (*models.WorkflowTemplate, error) {
	args := m.Called(ctx, organizationID, lineageID)

	if template, ok := args.Get(0).(*models.WorkflowTemplate); ok {
		return template, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *MockTemplateRepository) List(ctx context.Context, organizationID string) ([]*models.WorkflowTemplate, error) {
	args := m.Called(ctx, organizationID)

	if templates, ok := args.Get(0).([]*models.WorkflowTemplate); ok {
		return templates, args.Error(1)
	}

	return nil, args.Error(1)
}

// MockInstanceRepository is a mock implementation of
// persistence.InstanceRepository.
type MockInstanceRepository struct {
	mock.Mock
}

func (m *MockInstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	args := m.Called(ctx, instance)

	return args.Error(0)
}

func (m *MockInstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, id)

	if instance, ok := args.Get(0).(*models.WorkflowInstance); ok {
		return instance, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *MockInstanceRepository) FindByStageInstanceID(ctx context.Context, stageInstanceID string) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, stageInstanceID)

	if instance, ok := args.Get(0).(*models.WorkflowInstance); ok {
		return instance, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *MockInstanceRepository) FindBySubject(ctx context.Context, organizationID string, subject models.SubjectRef) ([]*models.WorkflowInstance, error) {
	args := m.Called(ctx, organizationID, subject)

	if instances, ok := args.Get(0).([]*models.WorkflowInstance); ok {
		return instances, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *MockInstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	args := m.Called(ctx, status)

	if instances, ok := args.Get(0).([]*models.WorkflowInstance); ok {
		return instances, args.Error(1)
	}

	return nil, args.Error(1)
}
