package file_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
	"github.com/flowmill/flowmill/pkg/persistence/file"
)

func testTemplate(id, lineageID string, version int, status models.TemplateStatus) *models.WorkflowTemplate {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	return &models.WorkflowTemplate{
		ID:             id,
		OrganizationID: "org-1",
		LineageID:      lineageID,
		Name:           "case handling",
		Version:        version,
		Status:         status,
		Stages: []*models.StageDefinition{
			{
				ID:   "triage",
				Name: "Triage",
				Kind: models.StageKindTask,
				Assignment: models.AssignmentConfig{
					Strategy: models.StrategySpecificUser,
					Params:   map[string]any{"user_id": "alice"},
				},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testInstance(id string) *models.WorkflowInstance {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	return &models.WorkflowInstance{
		ID:              id,
		OrganizationID:  "org-1",
		TemplateID:      "tpl-1",
		LineageID:       "lin-1",
		TemplateVersion: 1,
		Subject:         models.SubjectRef{EntityType: "case", EntityID: "case-1"},
		Status:          models.InstanceStatusRunning,
		SLAStatus:       models.SLAOnTrack,
		StartedAt:       now,
		Stages: []*models.StageInstance{
			{
				ID:                "si-1",
				WorkflowInstance:  id,
				StageDefinitionID: "triage",
				Status:            models.StageStatusActive,
				SLAStatus:         models.SLAOnTrack,
				ActivatedAt:       &now,
			},
		},
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	template := testTemplate("tpl-1", "lin-1", 1, models.TemplateStatusDraft)
	require.NoError(t, store.Templates().Save(ctx, template))

	loaded, err := store.Templates().GetByID(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, template.Name, loaded.Name)
	require.Len(t, loaded.Stages, 1)
	assert.Equal(t, models.StrategySpecificUser, loaded.Stages[0].Assignment.Strategy)

	_, err = store.Templates().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrTemplateNotFound)
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestTemplateLineageLookups(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Templates().Save(ctx, testTemplate("tpl-1", "lin-1", 1, models.TemplateStatusArchived)))
	require.NoError(t, store.Templates().Save(ctx, testTemplate("tpl-2", "lin-1", 2, models.TemplateStatusPublished)))
	require.NoError(t, store.Templates().Save(ctx, testTemplate("tpl-3", "lin-1", 3, models.TemplateStatusDraft)))
	require.NoError(t, store.Templates().Save(ctx, testTemplate("tpl-4", "lin-2", 1, models.TemplateStatusPublished)))

	byVersion, err := store.Templates().GetByVersion(ctx, "org-1", "lin-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "tpl-2", byVersion.ID)

	current, err := store.Templates().CurrentPublished(ctx, "org-1", "lin-1")
	require.NoError(t, err)
	assert.Equal(t, "tpl-2", current.ID, "drafts never count as published")

	_, err = store.Templates().CurrentPublished(ctx, "org-1", "lin-9")
	assert.ErrorIs(t, err, persistence.ErrTemplateNotFound)

	all, err := store.Templates().List(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestInstanceRoundTrip(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	instance := testInstance("wi-1")
	require.NoError(t, store.Instances().Save(ctx, instance))

	loaded, err := store.Instances().GetByID(ctx, "wi-1")
	require.NoError(t, err)
	assert.Equal(t, instance.Subject, loaded.Subject)
	require.Len(t, loaded.Stages, 1)
	assert.Equal(t, "si-1", loaded.Stages[0].ID)

	_, err = store.Instances().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrInstanceNotFound)
}

func TestInstanceSaveBumpsRevision(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	instance := testInstance("wi-1")
	require.NoError(t, store.Instances().Save(ctx, instance))
	assert.Equal(t, int64(1), instance.Revision)

	require.NoError(t, store.Instances().Save(ctx, instance))
	assert.Equal(t, int64(2), instance.Revision)
}

func TestInstanceSaveDetectsRevisionConflict(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Instances().Save(ctx, testInstance("wi-1")))

	first, err := store.Instances().GetByID(ctx, "wi-1")
	require.NoError(t, err)

	second, err := store.Instances().GetByID(ctx, "wi-1")
	require.NoError(t, err)

	require.NoError(t, store.Instances().Save(ctx, first))

	err = store.Instances().Save(ctx, second)
	require.Error(t, err)
	assert.True(t, persistence.IsRevisionConflict(err))

	// The stale copy can retry after a fresh read.
	fresh, err := store.Instances().GetByID(ctx, "wi-1")
	require.NoError(t, err)
	assert.NoError(t, store.Instances().Save(ctx, fresh))
}

func TestFindByStageInstanceID(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Instances().Save(ctx, testInstance("wi-1")))

	other := testInstance("wi-2")
	other.Stages[0].ID = "si-2"
	require.NoError(t, store.Instances().Save(ctx, other))

	owner, err := store.Instances().FindByStageInstanceID(ctx, "si-2")
	require.NoError(t, err)
	assert.Equal(t, "wi-2", owner.ID)

	_, err = store.Instances().FindByStageInstanceID(ctx, "si-9")
	assert.ErrorIs(t, err, persistence.ErrInstanceNotFound)
}

func TestFindBySubject(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Instances().Save(ctx, testInstance("wi-1")))

	other := testInstance("wi-2")
	other.Subject = models.SubjectRef{EntityType: "case", EntityID: "case-2"}
	require.NoError(t, store.Instances().Save(ctx, other))

	matches, err := store.Instances().FindBySubject(ctx, "org-1", models.SubjectRef{EntityType: "case", EntityID: "case-1"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "wi-1", matches[0].ID)

	none, err := store.Instances().FindBySubject(ctx, "org-2", models.SubjectRef{EntityType: "case", EntityID: "case-1"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListByStatus(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Instances().Save(ctx, testInstance("wi-1")))

	paused := testInstance("wi-2")
	paused.Status = models.InstanceStatusPaused
	require.NoError(t, store.Instances().Save(ctx, paused))

	running, err := store.Instances().ListByStatus(ctx, models.InstanceStatusRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "wi-1", running[0].ID)

	completed, err := store.Instances().ListByStatus(ctx, models.InstanceStatusCompleted)
	require.NoError(t, err)
	assert.Empty(t, completed)
}
