package services_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmill/flowmill/pkg/assignment"
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence/file"
	"github.com/flowmill/flowmill/pkg/registry"
	"github.com/flowmill/flowmill/pkg/services"
)

type nopDirectory struct{}

func (d *nopDirectory) GetManagerOf(_ context.Context, _ models.SubjectRef) (string, error) {
	return "", nil
}

func (d *nopDirectory) GetOpenItemCount(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (d *nopDirectory) GetCandidatesByAttributes(_ context.Context, _ map[string]string) ([]string, error) {
	return nil, nil
}

func (d *nopDirectory) GetCandidatesByLocation(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func testRegistry() *registry.Registry {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.NewRegistry(logger)
	assignment.RegisterDefaults(reg, assignment.Dependencies{
		Directory: &nopDirectory{},
		Rotation:  assignment.NewMemoryRotationStore(),
	})

	return reg
}

func validStages() []*models.StageDefinition {
	return []*models.StageDefinition{
		{
			ID:         "triage",
			Name:       "Triage",
			Kind:       models.StageKindTask,
			Successors: []string{"resolve"},
			Assignment: models.AssignmentConfig{
				Strategy: models.StrategySpecificUser,
				Params:   map[string]any{"user_id": "alice"},
			},
		},
		{
			ID:           "resolve",
			Name:         "Resolve",
			Kind:         models.StageKindTask,
			Predecessors: []string{"triage"},
			Assignment: models.AssignmentConfig{
				Strategy: models.StrategyTeamQueue,
				Params:   map[string]any{"pool": []any{"ops-a", "ops-b"}},
			},
		},
	}
}

func createDraft(t *testing.T, svc *services.Template) *models.WorkflowTemplate {
	t.Helper()

	draft, err := svc.CreateDraft(context.Background(), services.CreateTemplateRequest{
		OrganizationID: "org-1",
		Name:           "incident response",
		Description:    "standard incident handling",
		Stages:         validStages(),
	})
	require.NoError(t, err)

	return draft
}

func TestCreateDraftStartsNewLineage(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)

	draft := createDraft(t, svc)

	assert.NotEmpty(t, draft.ID)
	assert.NotEmpty(t, draft.LineageID)
	assert.Equal(t, 1, draft.Version)
	assert.Equal(t, models.TemplateStatusDraft, draft.Status)
	assert.Nil(t, draft.ParentVersionID)

	loaded, err := svc.Get(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.LineageID, loaded.LineageID)
}

func TestCreateDraftValidatesRequest(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)

	_, err := svc.CreateDraft(context.Background(), services.CreateTemplateRequest{Name: "x"})
	assert.ErrorIs(t, err, services.ErrEmptyOrganizationID)

	_, err = svc.CreateDraft(context.Background(), services.CreateTemplateRequest{OrganizationID: "org-1"})
	assert.ErrorIs(t, err, services.ErrTemplateNameRequired)
}

func TestUpdateDraftAppliesPartialChanges(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)

	draft := createDraft(t, svc)

	name := "incident response v2"
	updated, err := svc.UpdateDraft(context.Background(), draft.ID, services.UpdateTemplateRequest{
		Name: &name,
	})
	require.NoError(t, err)

	assert.Equal(t, name, updated.Name)
	assert.Equal(t, draft.Description, updated.Description, "unset fields stay untouched")
	assert.Len(t, updated.Stages, 2)
}

func TestUpdateDraftRejectsImmutableVersions(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)
	publishing := services.NewPublishing(store, testRegistry())

	draft := createDraft(t, svc)

	_, err := publishing.Publish(context.Background(), draft.ID)
	require.NoError(t, err)

	name := "edited"
	_, err = svc.UpdateDraft(context.Background(), draft.ID, services.UpdateTemplateRequest{Name: &name})
	assert.ErrorIs(t, err, services.ErrCannotModifyPublished)
	assert.True(t, services.IsConflictError(err))

	_, err = publishing.Archive(context.Background(), draft.ID)
	require.NoError(t, err)

	_, err = svc.UpdateDraft(context.Background(), draft.ID, services.UpdateTemplateRequest{Name: &name})
	assert.ErrorIs(t, err, services.ErrCannotModifyArchived)
}

func TestNewDraftFromVersionBumpsLineage(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)
	publishing := services.NewPublishing(store, testRegistry())

	v1 := createDraft(t, svc)

	_, err := publishing.Publish(context.Background(), v1.ID)
	require.NoError(t, err)

	v2, err := svc.NewDraftFromVersion(context.Background(), v1.ID)
	require.NoError(t, err)

	assert.Equal(t, v1.LineageID, v2.LineageID)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, models.TemplateStatusDraft, v2.Status)
	require.NotNil(t, v2.ParentVersionID)
	assert.Equal(t, v1.ID, *v2.ParentVersionID)

	// The copy is deep: editing the draft leaves the source alone.
	v2.Stages[0].Name = "renamed"

	source, err := svc.Get(context.Background(), v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Triage", source.Stages[0].Name)
}

func TestListLineageNewestFirst(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)
	publishing := services.NewPublishing(store, testRegistry())

	v1 := createDraft(t, svc)

	_, err := publishing.Publish(context.Background(), v1.ID)
	require.NoError(t, err)

	v2, err := svc.NewDraftFromVersion(context.Background(), v1.ID)
	require.NoError(t, err)

	versions, err := svc.ListLineage(context.Background(), "org-1", v1.LineageID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, v2.ID, versions[0].ID)
	assert.Equal(t, v1.ID, versions[1].ID)
}

func TestListRequiresOrganization(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)

	_, err := svc.List(context.Background(), "")
	assert.ErrorIs(t, err, services.ErrEmptyOrganizationID)
}
