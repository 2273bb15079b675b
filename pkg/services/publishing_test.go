package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence/file"
	"github.com/flowmill/flowmill/pkg/registry"
	"github.com/flowmill/flowmill/pkg/services"
)

func TestPublishDraft(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)
	publishing := services.NewPublishing(store, testRegistry())

	draft := createDraft(t, svc)

	published, err := publishing.Publish(context.Background(), draft.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TemplateStatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)

	current, err := svc.CurrentPublished(context.Background(), "org-1", draft.LineageID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, current.ID)
}

func TestPublishRequiresDraft(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)
	publishing := services.NewPublishing(store, testRegistry())

	draft := createDraft(t, svc)

	_, err := publishing.Publish(context.Background(), draft.ID)
	require.NoError(t, err)

	_, err = publishing.Publish(context.Background(), draft.ID)
	assert.ErrorIs(t, err, services.ErrNotDraft)
}

func TestPublishArchivesPreviousVersion(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)
	publishing := services.NewPublishing(store, testRegistry())

	v1 := createDraft(t, svc)

	_, err := publishing.Publish(context.Background(), v1.ID)
	require.NoError(t, err)

	v2, err := svc.NewDraftFromVersion(context.Background(), v1.ID)
	require.NoError(t, err)

	_, err = publishing.Publish(context.Background(), v2.ID)
	require.NoError(t, err)

	previous, err := svc.Get(context.Background(), v1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TemplateStatusArchived, previous.Status)
	require.NotNil(t, previous.ArchivedAt)

	current, err := svc.CurrentPublished(context.Background(), "org-1", v1.LineageID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, current.ID)
}

func TestPublishRejectsStructuralDefects(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)
	publishing := services.NewPublishing(store, testRegistry())

	tests := []struct {
		name    string
		mutate  func(*models.WorkflowTemplate)
		wantErr error
	}{
		{
			name:    "no stages",
			mutate:  func(tpl *models.WorkflowTemplate) { tpl.Stages = nil },
			wantErr: services.ErrStagesRequired,
		},
		{
			name: "cycle",
			mutate: func(tpl *models.WorkflowTemplate) {
				tpl.Stages[0].Predecessors = []string{"resolve"}
				tpl.Stages[1].Successors = []string{"triage"}
			},
			wantErr: models.ErrGraphNoEntry,
		},
		{
			name: "dangling successor",
			mutate: func(tpl *models.WorkflowTemplate) {
				tpl.Stages[1].Successors = []string{"ghost"}
			},
			wantErr: models.ErrGraphDangling,
		},
		{
			name: "non-positive workflow SLA",
			mutate: func(tpl *models.WorkflowTemplate) {
				zero := 0.0
				tpl.WorkflowSLA = &zero
			},
			wantErr: services.ErrInvalidSLA,
		},
		{
			name: "negative retry limit",
			mutate: func(tpl *models.WorkflowTemplate) {
				tpl.Stages[0].RetryLimit = -1
			},
			wantErr: services.ErrInvalidRetryLimit,
		},
		{
			name: "sub-workflow without reference",
			mutate: func(tpl *models.WorkflowTemplate) {
				tpl.Stages[0].Kind = models.StageKindSubWorkflow
			},
			wantErr: services.ErrMissingSubWorkflowRef,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := createDraft(t, svc)

			loaded, err := svc.Get(context.Background(), draft.ID)
			require.NoError(t, err)

			tt.mutate(loaded)
			require.NoError(t, store.Templates().Save(context.Background(), loaded))

			_, err = publishing.Publish(context.Background(), loaded.ID)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, services.IsValidationError(err))

			// The draft stays a draft on failed publication.
			after, err := svc.Get(context.Background(), loaded.ID)
			require.NoError(t, err)
			assert.Equal(t, models.TemplateStatusDraft, after.Status)
		})
	}
}

func TestPublishValidatesStageConfiguration(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)
	publishing := services.NewPublishing(store, testRegistry())

	t.Run("unknown assignment params", func(t *testing.T) {
		draft := createDraft(t, svc)

		loaded, err := svc.Get(context.Background(), draft.ID)
		require.NoError(t, err)

		loaded.Stages[0].Assignment.Params = map[string]any{"user": "alice"}
		require.NoError(t, store.Templates().Save(context.Background(), loaded))

		_, err = publishing.Publish(context.Background(), loaded.ID)
		assert.ErrorIs(t, err, registry.ErrInvalidConfig)
	})

	t.Run("unregistered custom predicate", func(t *testing.T) {
		draft := createDraft(t, svc)

		loaded, err := svc.Get(context.Background(), draft.ID)
		require.NoError(t, err)

		loaded.Stages[0].Gate = []models.GateRule{
			{Kind: models.RuleCustomPredicate, Params: map[string]any{"name": "never_registered"}},
		}
		require.NoError(t, store.Templates().Save(context.Background(), loaded))

		_, err = publishing.Publish(context.Background(), loaded.ID)
		assert.ErrorIs(t, err, registry.ErrInvalidConfig)
	})
}

func TestArchivePublishedVersion(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	svc := services.NewTemplate(store)
	publishing := services.NewPublishing(store, testRegistry())

	draft := createDraft(t, svc)

	_, err := publishing.Archive(context.Background(), draft.ID)
	assert.ErrorIs(t, err, services.ErrNotPublished)

	_, err = publishing.Publish(context.Background(), draft.ID)
	require.NoError(t, err)

	archived, err := publishing.Archive(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TemplateStatusArchived, archived.Status)
	require.NotNil(t, archived.ArchivedAt)
}
