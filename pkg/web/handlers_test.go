package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmill/flowmill/pkg/assignment"
	"github.com/flowmill/flowmill/pkg/collaborators"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/gate"
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
	"github.com/flowmill/flowmill/pkg/persistence/file"
	"github.com/flowmill/flowmill/pkg/registry"
	"github.com/flowmill/flowmill/pkg/services"
	"github.com/flowmill/flowmill/pkg/sla"
	"github.com/flowmill/flowmill/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, persistence.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	collab := collaborators.NewStatic()

	reg := registry.NewRegistry(logger)
	assignment.RegisterDefaults(reg, assignment.Dependencies{
		Directory: collab,
		Rotation:  assignment.NewMemoryRotationStore(),
	})

	eng := engine.NewEngine(engine.Config{
		Persistence: store,
		Resolver:    assignment.NewResolver(reg, time.Second, logger),
		Gates:       gate.NewEvaluator(reg, collab, time.Second),
		Tracker:     sla.NewTracker(0),
		Subjects:    collab,
		Logger:      logger,
	})

	scanner := sla.NewScanner(store, eng, logger)
	validate := validator.New(validator.WithRequiredStructEnabled())
	handlers := web.NewAPIHandlers(services.NewTemplate(store), services.NewPublishing(store, reg), eng, scanner, store, validate)

	app := fiber.New()

	tg := app.Group("/templates")
	tg.Get("/", handlers.GetTemplates)
	tg.Post("/", handlers.CreateTemplate)
	tg.Get("/:id", handlers.GetTemplate)
	tg.Patch("/:id", handlers.UpdateTemplate)
	tg.Post("/:id/publish", handlers.PublishTemplate)
	tg.Post("/:id/archive", handlers.ArchiveTemplate)
	tg.Post("/:id/new-draft", handlers.NewDraftFromVersion)
	tg.Get("/lineages/:lineageId/versions", handlers.GetLineageVersions)
	tg.Get("/lineages/:lineageId/published", handlers.GetPublishedVersion)

	ig := app.Group("/instances")
	ig.Get("/", handlers.GetInstances)
	ig.Post("/", handlers.StartInstance)
	ig.Get("/:id", handlers.GetInstance)
	ig.Post("/:id/pause", handlers.PauseInstance)
	ig.Post("/:id/resume", handlers.ResumeInstance)
	ig.Post("/:id/cancel", handlers.CancelInstance)

	sg := app.Group("/stages")
	sg.Post("/:stageInstanceId/outcome", handlers.ReportStageOutcome)
	sg.Post("/:stageInstanceId/fail", handlers.FailStage)

	app.Post("/sla/scan", handlers.RunSLAScan)
	app.Get("/health", handlers.HealthCheck)

	return app, store
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body []byte

	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, raw
}

func templatePayload() web.CreateTemplateRequest {
	return web.CreateTemplateRequest{
		OrganizationID: "org-1",
		Name:           "case handling",
		Stages: []*models.StageDefinition{
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
					Strategy: models.StrategySpecificUser,
					Params:   map[string]any{"user_id": "bob"},
				},
			},
		},
	}
}

func createTemplate(t *testing.T, app *fiber.App) models.WorkflowTemplate {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/templates/", templatePayload())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var template models.WorkflowTemplate
	require.NoError(t, json.Unmarshal(body, &template))

	return template
}

func publishTemplate(t *testing.T, app *fiber.App, id string) {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/templates/"+id+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func startInstance(t *testing.T, app *fiber.App, templateID string) models.WorkflowInstance {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/instances/", web.StartInstanceRequest{
		TemplateID: templateID,
		Subject:    models.SubjectRef{EntityType: "case", EntityID: "case-1"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instance))

	return instance
}

func TestCreateTemplateEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	template := createTemplate(t, app)
	assert.NotEmpty(t, template.ID)
	assert.Equal(t, models.TemplateStatusDraft, template.Status)
	assert.Equal(t, 1, template.Version)
}

func TestCreateTemplateValidation(t *testing.T) {
	app, _ := setupTestApp(t)

	tests := []struct {
		name    string
		payload any
	}{
		{
			name:    "missing organization",
			payload: web.CreateTemplateRequest{Name: "case handling"},
		},
		{
			name:    "short name",
			payload: web.CreateTemplateRequest{OrganizationID: "org-1", Name: "ab"},
		},
		{
			name:    "invalid JSON",
			payload: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				resp *http.Response
				body []byte
			)

			if tt.payload == nil {
				req := httptest.NewRequest(http.MethodPost, "/templates/", bytes.NewReader([]byte("{not json")))
				req.Header.Set("Content-Type", "application/json")

				var err error
				resp, err = app.Test(req)
				require.NoError(t, err)
				require.NoError(t, resp.Body.Close())
			} else {
				resp, body = doJSON(t, app, http.MethodPost, "/templates/", tt.payload)
			}

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
		})
	}
}

func TestPublishLifecycleEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	template := createTemplate(t, app)
	publishTemplate(t, app, template.ID)

	// Publishing a published version conflicts.
	resp, _ := doJSON(t, app, http.MethodPost, "/templates/"+template.ID+"/publish", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// So does editing it.
	resp, _ = doJSON(t, app, http.MethodPatch, "/templates/"+template.ID, map[string]any{"name": "edited name"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// A new draft in the lineage bumps the version.
	resp, body := doJSON(t, app, http.MethodPost, "/templates/"+template.ID+"/new-draft", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var draft models.WorkflowTemplate
	require.NoError(t, json.Unmarshal(body, &draft))
	assert.Equal(t, 2, draft.Version)
	assert.Equal(t, template.LineageID, draft.LineageID)

	resp, body = doJSON(t, app, http.MethodGet, "/templates/lineages/"+template.LineageID+"/versions?organization_id=org-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var versions struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &versions))
	assert.Equal(t, 2, versions.TotalCount)

	resp, body = doJSON(t, app, http.MethodGet, "/templates/lineages/"+template.LineageID+"/published?organization_id=org-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var published models.WorkflowTemplate
	require.NoError(t, json.Unmarshal(body, &published))
	assert.Equal(t, template.ID, published.ID)
}

func TestGetTemplateNotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/templates/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartInstanceEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	template := createTemplate(t, app)

	// Drafts cannot be instantiated.
	resp, _ := doJSON(t, app, http.MethodPost, "/instances/", web.StartInstanceRequest{
		TemplateID: template.ID,
		Subject:    models.SubjectRef{EntityType: "case", EntityID: "case-1"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	publishTemplate(t, app, template.ID)

	instance := startInstance(t, app, template.ID)
	assert.Equal(t, models.InstanceStatusRunning, instance.Status)
	require.Len(t, instance.Stages, 1)
	assert.Equal(t, "triage", instance.Stages[0].StageDefinitionID)

	// Unknown templates are a 404.
	resp, _ = doJSON(t, app, http.MethodPost, "/instances/", web.StartInstanceRequest{
		TemplateID: "ghost",
		Subject:    models.SubjectRef{EntityType: "case", EntityID: "case-1"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStageOutcomeEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	template := createTemplate(t, app)
	publishTemplate(t, app, template.ID)
	instance := startInstance(t, app, template.ID)

	stageID := instance.Stages[0].ID

	resp, body := doJSON(t, app, http.MethodPost, "/stages/"+stageID+"/outcome", web.StageOutcomeRequest{
		Outcome: map[string]any{"result": "classified"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result struct {
		Instance        models.WorkflowInstance `json:"instance"`
		ActivatedStages []string                `json:"activated_stages"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Len(t, result.ActivatedStages, 1)

	// Completing a completed stage conflicts.
	resp, _ = doJSON(t, app, http.MethodPost, "/stages/"+stageID+"/outcome", web.StageOutcomeRequest{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/stages/ghost/outcome", web.StageOutcomeRequest{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGateRejectionResponse(t *testing.T) {
	app, _ := setupTestApp(t)

	payload := templatePayload()
	payload.Stages[0].Gate = []models.GateRule{
		{Kind: models.RuleRequiredField, Params: map[string]any{"field": "disposition"}},
	}

	resp, body := doJSON(t, app, http.MethodPost, "/templates/", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var template models.WorkflowTemplate
	require.NoError(t, json.Unmarshal(body, &template))

	publishTemplate(t, app, template.ID)
	instance := startInstance(t, app, template.ID)

	resp, body = doJSON(t, app, http.MethodPost, "/stages/"+instance.Stages[0].ID+"/outcome", web.StageOutcomeRequest{
		Outcome: map[string]any{},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var rejection struct {
		Failures []models.RuleFailure `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(body, &rejection))
	require.Len(t, rejection.Failures, 1)
	assert.Equal(t, models.RuleRequiredField, rejection.Failures[0].Kind)
}

func TestInstanceLifecycleEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	template := createTemplate(t, app)
	publishTemplate(t, app, template.ID)
	instance := startInstance(t, app, template.ID)

	// Reasons are mandatory.
	resp, _ := doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/pause", web.LifecycleRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/pause", web.LifecycleRequest{
		Reason: "awaiting legal", By: "ops",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var paused models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &paused))
	assert.Equal(t, models.InstanceStatusPaused, paused.Status)

	resp, body = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/resume", web.LifecycleRequest{
		Reason: "cleared", By: "ops",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var resumed models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &resumed))
	assert.Equal(t, models.InstanceStatusRunning, resumed.Status)

	resp, body = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/cancel", web.LifecycleRequest{
		Reason: "duplicate",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cancelled models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &cancelled))
	assert.Equal(t, models.InstanceStatusCancelled, cancelled.Status)

	// Cancel is terminal.
	resp, _ = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/cancel", web.LifecycleRequest{
		Reason: "again",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestFailStageEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	template := createTemplate(t, app)
	publishTemplate(t, app, template.ID)
	instance := startInstance(t, app, template.ID)

	stageID := instance.Stages[0].ID

	resp, _ := doJSON(t, app, http.MethodPost, "/stages/"+stageID+"/fail", web.FailStageRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/stages/"+stageID+"/fail", web.FailStageRequest{Reason: "upstream down"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestGetInstancesQueries(t *testing.T) {
	app, _ := setupTestApp(t)

	template := createTemplate(t, app)
	publishTemplate(t, app, template.ID)
	startInstance(t, app, template.ID)

	resp, _ := doJSON(t, app, http.MethodGet, "/instances/?entity_type=case", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "organization_id is mandatory")

	resp, body := doJSON(t, app, http.MethodGet, "/instances/?organization_id=org-1&entity_type=case&entity_id=case-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var bySubject struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &bySubject))
	assert.Equal(t, 1, bySubject.TotalCount)

	resp, body = doJSON(t, app, http.MethodGet, "/instances/?organization_id=org-1&status=running", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var byStatus struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &byStatus))
	assert.Equal(t, 1, byStatus.TotalCount)
}

func TestSLAScanEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	template := createTemplate(t, app)
	publishTemplate(t, app, template.ID)
	startInstance(t, app, template.ID)

	resp, body := doJSON(t, app, http.MethodPost, "/sla/scan", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var scan struct {
		StatusChanges int `json:"status_changes"`
	}
	require.NoError(t, json.Unmarshal(body, &scan))
	assert.Equal(t, 0, scan.StatusChanges, "a fresh instance has no transitions to report")
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
}
