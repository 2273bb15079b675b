// Package web provides HTTP handlers and REST API endpoints for workflow
// template and instance management.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
	"github.com/flowmill/flowmill/pkg/services"
	"github.com/flowmill/flowmill/pkg/sla"
)

type APIHandlers struct {
	templateService   *services.Template
	publishingService *services.Publishing
	engine            *engine.Engine
	scanner           *sla.Scanner
	persistence       persistence.Persistence
	validator         *validator.Validate
}

func NewAPIHandlers(
	templateService *services.Template,
	publishingService *services.Publishing,
	eng *engine.Engine,
	scanner *sla.Scanner,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		templateService:   templateService,
		publishingService: publishingService,
		engine:            eng,
		scanner:           scanner,
		persistence:       persistence,
		validator:         validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.templateService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowmill API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Flowmill API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		return badRequest(c, "organization_id query parameter is required")
	}

	templates, err := h.templateService.List(c.Context(), organizationID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"templates":   templates,
		"total_count": len(templates),
	})
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.templateService.CreateDraft(c.Context(), services.CreateTemplateRequest{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Description:    req.Description,
		Stages:         req.Stages,
		WorkflowSLA:    req.WorkflowSLA,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req UpdateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.templateService.UpdateDraft(c.Context(), id, services.UpdateTemplateRequest{
		Name:        req.Name,
		Description: req.Description,
		Stages:      req.Stages,
		WorkflowSLA: req.WorkflowSLA,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) PublishTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	published, err := h.publishingService.Publish(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) ArchiveTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	archived, err := h.publishingService.Archive(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(archived)
}

func (h *APIHandlers) NewDraftFromVersion(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	draft, err := h.templateService.NewDraftFromVersion(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(draft)
}

func (h *APIHandlers) GetLineageVersions(c fiber.Ctx) error {
	lineageID := c.Params("lineageId")
	organizationID := c.Query("organization_id")

	if lineageID == "" || organizationID == "" {
		return badRequest(c, "Lineage ID and organization_id are required")
	}

	versions, err := h.templateService.ListLineage(c.Context(), organizationID, lineageID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"versions":    versions,
		"total_count": len(versions),
	})
}

func (h *APIHandlers) GetPublishedVersion(c fiber.Ctx) error {
	lineageID := c.Params("lineageId")
	organizationID := c.Query("organization_id")

	if lineageID == "" || organizationID == "" {
		return badRequest(c, "Lineage ID and organization_id are required")
	}

	template, err := h.templateService.CurrentPublished(c.Context(), organizationID, lineageID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	var req StartInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, _, err := h.engine.StartInstance(c.Context(), req.TemplateID, req.Subject)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := h.persistence.Instances().GetByID(c.Context(), id)
	if err != nil {
		if persistence.IsInstanceNotFound(err) {
			return notFound(c, "workflow instance not found")
		}

		return internalError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	organizationID := c.Query("organization_id")
	entityType := c.Query("entity_type")
	entityID := c.Query("entity_id")

	if organizationID == "" {
		return badRequest(c, "organization_id query parameter is required")
	}

	if entityType != "" || entityID != "" {
		if entityType == "" || entityID == "" {
			return badRequest(c, "entity_type and entity_id must be provided together")
		}

		instances, err := h.persistence.Instances().FindBySubject(c.Context(), organizationID, models.SubjectRef{
			EntityType: entityType,
			EntityID:   entityID,
		})
		if err != nil {
			return internalError(c, err)
		}

		return c.JSON(fiber.Map{"instances": instances, "total_count": len(instances)})
	}

	statusStr := c.Query("status")
	if statusStr == "" {
		return badRequest(c, "either a subject filter or a status filter is required")
	}

	instances, err := h.persistence.Instances().ListByStatus(c.Context(), models.InstanceStatus(statusStr))
	if err != nil {
		return internalError(c, err)
	}

	filtered := make([]*models.WorkflowInstance, 0, len(instances))

	for _, instance := range instances {
		if instance.OrganizationID == organizationID {
			filtered = append(filtered, instance)
		}
	}

	return c.JSON(fiber.Map{"instances": filtered, "total_count": len(filtered)})
}

func (h *APIHandlers) ReportStageOutcome(c fiber.Ctx) error {
	stageInstanceID := c.Params("stageInstanceId")
	if stageInstanceID == "" {
		return badRequest(c, "Stage instance ID is required")
	}

	var req StageOutcomeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result, err := h.engine.ReportStageOutcome(c.Context(), stageInstanceID, req.Outcome)
	if err != nil {
		return handleEngineError(c, err)
	}

	activated := make([]string, 0, len(result.Activated))
	for _, stage := range result.Activated {
		activated = append(activated, stage.ID)
	}

	return c.JSON(fiber.Map{
		"instance":         result.Instance,
		"activated_stages": activated,
	})
}

func (h *APIHandlers) FailStage(c fiber.Ctx) error {
	stageInstanceID := c.Params("stageInstanceId")
	if stageInstanceID == "" {
		return badRequest(c, "Stage instance ID is required")
	}

	var req FailStageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.engine.FailStage(c.Context(), stageInstanceID, req.Reason); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PauseInstance(c fiber.Ctx) error {
	return h.lifecycle(c, func(c fiber.Ctx, id string, req LifecycleRequest) error {
		_, err := h.engine.PauseInstance(c.Context(), id, req.Reason, req.By)

		return err
	})
}

func (h *APIHandlers) ResumeInstance(c fiber.Ctx) error {
	return h.lifecycle(c, func(c fiber.Ctx, id string, req LifecycleRequest) error {
		_, err := h.engine.ResumeInstance(c.Context(), id, req.Reason, req.By)

		return err
	})
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	return h.lifecycle(c, func(c fiber.Ctx, id string, req LifecycleRequest) error {
		_, err := h.engine.CancelInstance(c.Context(), id, req.Reason)

		return err
	})
}

func (h *APIHandlers) lifecycle(c fiber.Ctx, apply func(c fiber.Ctx, id string, req LifecycleRequest) error) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req LifecycleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := apply(c, id, req); err != nil {
		return handleEngineError(c, err)
	}

	instance, err := h.persistence.Instances().GetByID(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(instance)
}

// RunSLAScan triggers an on-demand sweep over running instances. The sweeper
// binary runs the same scan on a schedule.
func (h *APIHandlers) RunSLAScan(c fiber.Ctx) error {
	changes, err := h.scanner.ScanActiveInstances(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"status_changes": len(changes),
		"events":         changes,
	})
}
