package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/persistence"
	"github.com/flowmill/flowmill/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		return conflict(c, err.Error())

	case persistence.IsTemplateNotFound(err):
		return notFound(c, "template not found")

	case persistence.IsInstanceNotFound(err):
		return notFound(c, "workflow instance not found")

	default:
		return internalError(c, err)
	}
}

// handleEngineError maps transition engine errors onto problem responses. A
// gate rejection is its own shape: 422 with every failed rule listed.
func handleEngineError(c fiber.Ctx, err error) error {
	var gateErr *engine.GateRejectedError
	if errors.As(err, &gateErr) {
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("gate_rejected").
			WithDetail("stage outcome rejected by gate")

		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"type":     problem.Type,
			"title":    problem.Title,
			"status":   problem.Status,
			"detail":   problem.Detail,
			"instance": problem.Instance,
			"failures": gateErr.Failures,
		})
	}

	switch {
	case errors.Is(err, engine.ErrInvalidSubjectRef),
		errors.Is(err, engine.ErrReasonRequired):
		return badRequest(c, err.Error())

	case errors.Is(err, engine.ErrTemplateNotPublished),
		errors.Is(err, engine.ErrInstanceNotRunning),
		errors.Is(err, engine.ErrInstanceNotPaused),
		errors.Is(err, engine.ErrInstanceTerminal),
		errors.Is(err, engine.ErrStageNotActive):
		return conflict(c, err.Error())

	case errors.Is(err, engine.ErrStageNotFound):
		return notFound(c, "stage instance not found")

	case persistence.IsTemplateNotFound(err):
		return notFound(c, "template not found")

	case persistence.IsInstanceNotFound(err):
		return notFound(c, "workflow instance not found")

	case persistence.IsRevisionConflict(err):
		return conflict(c, "concurrent modification, retry the request")

	default:
		return internalError(c, err)
	}
}
