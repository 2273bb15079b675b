// Package main provides the Flowmill API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/persistence"
	"github.com/flowmill/flowmill/pkg/registry"
	"github.com/flowmill/flowmill/pkg/services"
	"github.com/flowmill/flowmill/pkg/sla"
	"github.com/flowmill/flowmill/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	engine      *engine.Engine
	scanner     *sla.Scanner
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eng *engine.Engine,
	scanner *sla.Scanner,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		engine:      eng,
		scanner:     scanner,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	templateService := services.NewTemplate(a.persistence)
	publishingService := services.NewPublishing(a.persistence, a.registry)

	handlers := web.NewAPIHandlers(templateService, publishingService, a.engine, a.scanner, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowmill API")
	})

	t := app.Group("/templates")
	t.Get("/", handlers.GetTemplates)
	t.Post("/", handlers.CreateTemplate)
	t.Get("/:id", handlers.GetTemplate)
	t.Patch("/:id", handlers.UpdateTemplate)
	t.Post("/:id/publish", handlers.PublishTemplate)
	t.Post("/:id/archive", handlers.ArchiveTemplate)
	t.Post("/:id/new-draft", handlers.NewDraftFromVersion)
	t.Get("/lineages/:lineageId/versions", handlers.GetLineageVersions)
	t.Get("/lineages/:lineageId/published", handlers.GetPublishedVersion)

	i := app.Group("/instances")
	i.Get("/", handlers.GetInstances)
	i.Post("/", handlers.StartInstance)
	i.Get("/:id", handlers.GetInstance)
	i.Post("/:id/pause", handlers.PauseInstance)
	i.Post("/:id/resume", handlers.ResumeInstance)
	i.Post("/:id/cancel", handlers.CancelInstance)

	s := app.Group("/stages")
	s.Post("/:stageInstanceId/outcome", handlers.ReportStageOutcome)
	s.Post("/:stageInstanceId/fail", handlers.FailStage)

	app.Post("/sla/scan", handlers.RunSLAScan)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
