package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/flowmill/flowmill/pkg/assignment"
	"github.com/flowmill/flowmill/pkg/cmd"
	"github.com/flowmill/flowmill/pkg/collaborators"
	"github.com/flowmill/flowmill/pkg/config"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/gate"
	"github.com/flowmill/flowmill/pkg/log"
	"github.com/flowmill/flowmill/pkg/sla"
)

func main() {
	logger := log.WithModule("sweeper")

	command := &cli.Command{
		Name:                  "flowmill-sweeper",
		Usage:                 "Run the scheduled SLA scan over running workflow instances",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the flowmill.yaml deployment config",
				Value:   "flowmill.yaml",
				Sources: cli.EnvVars("FLOWMILL_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Flowmill SLA sweeper")

			cfg := config.LoadOrDefault(command.String("config"))

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(cfg.EventBus.Provider, "sweeper", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			collab := collaborators.NewStatic()
			registry := cmd.NewRegistry(logger, collab, cfg)

			eng := engine.NewEngine(engine.Config{
				Persistence: persistence,
				Resolver:    assignment.NewResolver(registry, cfg.DirectoryTimeout(), logger),
				Gates:       gate.NewEvaluator(registry, collab, cfg.DirectoryTimeout()),
				Tracker:     sla.NewTracker(cfg.CriticalAfter()),
				EventBus:    eventBus,
				Subjects:    collab,
				Logger:      logger,
			})

			scanner := sla.NewScanner(persistence, eng, logger)

			return NewSweeper(cfg.SLA.ScanSchedule, scanner, logger).Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
