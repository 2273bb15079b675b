// Package assignment resolves stage activations to assignees using the
// pluggable strategy registry.
package assignment

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/registry"
)

// DefaultTimeout bounds external directory lookups so assignment can never
// block stage activation indefinitely.
const DefaultTimeout = 3 * time.Second

// Resolution is the outcome of resolving a stage's assignment.
type Resolution struct {
	Assignees []string

	// NeedsManual is set when no assignee could be resolved: directory
	// timeout, empty candidate pool, or strategy failure. The stage still
	// activates; it is flagged for manual assignment rather than dropped.
	NeedsManual bool
}

type Resolver struct {
	registry *registry.Registry
	timeout  time.Duration
	logger   *slog.Logger
}

func NewResolver(reg *registry.Registry, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Resolver{
		registry: reg,
		timeout:  timeout,
		logger:   logger,
	}
}

// Resolve applies the configured strategy within the bounded timeout.
// Strategy errors degrade to an unassigned-with-flag resolution; they are
// logged but never propagate into the state machine.
func (r *Resolver) Resolve(ctx context.Context, config models.AssignmentConfig, stageCtx models.StageContext) Resolution {
	strategy, err := r.registry.CreateStrategy(config.Strategy, config.Params)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to create assignment strategy",
			"strategy", config.Strategy,
			"stage_definition_id", stageCtx.StageDefinitionID,
			"error", err)

		return Resolution{NeedsManual: true}
	}

	resolveCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	assignees, err := strategy.Resolve(resolveCtx, stageCtx)
	if err != nil {
		r.logger.WarnContext(ctx, "Assignment resolution failed, activating unassigned",
			"strategy", config.Strategy,
			"stage_definition_id", stageCtx.StageDefinitionID,
			"error", err)

		return Resolution{NeedsManual: true}
	}

	if len(assignees) == 0 {
		return Resolution{NeedsManual: true}
	}

	return Resolution{Assignees: assignees}
}
