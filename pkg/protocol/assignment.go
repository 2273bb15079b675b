// Package protocol defines the interfaces and contracts for pluggable
// assignment strategies, gate predicates and external collaborators.
package protocol

import (
	"context"

	"github.com/flowmill/flowmill/pkg/models"
)

// AssignmentStrategy resolves a stage activation to an ordered list of
// assignees. An empty result is a valid outcome: the stage activates
// unassigned and is flagged for manual assignment.
type AssignmentStrategy interface {
	Resolve(ctx context.Context, stageCtx models.StageContext) ([]string, error)
}

// StrategyFactory creates strategy instances and provides metadata about the
// strategy kind. New strategies are added by registering a factory; the
// transition engine is never modified.
type StrategyFactory interface {
	// Create builds a strategy instance from validated parameters.
	Create(params map[string]any) (AssignmentStrategy, error)

	// Kind returns the strategy kind this factory serves.
	Kind() models.StrategyKind

	// Schema returns the JSON schema its parameters are validated against
	// at template publish time.
	Schema() map[string]any
}
