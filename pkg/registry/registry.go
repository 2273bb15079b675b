// Package registry holds the pluggable assignment strategies and custom gate
// predicates available to the engine, and validates their configuration.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/protocol"
)

type Registry struct {
	logger            *slog.Logger
	strategyFactories map[models.StrategyKind]protocol.StrategyFactory
	predicates        map[string]protocol.Predicate
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:            logger,
		strategyFactories: make(map[models.StrategyKind]protocol.StrategyFactory),
		predicates:        make(map[string]protocol.Predicate),
	}
}

// RegisterStrategy makes an assignment strategy kind available.
func (r *Registry) RegisterStrategy(factory protocol.StrategyFactory) {
	r.strategyFactories[factory.Kind()] = factory
}

// RegisterPredicate makes a named custom gate predicate available.
func (r *Registry) RegisterPredicate(name string, predicate protocol.Predicate) {
	r.predicates[name] = predicate
}

// CreateStrategy validates params against the strategy's schema and builds
// an instance.
func (r *Registry) CreateStrategy(kind models.StrategyKind, params map[string]any) (protocol.AssignmentStrategy, error) {
	factory, ok := r.strategyFactories[kind]
	if !ok {
		return nil, fmt.Errorf("assignment strategy %q not registered", kind)
	}

	if err := validateAgainstSchema(factory.Schema(), params); err != nil {
		return nil, fmt.Errorf("invalid params for strategy %q: %w", kind, err)
	}

	return factory.Create(params)
}

// Predicate returns a registered custom gate predicate by name.
func (r *Registry) Predicate(name string) (protocol.Predicate, bool) {
	predicate, ok := r.predicates[name]

	return predicate, ok
}

// StrategyKinds returns the registered strategy kinds.
func (r *Registry) StrategyKinds() []models.StrategyKind {
	kinds := make([]models.StrategyKind, 0, len(r.strategyFactories))
	for kind := range r.strategyFactories {
		kinds = append(kinds, kind)
	}

	return kinds
}
