package protocol

import (
	"context"

	"github.com/flowmill/flowmill/pkg/models"
)

// PredicateInput is the context a custom gate predicate evaluates against.
type PredicateInput struct {
	Outcome      map[string]any
	StageContext models.StageContext
}

// Predicate is the custom-rule extension point for gates. It returns whether
// the rule passes and, when it does not, a human-readable reason.
type Predicate func(ctx context.Context, input PredicateInput) (bool, string, error)
