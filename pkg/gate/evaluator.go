// Package gate evaluates stage exit preconditions. A gate is a list of rules
// combined with AND semantics; evaluation collects every failing rule so the
// caller can surface all blockers at once.
package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/protocol"
	"github.com/flowmill/flowmill/pkg/registry"
)

// DefaultLookupTimeout bounds the related-entity existence check, the only
// rule that leaves process memory.
const DefaultLookupTimeout = 3 * time.Second

// Input carries everything a gate evaluation may inspect.
type Input struct {
	Outcome      map[string]any
	StageContext models.StageContext
	ActivatedAt  *time.Time
	Now          time.Time
}

type Evaluator struct {
	registry      *registry.Registry
	lookup        protocol.EntityLookup
	lookupTimeout time.Duration
}

func NewEvaluator(reg *registry.Registry, lookup protocol.EntityLookup, lookupTimeout time.Duration) *Evaluator {
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultLookupTimeout
	}

	return &Evaluator{
		registry:      reg,
		lookup:        lookup,
		lookupTimeout: lookupTimeout,
	}
}

// Evaluate runs every rule and returns the full decision. Rule evaluation
// errors count as failures with the error as reason: a broken rule must
// never let a stage slip through its gate.
func (e *Evaluator) Evaluate(ctx context.Context, rules []models.GateRule, input Input) models.GateDecision {
	decision := models.GateDecision{Pass: true}

	for _, rule := range rules {
		pass, reason := e.evaluateRule(ctx, rule, input)
		if !pass {
			decision.Pass = false
			decision.Failures = append(decision.Failures, models.RuleFailure{
				Kind:   rule.Kind,
				Reason: reason,
			})
		}
	}

	return decision
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule models.GateRule, input Input) (bool, string) {
	switch rule.Kind {
	case models.RuleRequiredField:
		return evaluateRequiredField(rule.Params, input)
	case models.RuleFieldCondition:
		return evaluateFieldCondition(rule.Params, input)
	case models.RuleApprovalComplete:
		return evaluateApprovalComplete(rule.Params, input)
	case models.RuleRelatedEntity:
		return e.evaluateRelatedEntity(ctx, rule.Params, input)
	case models.RuleMinimumTimeInStage:
		return evaluateMinimumTime(rule.Params, input)
	case models.RuleCustomPredicate:
		return e.evaluateCustom(ctx, rule.Params, input)
	default:
		return false, fmt.Sprintf("unsupported rule kind %q", rule.Kind)
	}
}

func evaluateRequiredField(params map[string]any, input Input) (bool, string) {
	field, _ := params["field"].(string)

	value, ok := lookupField(field, input)
	if !ok || value == nil || value == "" {
		return false, fmt.Sprintf("required field %q is missing", field)
	}

	return true, ""
}

func evaluateFieldCondition(params map[string]any, input Input) (bool, string) {
	field, _ := params["field"].(string)
	operator, _ := params["operator"].(string)
	expected := params["value"]

	actual, ok := lookupField(field, input)
	if !ok {
		return false, fmt.Sprintf("field %q is missing", field)
	}

	pass, err := compare(operator, actual, expected)
	if err != nil {
		return false, fmt.Sprintf("field %q: %v", field, err)
	}

	if !pass {
		return false, fmt.Sprintf("field %q value %v does not satisfy %s %v", field, actual, operator, expected)
	}

	return true, ""
}

// evaluateApprovalComplete checks that an approval decision has been
// recorded. The decision value itself (approved vs rejected) is business
// outcome, routed by the caller; the gate only requires that it exists.
func evaluateApprovalComplete(params map[string]any, input Input) (bool, string) {
	field, _ := params["decision_field"].(string)
	if field == "" {
		field = "decision"
	}

	value, ok := lookupField(field, input)
	if !ok {
		return false, fmt.Sprintf("approval decision %q not recorded", field)
	}

	decision, _ := value.(string)
	if decision == "" {
		return false, fmt.Sprintf("approval decision %q not recorded", field)
	}

	return true, ""
}

func (e *Evaluator) evaluateRelatedEntity(ctx context.Context, params map[string]any, input Input) (bool, string) {
	entityType, _ := params["entity_type"].(string)

	idField, _ := params["entity_id_field"].(string)
	if idField == "" {
		idField = "entity_id"
	}

	value, ok := lookupField(idField, input)
	if !ok {
		return false, fmt.Sprintf("related entity ID field %q is missing", idField)
	}

	entityID, _ := value.(string)
	if entityID == "" {
		return false, fmt.Sprintf("related entity ID field %q is empty", idField)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	exists, err := e.lookup.Exists(lookupCtx, entityType, entityID)
	if err != nil {
		return false, fmt.Sprintf("related entity lookup failed: %v", err)
	}

	if !exists {
		return false, fmt.Sprintf("related %s %s does not exist", entityType, entityID)
	}

	return true, ""
}

func evaluateMinimumTime(params map[string]any, input Input) (bool, string) {
	minimumHours, _ := params["minimum_hours"].(float64)

	if input.ActivatedAt == nil {
		return false, "stage has no activation time"
	}

	elapsed := input.Now.Sub(*input.ActivatedAt)
	required := time.Duration(minimumHours * float64(time.Hour))

	if elapsed < required {
		return false, fmt.Sprintf("stage active for %s, requires %s", elapsed.Round(time.Minute), required)
	}

	return true, ""
}

func (e *Evaluator) evaluateCustom(ctx context.Context, params map[string]any, input Input) (bool, string) {
	name, _ := params["name"].(string)

	predicate, ok := e.registry.Predicate(name)
	if !ok {
		return false, fmt.Sprintf("custom predicate %q not registered", name)
	}

	pass, reason, err := predicate(ctx, protocol.PredicateInput{
		Outcome:      input.Outcome,
		StageContext: input.StageContext,
	})
	if err != nil {
		return false, fmt.Sprintf("custom predicate %q failed: %v", name, err)
	}

	if !pass && reason == "" {
		reason = fmt.Sprintf("custom predicate %q rejected", name)
	}

	return pass, reason
}

// lookupField resolves a dotted path, checking the stage outcome first and
// the subject's fields second.
func lookupField(path string, input Input) (any, bool) {
	if value, ok := lookupPath(path, input.Outcome); ok {
		return value, true
	}

	return lookupPath(path, input.StageContext.SubjectFields)
}

func lookupPath(path string, data map[string]any) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}

	parts := strings.Split(path, ".")
	current := any(data)

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
