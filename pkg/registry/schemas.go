package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowmill/flowmill/pkg/models"
)

// ErrInvalidConfig wraps every configuration validation failure so callers
// can classify them without inspecting messages.
var ErrInvalidConfig = errors.New("invalid configuration")

// ruleSchemas are the parameter schemas for the built-in gate rule kinds.
// Custom predicates carry only a name, checked against the registry.
var ruleSchemas = map[models.RuleKind]map[string]any{
	models.RuleRequiredField: {
		"type":                 "object",
		"required":             []any{"field"},
		"additionalProperties": false,
		"properties": map[string]any{
			"field": map[string]any{"type": "string", "minLength": 1},
		},
	},
	models.RuleFieldCondition: {
		"type":                 "object",
		"required":             []any{"field", "operator", "value"},
		"additionalProperties": false,
		"properties": map[string]any{
			"field":    map[string]any{"type": "string", "minLength": 1},
			"operator": map[string]any{"type": "string", "enum": []any{"eq", "ne", "gt", "lt", "in"}},
			"value":    map[string]any{},
		},
	},
	models.RuleApprovalComplete: {
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"decision_field": map[string]any{"type": "string"},
		},
	},
	models.RuleRelatedEntity: {
		"type":                 "object",
		"required":             []any{"entity_type"},
		"additionalProperties": false,
		"properties": map[string]any{
			"entity_type":     map[string]any{"type": "string", "minLength": 1},
			"entity_id_field": map[string]any{"type": "string"},
		},
	},
	models.RuleMinimumTimeInStage: {
		"type":                 "object",
		"required":             []any{"minimum_hours"},
		"additionalProperties": false,
		"properties": map[string]any{
			"minimum_hours": map[string]any{"type": "number", "exclusiveMinimum": 0},
		},
	},
	models.RuleCustomPredicate: {
		"type":                 "object",
		"required":             []any{"name"},
		"additionalProperties": false,
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "minLength": 1},
		},
	},
}

// ValidateAssignmentConfig checks a stage's assignment config against the
// registered strategy's parameter schema. Called at template publish time.
func (r *Registry) ValidateAssignmentConfig(config models.AssignmentConfig) error {
	factory, ok := r.strategyFactories[config.Strategy]
	if !ok {
		return fmt.Errorf("%w: assignment strategy %q not registered", ErrInvalidConfig, config.Strategy)
	}

	if err := validateAgainstSchema(factory.Schema(), config.Params); err != nil {
		return fmt.Errorf("%w: params for strategy %q: %w", ErrInvalidConfig, config.Strategy, err)
	}

	return nil
}

// ValidateGateRule checks a gate rule's params against its kind's schema and,
// for custom rules, that the named predicate is registered.
func (r *Registry) ValidateGateRule(rule models.GateRule) error {
	schema, ok := ruleSchemas[rule.Kind]
	if !ok {
		return fmt.Errorf("%w: gate rule kind %q not supported", ErrInvalidConfig, rule.Kind)
	}

	if err := validateAgainstSchema(schema, rule.Params); err != nil {
		return fmt.Errorf("%w: params for rule %q: %w", ErrInvalidConfig, rule.Kind, err)
	}

	if rule.Kind == models.RuleCustomPredicate {
		name, _ := rule.Params["name"].(string)
		if _, ok := r.predicates[name]; !ok {
			return fmt.Errorf("%w: custom predicate %q not registered", ErrInvalidConfig, name)
		}
	}

	return nil
}

func validateAgainstSchema(schema, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return errors.New(strings.Join(details, "; "))
	}

	return nil
}
