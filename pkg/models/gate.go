package models

// RuleKind identifies a gate precondition rule. Rules combine with AND
// semantics; all failures are collected, not just the first.
type RuleKind string

const (
	RuleRequiredField      RuleKind = "required_field"       // Field present and non-empty in the outcome
	RuleFieldCondition     RuleKind = "field_condition"      // Field compares against a value (eq/ne/gt/lt/in)
	RuleApprovalComplete   RuleKind = "approval_complete"    // Outcome carries an approval decision
	RuleRelatedEntity      RuleKind = "related_entity"       // External entity exists (bounded lookup)
	RuleMinimumTimeInStage RuleKind = "minimum_time_in_stage" // Elapsed time since activation
	RuleCustomPredicate    RuleKind = "custom"               // Named predicate from the registry
)

// GateRule is one precondition in a stage's gate. Params are validated
// against the rule kind's JSON schema when the template is published.
type GateRule struct {
	Kind   RuleKind       `json:"kind" validate:"required"`
	Params map[string]any `json:"params,omitempty"`
}

// RuleFailure describes one failed gate rule. The full set is surfaced to
// callers so every blocker can be displayed at once.
type RuleFailure struct {
	Kind   RuleKind `json:"kind"`
	Reason string   `json:"reason"`
}

// GateDecision is the result of evaluating a stage's gate.
type GateDecision struct {
	Pass     bool          `json:"pass"`
	Failures []RuleFailure `json:"failures,omitempty"`
}
