package models

// StrategyKind identifies an assignment resolution strategy. Strategies are
// pluggable: new kinds are registered with the registry, never hardcoded in
// the transition engine.
type StrategyKind string

const (
	StrategySpecificUser StrategyKind = "specific_user" // Fixed user ID
	StrategyRoundRobin   StrategyKind = "round_robin"   // Rotate over a candidate pool
	StrategyLeastLoaded  StrategyKind = "least_loaded"  // Minimum open-item count wins
	StrategyManagerOf    StrategyKind = "manager_of"    // Subject's reporting manager
	StrategyTeamQueue    StrategyKind = "team_queue"    // Pull-based: whole pool assigned
	StrategySkillBased   StrategyKind = "skill_based"   // Match required attributes
	StrategyGeographic   StrategyKind = "geographic"    // Subject location -> candidate table
)

// AssignmentConfig selects a strategy and carries its parameters. Params are
// validated against the strategy's JSON schema when the template is published.
type AssignmentConfig struct {
	Strategy StrategyKind   `json:"strategy" validate:"required"`
	Params   map[string]any `json:"params,omitempty"`
}

// StageContext is the read-only context handed to assignment strategies and
// gate rules: the subject reference plus whatever subject fields the context
// provider exposes (category, severity, location, ...).
type StageContext struct {
	OrganizationID    string         `json:"organization_id"`
	WorkflowInstance  string         `json:"workflow_instance_id"`
	StageDefinitionID string         `json:"stage_definition_id"`
	Subject           SubjectRef     `json:"subject"`
	SubjectFields     map[string]any `json:"subject_fields,omitempty"`
}
