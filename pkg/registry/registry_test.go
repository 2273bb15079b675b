package registry_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmill/flowmill/pkg/assignment"
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/protocol"
	"github.com/flowmill/flowmill/pkg/registry"
)

type nullDirectory struct{}

func (d *nullDirectory) GetManagerOf(_ context.Context, _ models.SubjectRef) (string, error) {
	return "", nil
}

func (d *nullDirectory) GetOpenItemCount(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (d *nullDirectory) GetCandidatesByAttributes(_ context.Context, _ map[string]string) ([]string, error) {
	return nil, nil
}

func (d *nullDirectory) GetCandidatesByLocation(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func newRegistry() *registry.Registry {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.NewRegistry(logger)
	assignment.RegisterDefaults(reg, assignment.Dependencies{
		Directory: &nullDirectory{},
		Rotation:  assignment.NewMemoryRotationStore(),
	})

	return reg
}

func TestRegisterDefaultsCoversAllKinds(t *testing.T) {
	reg := newRegistry()

	kinds := reg.StrategyKinds()
	assert.Len(t, kinds, 7)

	for _, kind := range []models.StrategyKind{
		models.StrategySpecificUser,
		models.StrategyRoundRobin,
		models.StrategyLeastLoaded,
		models.StrategyManagerOf,
		models.StrategyTeamQueue,
		models.StrategySkillBased,
		models.StrategyGeographic,
	} {
		assert.Contains(t, kinds, kind)
	}
}

func TestCreateStrategyValidatesParams(t *testing.T) {
	reg := newRegistry()

	strategy, err := reg.CreateStrategy(models.StrategySpecificUser, map[string]any{"user_id": "alice"})
	require.NoError(t, err)
	require.NotNil(t, strategy)

	assignees, err := strategy.Resolve(context.Background(), models.StageContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, assignees)

	_, err = reg.CreateStrategy(models.StrategySpecificUser, map[string]any{"user_id": ""})
	assert.Error(t, err)

	_, err = reg.CreateStrategy(models.StrategySpecificUser, map[string]any{"user_id": "alice", "extra": true})
	assert.Error(t, err, "unknown parameters are rejected")

	_, err = reg.CreateStrategy(models.StrategyKind("nope"), nil)
	assert.Error(t, err)
}

func TestValidateAssignmentConfig(t *testing.T) {
	reg := newRegistry()

	err := reg.ValidateAssignmentConfig(models.AssignmentConfig{
		Strategy: models.StrategyRoundRobin,
		Params:   map[string]any{"pool": []any{"a", "b"}},
	})
	assert.NoError(t, err)

	err = reg.ValidateAssignmentConfig(models.AssignmentConfig{
		Strategy: models.StrategyRoundRobin,
		Params:   map[string]any{"pool": []any{}},
	})
	assert.ErrorIs(t, err, registry.ErrInvalidConfig)

	err = reg.ValidateAssignmentConfig(models.AssignmentConfig{
		Strategy: models.StrategyKind("nope"),
	})
	assert.ErrorIs(t, err, registry.ErrInvalidConfig)
}

func TestValidateGateRule(t *testing.T) {
	reg := newRegistry()

	tests := []struct {
		name    string
		rule    models.GateRule
		wantErr bool
	}{
		{
			name: "valid required_field",
			rule: models.GateRule{Kind: models.RuleRequiredField, Params: map[string]any{"field": "x"}},
		},
		{
			name:    "required_field without field",
			rule:    models.GateRule{Kind: models.RuleRequiredField},
			wantErr: true,
		},
		{
			name: "valid field_condition",
			rule: models.GateRule{Kind: models.RuleFieldCondition, Params: map[string]any{
				"field": "amount", "operator": "gt", "value": 10,
			}},
		},
		{
			name: "field_condition with bad operator",
			rule: models.GateRule{Kind: models.RuleFieldCondition, Params: map[string]any{
				"field": "amount", "operator": "gte", "value": 10,
			}},
			wantErr: true,
		},
		{
			name: "approval_complete bare",
			rule: models.GateRule{Kind: models.RuleApprovalComplete},
		},
		{
			name: "related_entity",
			rule: models.GateRule{Kind: models.RuleRelatedEntity, Params: map[string]any{"entity_type": "report"}},
		},
		{
			name: "minimum_time_in_stage",
			rule: models.GateRule{Kind: models.RuleMinimumTimeInStage, Params: map[string]any{"minimum_hours": 2.5}},
		},
		{
			name:    "minimum_time_in_stage non-positive",
			rule:    models.GateRule{Kind: models.RuleMinimumTimeInStage, Params: map[string]any{"minimum_hours": 0}},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			rule:    models.GateRule{Kind: models.RuleKind("vibes")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.ValidateGateRule(tt.rule)
			if tt.wantErr {
				assert.ErrorIs(t, err, registry.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateGateRuleCustomPredicateRegistration(t *testing.T) {
	reg := newRegistry()

	rule := models.GateRule{Kind: models.RuleCustomPredicate, Params: map[string]any{"name": "four_eyes"}}

	err := reg.ValidateGateRule(rule)
	assert.ErrorIs(t, err, registry.ErrInvalidConfig)

	reg.RegisterPredicate("four_eyes", func(_ context.Context, _ protocol.PredicateInput) (bool, string, error) {
		return true, "", nil
	})

	assert.NoError(t, reg.ValidateGateRule(rule))
}
