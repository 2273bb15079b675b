package assignment

import (
	"fmt"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/protocol"
	"github.com/flowmill/flowmill/pkg/registry"
)

// Dependencies are the external collaborators strategies close over.
type Dependencies struct {
	Directory protocol.Directory
	Rotation  protocol.RotationStore
}

// RegisterDefaults registers the seven built-in strategies.
func RegisterDefaults(reg *registry.Registry, deps Dependencies) {
	reg.RegisterStrategy(&specificUserFactory{})
	reg.RegisterStrategy(&roundRobinFactory{store: deps.Rotation})
	reg.RegisterStrategy(&leastLoadedFactory{directory: deps.Directory})
	reg.RegisterStrategy(&managerOfFactory{directory: deps.Directory})
	reg.RegisterStrategy(&teamQueueFactory{})
	reg.RegisterStrategy(&skillBasedFactory{directory: deps.Directory})
	reg.RegisterStrategy(&geographicFactory{directory: deps.Directory})
}

func poolSchema() map[string]any {
	return map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "string", "minLength": 1},
		"minItems": 1,
	}
}

func stringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))

		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil
			}

			result = append(result, s)
		}

		return result
	default:
		return nil
	}
}

type specificUserFactory struct{}

func (f *specificUserFactory) Kind() models.StrategyKind { return models.StrategySpecificUser }

func (f *specificUserFactory) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"required":             []any{"user_id"},
		"additionalProperties": false,
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string", "minLength": 1},
		},
	}
}

func (f *specificUserFactory) Create(params map[string]any) (protocol.AssignmentStrategy, error) {
	userID, _ := params["user_id"].(string)

	return &specificUser{userID: userID}, nil
}

type roundRobinFactory struct {
	store protocol.RotationStore
}

func (f *roundRobinFactory) Kind() models.StrategyKind { return models.StrategyRoundRobin }

func (f *roundRobinFactory) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"required":             []any{"pool"},
		"additionalProperties": false,
		"properties": map[string]any{
			"pool":     poolSchema(),
			"pool_key": map[string]any{"type": "string"},
		},
	}
}

func (f *roundRobinFactory) Create(params map[string]any) (protocol.AssignmentStrategy, error) {
	pool := stringSlice(params["pool"])
	if pool == nil {
		return nil, fmt.Errorf("round_robin requires a string pool")
	}

	poolKey, _ := params["pool_key"].(string)

	return &roundRobin{pool: pool, poolKey: poolKey, store: f.store}, nil
}

type leastLoadedFactory struct {
	directory protocol.Directory
}

func (f *leastLoadedFactory) Kind() models.StrategyKind { return models.StrategyLeastLoaded }

func (f *leastLoadedFactory) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"required":             []any{"pool"},
		"additionalProperties": false,
		"properties": map[string]any{
			"pool": poolSchema(),
		},
	}
}

func (f *leastLoadedFactory) Create(params map[string]any) (protocol.AssignmentStrategy, error) {
	pool := stringSlice(params["pool"])
	if pool == nil {
		return nil, fmt.Errorf("least_loaded requires a string pool")
	}

	return &leastLoaded{pool: pool, directory: f.directory}, nil
}

type managerOfFactory struct {
	directory protocol.Directory
}

func (f *managerOfFactory) Kind() models.StrategyKind { return models.StrategyManagerOf }

func (f *managerOfFactory) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           map[string]any{},
	}
}

func (f *managerOfFactory) Create(_ map[string]any) (protocol.AssignmentStrategy, error) {
	return &managerOf{directory: f.directory}, nil
}

type teamQueueFactory struct{}

func (f *teamQueueFactory) Kind() models.StrategyKind { return models.StrategyTeamQueue }

func (f *teamQueueFactory) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"required":             []any{"pool"},
		"additionalProperties": false,
		"properties": map[string]any{
			"pool": poolSchema(),
		},
	}
}

func (f *teamQueueFactory) Create(params map[string]any) (protocol.AssignmentStrategy, error) {
	pool := stringSlice(params["pool"])
	if pool == nil {
		return nil, fmt.Errorf("team_queue requires a string pool")
	}

	return &teamQueue{pool: pool}, nil
}

type skillBasedFactory struct {
	directory protocol.Directory
}

func (f *skillBasedFactory) Kind() models.StrategyKind { return models.StrategySkillBased }

func (f *skillBasedFactory) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"required":             []any{"attributes"},
		"additionalProperties": false,
		"properties": map[string]any{
			"attributes": map[string]any{
				"type":                 "object",
				"minProperties":        1,
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
	}
}

func (f *skillBasedFactory) Create(params map[string]any) (protocol.AssignmentStrategy, error) {
	raw, _ := params["attributes"].(map[string]any)
	if len(raw) == 0 {
		return nil, fmt.Errorf("skill_based requires attributes")
	}

	attributes := make(map[string]string, len(raw))

	for key, value := range raw {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("skill_based attribute %q is not a string", key)
		}

		attributes[key] = s
	}

	return &skillBased{attributes: attributes, directory: f.directory}, nil
}

type geographicFactory struct {
	directory protocol.Directory
}

func (f *geographicFactory) Kind() models.StrategyKind { return models.StrategyGeographic }

func (f *geographicFactory) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"location_field": map[string]any{"type": "string"},
			"table": map[string]any{
				"type":                 "object",
				"additionalProperties": poolSchema(),
			},
		},
	}
}

func (f *geographicFactory) Create(params map[string]any) (protocol.AssignmentStrategy, error) {
	locationField, _ := params["location_field"].(string)

	table := make(map[string][]string)

	if raw, ok := params["table"].(map[string]any); ok {
		for location, value := range raw {
			pool := stringSlice(value)
			if pool == nil {
				return nil, fmt.Errorf("geographic table entry %q is not a string list", location)
			}

			table[location] = pool
		}
	}

	return &geographic{locationField: locationField, table: table, directory: f.directory}, nil
}
