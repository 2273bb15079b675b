package cmd

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/flowmill/flowmill/pkg/assignment"
	"github.com/flowmill/flowmill/pkg/config"
	"github.com/flowmill/flowmill/pkg/protocol"
	"github.com/flowmill/flowmill/pkg/registry"
)

// NewRegistry builds the strategy/predicate registry with the built-in
// assignment strategies registered against the deployment's collaborators.
func NewRegistry(logger *slog.Logger, directory protocol.Directory, cfg *config.Config) *registry.Registry {
	reg := registry.NewRegistry(logger)

	assignment.RegisterDefaults(reg, assignment.Dependencies{
		Directory: directory,
		Rotation:  NewRotationStore(cfg),
	})

	return reg
}

// NewRotationStore returns the round-robin cursor store: Redis when an
// address is configured (shared across replicas), in-memory otherwise.
func NewRotationStore(cfg *config.Config) protocol.RotationStore {
	if cfg.Redis.Address == "" {
		return assignment.NewMemoryRotationStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return assignment.NewRedisRotationStore(client)
}
