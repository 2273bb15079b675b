package protocol

import (
	"context"

	"github.com/flowmill/flowmill/pkg/models"
)

// Directory is the external directory/workload source consulted by
// assignment strategies. All calls are bounded by the caller's context.
type Directory interface {
	GetManagerOf(ctx context.Context, subject models.SubjectRef) (string, error)
	GetOpenItemCount(ctx context.Context, userID string) (int, error)
	GetCandidatesByAttributes(ctx context.Context, attrs map[string]string) ([]string, error)
	GetCandidatesByLocation(ctx context.Context, location string) ([]string, error)
}

// EntityLookup answers existence checks for the related-entity gate rule.
type EntityLookup interface {
	Exists(ctx context.Context, entityType, entityID string) (bool, error)
}

// SubjectProvider exposes read-only fields of the business entity a workflow
// instance drives, for use by gate rules and assignment strategies.
type SubjectProvider interface {
	SubjectFields(ctx context.Context, subject models.SubjectRef) (map[string]any, error)
}

// Compensator is the extension point invoked by the compensate failure
// policy before the instance pauses.
type Compensator interface {
	Compensate(ctx context.Context, instance *models.WorkflowInstance, stage *models.StageInstance, reason string) error
}

// RotationStore persists round-robin rotation state keyed by candidate pool.
// NextIndex returns the next zero-based position for the pool of the given
// size, advancing the stored cursor.
type RotationStore interface {
	NextIndex(ctx context.Context, poolKey string, poolSize int) (int, error)
}
