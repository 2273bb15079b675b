package assignment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/protocol"
)

var errEmptyPool = errors.New("candidate pool is empty")

// specificUser always assigns one fixed user.
type specificUser struct {
	userID string
}

func (s *specificUser) Resolve(_ context.Context, _ models.StageContext) ([]string, error) {
	return []string{s.userID}, nil
}

// roundRobin rotates over a fixed candidate pool. The rotation cursor is
// persisted in the RotationStore keyed by pool, so rotation survives process
// restarts and is shared across engine replicas.
type roundRobin struct {
	pool    []string
	poolKey string
	store   protocol.RotationStore
}

func (s *roundRobin) Resolve(ctx context.Context, _ models.StageContext) ([]string, error) {
	if len(s.pool) == 0 {
		return nil, errEmptyPool
	}

	key := s.poolKey
	if key == "" {
		key = strings.Join(s.pool, ",")
	}

	index, err := s.store.NextIndex(ctx, key, len(s.pool))
	if err != nil {
		return nil, fmt.Errorf("rotation store: %w", err)
	}

	return []string{s.pool[index%len(s.pool)]}, nil
}

// leastLoaded queries the workload source for each candidate's open-item
// count and picks the minimum. Ties go to the earlier pool entry.
type leastLoaded struct {
	pool      []string
	directory protocol.Directory
}

func (s *leastLoaded) Resolve(ctx context.Context, _ models.StageContext) ([]string, error) {
	if len(s.pool) == 0 {
		return nil, errEmptyPool
	}

	best := ""
	bestCount := -1

	for _, candidate := range s.pool {
		count, err := s.directory.GetOpenItemCount(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("open item count for %s: %w", candidate, err)
		}

		if bestCount < 0 || count < bestCount {
			best = candidate
			bestCount = count
		}
	}

	return []string{best}, nil
}

// managerOf resolves the subject's reporting manager via the directory.
type managerOf struct {
	directory protocol.Directory
}

func (s *managerOf) Resolve(ctx context.Context, stageCtx models.StageContext) ([]string, error) {
	manager, err := s.directory.GetManagerOf(ctx, stageCtx.Subject)
	if err != nil {
		return nil, fmt.Errorf("manager lookup: %w", err)
	}

	if manager == "" {
		return nil, nil
	}

	return []string{manager}, nil
}

// teamQueue returns the whole pool: assignment is pull-based, anyone in the
// queue may claim the stage.
type teamQueue struct {
	pool []string
}

func (s *teamQueue) Resolve(_ context.Context, _ models.StageContext) ([]string, error) {
	return s.pool, nil
}

// skillBased matches required attributes against candidate profiles in the
// directory.
type skillBased struct {
	attributes map[string]string
	directory  protocol.Directory
}

func (s *skillBased) Resolve(ctx context.Context, _ models.StageContext) ([]string, error) {
	candidates, err := s.directory.GetCandidatesByAttributes(ctx, s.attributes)
	if err != nil {
		return nil, fmt.Errorf("attribute lookup: %w", err)
	}

	return candidates, nil
}

// geographic maps the subject's location to candidates, preferring the
// configured location table and falling back to the directory.
type geographic struct {
	locationField string
	table         map[string][]string
	directory     protocol.Directory
}

func (s *geographic) Resolve(ctx context.Context, stageCtx models.StageContext) ([]string, error) {
	field := s.locationField
	if field == "" {
		field = "location"
	}

	location, _ := stageCtx.SubjectFields[field].(string)
	if location == "" {
		return nil, fmt.Errorf("subject has no %q field", field)
	}

	if candidates, ok := s.table[location]; ok {
		return candidates, nil
	}

	candidates, err := s.directory.GetCandidatesByLocation(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("location lookup: %w", err)
	}

	return candidates, nil
}
