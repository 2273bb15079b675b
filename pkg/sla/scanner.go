package sla

import (
	"context"
	"log/slog"

	"github.com/flowmill/flowmill/pkg/events"
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
)

// InstanceRefresher recomputes SLA levels for a single instance under its
// serialization lock and persists any changes. Implemented by the engine.
type InstanceRefresher interface {
	RefreshSLA(ctx context.Context, instanceID string) ([]events.Event, error)
}

// Scanner sweeps running instances and recomputes SLA status for each one.
// A scan is idempotent: running it twice at the same logical time emits no
// additional events, because the refresher only reports level transitions.
type Scanner struct {
	persistence persistence.Persistence
	refresher   InstanceRefresher
	logger      *slog.Logger
}

func NewScanner(p persistence.Persistence, refresher InstanceRefresher, logger *slog.Logger) *Scanner {
	return &Scanner{
		persistence: p,
		refresher:   refresher,
		logger:      logger.With("module", "sla_scanner"),
	}
}

// ScanActiveInstances refreshes every running instance and returns the SLA
// status change events emitted across the sweep. Failures on individual
// instances are logged and skipped so one bad record cannot stall the scan.
func (s *Scanner) ScanActiveInstances(ctx context.Context) ([]events.Event, error) {
	instances, err := s.persistence.Instances().ListByStatus(ctx, models.InstanceStatusRunning)
	if err != nil {
		return nil, err
	}

	var changes []events.Event

	for _, instance := range instances {
		evs, err := s.refresher.RefreshSLA(ctx, instance.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to refresh SLA for instance",
				"instance_id", instance.ID, "error", err)

			continue
		}

		changes = append(changes, evs...)
	}

	s.logger.InfoContext(ctx, "SLA scan completed",
		"instances_scanned", len(instances), "status_changes", len(changes))

	return changes, nil
}
