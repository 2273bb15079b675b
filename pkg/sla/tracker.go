// Package sla computes time-based compliance status for workflow instances
// and stages. The tracker is a pure function of (start, due, now) so it can
// be tested without wall-clock dependencies.
package sla

import (
	"time"

	"github.com/flowmill/flowmill/pkg/models"
)

// DefaultCriticalAfter is how far past due an item must be before it
// escalates from breached to critical. Deployment-configurable.
const DefaultCriticalAfter = 24 * time.Hour

// warningThreshold is the fraction of the allotted duration after which an
// item still within its due date is flagged.
const warningThreshold = 0.8

// Status is the computed compliance state of one tracked item.
type Status struct {
	Level        models.SLAStatus `json:"level"`
	PercentUsed  float64          `json:"percent_used"`
	HoursOverdue float64          `json:"hours_overdue"`
}

type Tracker struct {
	criticalAfter time.Duration
}

func NewTracker(criticalAfter time.Duration) *Tracker {
	if criticalAfter <= 0 {
		criticalAfter = DefaultCriticalAfter
	}

	return &Tracker{criticalAfter: criticalAfter}
}

// ComputeStatus classifies elapsed time against the allotted duration.
// The result is monotonic in now for fixed startAt/dueAt: on_track ->
// warning -> breached -> critical, never regressing.
func (t *Tracker) ComputeStatus(startAt, dueAt, now time.Time) Status {
	allotted := dueAt.Sub(startAt)
	elapsed := now.Sub(startAt)

	status := Status{}

	if allotted > 0 {
		status.PercentUsed = float64(elapsed) / float64(allotted) * 100
	}

	if now.Before(dueAt) {
		if allotted > 0 && float64(elapsed) >= warningThreshold*float64(allotted) {
			status.Level = models.SLAWarning
		} else {
			status.Level = models.SLAOnTrack
		}

		return status
	}

	overdue := now.Sub(dueAt)
	status.HoursOverdue = overdue.Hours()

	if overdue >= t.criticalAfter {
		status.Level = models.SLACritical
	} else {
		status.Level = models.SLABreached
	}

	return status
}
