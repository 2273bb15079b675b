package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowmill/flowmill/pkg/models"
)

func TestComputeStatusLevels(t *testing.T) {
	tracker := NewTracker(24 * time.Hour)

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	due := start.Add(24 * time.Hour)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    models.SLAStatus
	}{
		{"fresh", 0, models.SLAOnTrack},
		{"just under warning threshold", 19*time.Hour + 11*time.Minute, models.SLAOnTrack},
		{"at 80 percent", 19*time.Hour + 12*time.Minute, models.SLAWarning},
		{"just before due", 24*time.Hour - time.Minute, models.SLAWarning},
		{"exactly due", 24 * time.Hour, models.SLABreached},
		{"past due", 30 * time.Hour, models.SLABreached},
		{"just under critical", 48*time.Hour - time.Minute, models.SLABreached},
		{"at critical threshold", 48 * time.Hour, models.SLACritical},
		{"deep overdue", 96 * time.Hour, models.SLACritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := tracker.ComputeStatus(start, due, start.Add(tt.elapsed))
			assert.Equal(t, tt.want, status.Level)
		})
	}
}

func TestComputeStatusPercentAndOverdue(t *testing.T) {
	tracker := NewTracker(24 * time.Hour)

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	due := start.Add(10 * time.Hour)

	status := tracker.ComputeStatus(start, due, start.Add(5*time.Hour))
	assert.InDelta(t, 50.0, status.PercentUsed, 0.01)
	assert.Zero(t, status.HoursOverdue)

	status = tracker.ComputeStatus(start, due, start.Add(13*time.Hour))
	assert.InDelta(t, 130.0, status.PercentUsed, 0.01)
	assert.InDelta(t, 3.0, status.HoursOverdue, 0.01)
}

func TestComputeStatusMonotonic(t *testing.T) {
	tracker := NewTracker(24 * time.Hour)

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	due := start.Add(8 * time.Hour)

	previous := -1

	for elapsed := time.Duration(0); elapsed <= 40*time.Hour; elapsed += 17 * time.Minute {
		status := tracker.ComputeStatus(start, due, start.Add(elapsed))
		rank := status.Level.Rank()
		assert.GreaterOrEqual(t, rank, previous, "level regressed at %s", elapsed)
		previous = rank
	}
}

func TestNewTrackerDefaultsCriticalAfter(t *testing.T) {
	tracker := NewTracker(0)

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	due := start.Add(time.Hour)

	status := tracker.ComputeStatus(start, due, due.Add(DefaultCriticalAfter))
	assert.Equal(t, models.SLACritical, status.Level)

	status = tracker.ComputeStatus(start, due, due.Add(DefaultCriticalAfter-time.Minute))
	assert.Equal(t, models.SLABreached, status.Level)
}
