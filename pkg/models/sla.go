package models

// SLAStatus is the four-level classification of time-based compliance.
type SLAStatus string

const (
	SLAOnTrack  SLAStatus = "on_track" // Elapsed < 80% of allotted duration
	SLAWarning  SLAStatus = "warning"  // Elapsed >= 80%, not yet due
	SLABreached SLAStatus = "breached" // Past due
	SLACritical SLAStatus = "critical" // Past due beyond the critical threshold
)

var slaRank = map[SLAStatus]int{
	SLAOnTrack:  0,
	SLAWarning:  1,
	SLABreached: 2,
	SLACritical: 3,
}

// Rank orders SLA levels for monotonicity checks: a status never regresses
// for a fixed due date as time advances.
func (s SLAStatus) Rank() int {
	return slaRank[s]
}
