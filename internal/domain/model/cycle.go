// Package model contains domain models passed between layers.
package model

import "time"

// Status is the lifecycle of one worker's visualization inside the state cache.
type Status string

// Visualization statuses. A worker moves outdated -> generating -> up_to_date
// within one cycle.
const (
	StatusOutdated   Status = "outdated"
	StatusGenerating Status = "generating"
	StatusUpToDate   Status = "up_to_date"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOutdated, StatusGenerating, StatusUpToDate:
		return true
	default:
		return false
	}
}

// CycleSnapshot is the unit of work and of persistence for one hourly cycle.
type CycleSnapshot struct {
	Timestamp   time.Time // top of the hour, primary archive key
	RawData     string    // external payload, verbatim
	WorkerNames []string  // enabled workers expected to produce output
	Prompt      string    // fully rendered prompt
}

// TruncateToHour returns t with minutes, seconds and nanoseconds cleared,
// keeping t's location.
func TruncateToHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
