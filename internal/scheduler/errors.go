package scheduler

import "errors"

// Sentinel kinds for cycle errors.
var (
	ErrFetch          = errors.New("weather fetch failed")
	ErrInvalidPayload = errors.New("weather payload is not valid JSON")
	ErrPersist        = errors.New("cycle persistence failed")
	ErrCycleInFlight  = errors.New("a cycle is already in flight")
	ErrStopTimeout    = errors.New("scheduler stop timed out")
	ErrStopped        = errors.New("scheduler stopped")
	ErrInvalidMinute  = errors.New("refresh minute must be within [0, 59]")
	ErrMissingDep     = errors.New("missing scheduler dependency")
)
