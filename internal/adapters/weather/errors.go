package weather

import "errors"

// Sentinel kinds for weather fetch errors.
var (
	ErrRequest        = errors.New("weather request failed")
	ErrUpstreamStatus = errors.New("weather API returned an error status")
	ErrMissingCurrent = errors.New("weather response has no current conditions")
)
