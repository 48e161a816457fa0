package state

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrUnknownWorker = errors.New("worker is not enabled")
	ErrInvalidStatus = errors.New("invalid visualization status")
)
