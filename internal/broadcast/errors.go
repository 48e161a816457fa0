package broadcast

import "errors"

// Sentinel kinds for hub errors.
var (
	ErrObserverClosed = errors.New("observer closed")
	ErrHubClosed      = errors.New("hub closed")
)
