package orchestrator

import "errors"

// Sentinel kinds for generation failures.
var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrBackend           = errors.New("generation backend failed")
	ErrCanceled          = errors.New("generation canceled")
)
