package orchestrator

import (
	"time"

	"github.com/okian/aiweather/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithProvider registers a generation backend under a provider name.
func WithProvider(name string, g Generator) Option {
	return func(o *Orchestrator) {
		if name != "" && g != nil {
			o.providers[name] = g
		}
	}
}

// WithMaxConcurrent bounds in-flight backend calls. Zero means unbounded.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxConcurrent = n
		}
	}
}

// WithThrottleInterval sets the minimum spacing of progress updates per worker.
func WithThrottleInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.throttle = d
		}
	}
}

// WithLogger sets a custom logger for the orchestrator.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}
