package broadcast

import (
	"time"

	"github.com/okian/aiweather/internal/domain/normalize"
	"github.com/okian/aiweather/pkg/logger"
)

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithSendTimeout bounds each delivery to a single observer.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

// WithNormalizer sets the normalizer used to build the html field.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(h *Hub) {
		if n != nil {
			h.normalizer = n
		}
	}
}

// WithLogger sets a custom logger for the hub.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}
