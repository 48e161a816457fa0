// Package watch is a command line observer for the service: it connects to
// the websocket endpoint, prints what it receives and checks the order of
// the initial state burst.
package watch

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 10 * time.Second
)

// ErrInvalidURL is returned for base URLs that are not http or https.
var ErrInvalidURL = errors.New("invalid base url")

// Config holds watch settings.
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:8000.
	BaseURL string
	// Duration stops the watch after this long; zero waits for a signal.
	Duration time.Duration
	// Timeout bounds HTTP requests and the websocket handshake.
	Timeout time.Duration
	// Output, when set, receives every message as a JSON line.
	Output string
	// Verbose prints full payloads instead of summaries.
	Verbose bool
}

// endpoints derives the HTTP and websocket URLs from BaseURL.
func (c Config) endpoints() (httpBase, wsURL string, err error) {
	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/"))
	if err != nil {
		return "", "", errors.Join(ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "http":
		httpBase = u.String()
		u.Scheme = "ws"
	case "https":
		httpBase = u.String()
		u.Scheme = "wss"
	default:
		return "", "", ErrInvalidURL
	}
	u.Path += "/ws"
	return httpBase, u.String(), nil
}

// ErrOrdering is returned when the initial state burst arrives out of order.
var ErrOrdering = errors.New("unexpected message order")
