package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"

	"github.com/okian/aiweather/internal/domain/types"
	"github.com/okian/aiweather/pkg/logger"
)

const (
	outputFilePermission = 0o600
	// Model pages can be large; the server sends raw and normalized HTML.
	maxMessageBytes = 16 << 20
)

// Summary describes a finished watch.
type Summary struct {
	Messages map[string]int
	Problems []string
	Complete bool
	Elapsed  time.Duration
}

// message is the union of fields the watcher looks at.
type message struct {
	types.Envelope
	Models    []string        `json:"models,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Weather   json.RawMessage `json:"weather,omitempty"`
	ModelName string          `json:"model_name,omitempty"`
	HTML      *string         `json:"html,omitempty"`
	RawHTML   *string         `json:"raw_html,omitempty"`
	Status    string          `json:"status,omitempty"`
	Prompt    string          `json:"prompt_template,omitempty"`
}

// Run checks /health, connects to /ws and prints each message to out until
// ctx ends, cfg.Duration elapses or the server closes the connection.
func Run(ctx context.Context, cfg Config, out io.Writer) (Summary, error) {
	log := logger.Named("watch")
	start := time.Now()
	sum := Summary{Messages: make(map[string]int)}

	httpBase, wsURL, err := cfg.endpoints()
	if err != nil {
		return sum, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: cfg.Timeout}

	if err := CheckHealth(ctx, client, httpBase); err != nil {
		return sum, err
	}
	log.Info(ctx, "service healthy", logger.String("url", httpBase))

	var sink *json.Encoder
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFilePermission)
		if err != nil {
			return sum, fmt.Errorf("open output: %w", err)
		}
		defer func() { _ = f.Close() }()
		sink = json.NewEncoder(f)
	}

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, cfg.Timeout)
	c, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{HTTPClient: client})
	cancelDial()
	if err != nil {
		return sum, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer func() { _ = c.Close(websocket.StatusNormalClosure, "") }()
	c.SetReadLimit(maxMessageBytes)
	log.Info(ctx, "connected", logger.String("url", wsURL))

	var v Verifier
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			sum.Elapsed = time.Since(start)
			sum.Problems = v.Problems()
			sum.Complete = v.Complete()
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return sum, nil
			}
			return sum, fmt.Errorf("read: %w", err)
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn(ctx, "undecodable message", logger.Error(err))
			continue
		}
		sum.Messages[msg.Type]++
		v.Observe(msg.Type, msg.ModelName, msg.Models)

		if sink != nil {
			if err := sink.Encode(json.RawMessage(data)); err != nil {
				return sum, fmt.Errorf("write output: %w", err)
			}
		}
		if cfg.Verbose {
			_, _ = fmt.Fprintf(out, "%s\n", data)
		} else {
			_, _ = fmt.Fprintln(out, describe(msg))
		}
	}
}

// CheckHealth fails unless GET /health answers 200.
func CheckHealth(ctx context.Context, client *http.Client, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: %w: %s", ErrUnhealthy, resp.Status)
	}
	return nil
}

// ErrUnhealthy is returned when the service does not report healthy.
var ErrUnhealthy = errors.New("service unhealthy")

// describe renders a one-line summary of msg.
func describe(msg message) string {
	switch msg.Type {
	case types.TypeConfigInfo:
		return fmt.Sprintf("config_info          models=%v", msg.Models)
	case types.TypeWeatherData:
		return fmt.Sprintf("weather_data         timestamp=%s bytes=%d", msg.Timestamp, len(msg.Weather))
	case types.TypeVisualizationUpdate:
		size := -1
		if msg.HTML != nil {
			size = len(*msg.HTML)
		}
		return fmt.Sprintf("visualization_update model=%q status=%s html_bytes=%d", msg.ModelName, msg.Status, size)
	default:
		return "unknown              type=" + msg.Type
	}
}
