// Package ollama is the generation backend for models served by Ollama.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/okian/aiweather/pkg/logger"
)

// Provider is the provider name workers use to select this backend.
const Provider = "ollama"

const (
	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 20 * time.Minute
)

// ErrInvalidKeepAlive is returned for keep-alive values that are neither a
// duration nor a number of seconds.
var ErrInvalidKeepAlive = errors.New("invalid keep_alive")

// Config configures the Ollama connection.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	KeepAlive string
}

// Client streams generations from an Ollama server.
type Client struct {
	api       *api.Client
	keepAlive *api.Duration
	log       logger.Logger
}

// New creates a Client.
func New(cfg Config, l logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama base url: %w", err)
	}
	keepAlive, err := ParseKeepAlive(cfg.KeepAlive)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.Named("ollama")
	}
	c := &Client{
		api:       api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
		keepAlive: keepAlive,
		log:       l,
	}
	c.log.Info(context.Background(), "ollama initialized",
		logger.String("base_url", cfg.BaseURL),
		logger.Duration("timeout", cfg.Timeout),
	)
	return c, nil
}

// ParseKeepAlive accepts "", a Go duration ("5m", "2h") or whole seconds ("0", "-1").
func ParseKeepAlive(s string) (*api.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return &api.Duration{Duration: time.Duration(secs) * time.Second}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKeepAlive, s)
	}
	return &api.Duration{Duration: d}, nil
}

// Generate streams a completion and passes the accumulated text to onChunk
// after every non-empty chunk.
func (c *Client) Generate(ctx context.Context, prompt, modelID string, temperature float64, onChunk func(string)) (string, error) {
	stream := true
	req := &api.GenerateRequest{
		Model:     modelID,
		Prompt:    prompt,
		Stream:    &stream,
		KeepAlive: c.keepAlive,
		Options:   map[string]interface{}{"temperature": temperature},
	}

	var acc strings.Builder
	err := c.api.Generate(ctx, req, func(resp api.GenerateResponse) error {
		if resp.Response == "" {
			return nil
		}
		acc.WriteString(resp.Response)
		if onChunk != nil {
			onChunk(acc.String())
		}
		return nil
	})
	if err != nil {
		c.log.Error(ctx, "generation failed", logger.String("model", modelID), logger.Error(err))
		return "", fmt.Errorf("ollama generate %s: %w", modelID, err)
	}
	c.log.Info(ctx, "html generated", logger.String("model", modelID), logger.Int("length", acc.Len()))
	return acc.String(), nil
}

// IsAvailable reports whether the server answers a model listing.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if _, err := c.api.List(ctx); err != nil {
		c.log.Debug(ctx, "ollama unavailable", logger.Error(err))
		return false
	}
	return true
}
