// Package weather fetches current conditions from the OpenWeather One Call API.
package weather

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/aiweather/pkg/logger"
)

const (
	// DefaultBaseURL is the One Call 3.0 endpoint root.
	DefaultBaseURL = "https://api.openweathermap.org/data/3.0"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Config locates the forecast and authenticates the request.
type Config struct {
	APIKey  string
	Lat     float64
	Lon     float64
	Units   string
	BaseURL string
	Timeout time.Duration
}

// Client is a One Call API client.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Units == "" {
		cfg.Units = "metric"
	}
	c := &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("weather")
	}
	return c
}

// Fetch returns the "current" object of the One Call response as compact JSON.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(c.cfg.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(c.cfg.Lon, 'f', -1, 64))
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", c.cfg.Units)
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/onecall?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRequest, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error carries the full URL, API key included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return "", fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%w: %d %s", ErrUpstreamStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Current json.RawMessage `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode: %w", ErrRequest, err)
	}
	if len(payload.Current) == 0 || string(payload.Current) == "null" {
		return "", ErrMissingCurrent
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, payload.Current); err != nil {
		return "", fmt.Errorf("%w: compact: %w", ErrRequest, err)
	}
	c.log.Info(ctx, "weather fetched", logger.String("api_version", "3.0"), logger.Int("bytes", buf.Len()))
	return buf.String(), nil
}
