package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/okian/aiweather/internal/adapters/archive"
	"github.com/okian/aiweather/internal/domain/prompt"
)

// Validate checks every setting and reports all violations at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		fail("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		fail("log_format %q is not one of text, json", c.LogFormat)
	}
	if c.Addr == "" {
		fail("addr must not be empty")
	}

	if c.Weather.APIKey == "" {
		fail("weather.api_key is required")
	}
	if c.Weather.Lat < -90 || c.Weather.Lat > 90 {
		fail("weather.lat %v is outside [-90, 90]", c.Weather.Lat)
	}
	if c.Weather.Lon < -180 || c.Weather.Lon > 180 {
		fail("weather.lon %v is outside [-180, 180]", c.Weather.Lon)
	}
	switch c.Weather.Units {
	case "metric", "imperial", "standard":
	default:
		fail("weather.units %q is not one of metric, imperial, standard", c.Weather.Units)
	}
	if c.Weather.Timeout <= 0 {
		fail("weather.timeout must be positive")
	}
	if _, err := url.ParseRequestURI(c.Weather.BaseURL); err != nil {
		fail("weather.base_url: %v", err)
	}

	if c.AI.MaxConcurrent < 0 {
		fail("ai.max_concurrent must not be negative")
	}
	if c.AI.ThrottleInterval <= 0 {
		fail("ai.throttle_interval must be positive")
	}

	seen := make(map[string]struct{}, len(c.Models))
	files := make(map[string]string, len(c.Models))
	for i, m := range c.Models {
		file := archive.FileName(m.Name)
		if m.Name == "" {
			fail("ai_models[%d].name is required", i)
		} else if _, dup := seen[m.Name]; dup {
			fail("ai_models[%d].name %q is duplicated", i, m.Name)
		} else if other, clash := files[file]; clash {
			fail("ai_models[%d].name %q shares result file %s with %q", i, m.Name, file, other)
		}
		seen[m.Name] = struct{}{}
		if _, ok := files[file]; !ok {
			files[file] = m.Name
		}
		if m.Provider != ProviderOllama {
			fail("ai_models[%d].provider %q is not supported", i, m.Provider)
		}
		if m.ModelID == "" {
			fail("ai_models[%d].model_id is required", i)
		}
		if m.Timeout <= 0 {
			fail("ai_models[%d].timeout must be positive", i)
		}
		if m.Temperature < 0 || m.Temperature > 2 {
			fail("ai_models[%d].temperature %v is outside [0, 2]", i, m.Temperature)
		}
	}

	if _, err := url.ParseRequestURI(c.Ollama.BaseURL); err != nil {
		fail("ollama.base_url: %v", err)
	}
	if !prompt.HasPlaceholder(c.Prompt.Template) {
		fail("prompt.template must contain %s", prompt.Placeholder)
	}
	if _, err := c.Location(); err != nil {
		fail("scheduler.timezone: %v", err)
	}
	if c.Scheduler.RefreshMinute < 0 || c.Scheduler.RefreshMinute > 59 {
		fail("scheduler.refresh_minute %d is outside [0, 59]", c.Scheduler.RefreshMinute)
	}
	if c.Storage.DataDir == "" {
		fail("storage.data_dir must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
