// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and environment variables.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"time"
)

// Known values.
const (
	ProviderOllama = "ollama"

	defaultModelTimeout     = 20 * time.Minute
	defaultModelTemperature = 0.7
)

// DefaultPromptTemplate is used when no template is configured.
const DefaultPromptTemplate = `You are a web designer. Create a single, self-contained HTML page
that visualizes the current weather below in a creative way. Use inline CSS
and SVG only; no external resources or scripts. Reply with the HTML only.

Current weather (JSON):
{weather_json}
`

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	Weather   WeatherConfig   `koanf:"weather"`
	AI        AIConfig        `koanf:"ai"`
	Models    []ModelConfig   `koanf:"ai_models"`
	Ollama    OllamaConfig    `koanf:"ollama"`
	Prompt    PromptConfig    `koanf:"prompt"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Storage   StorageConfig   `koanf:"storage"`
}

// WeatherConfig configures the OpenWeather One Call client.
type WeatherConfig struct {
	APIKey  string        `koanf:"api_key"`
	Lat     float64       `koanf:"lat"`
	Lon     float64       `koanf:"lon"`
	Units   string        `koanf:"units"`
	Timeout time.Duration `koanf:"timeout"`
	BaseURL string        `koanf:"base_url"`
}

// AIConfig holds settings shared by all models.
type AIConfig struct {
	// MaxConcurrent bounds simultaneous generations; 0 is unbounded.
	MaxConcurrent int `koanf:"max_concurrent"`

	// ThrottleInterval spaces progress updates per model.
	ThrottleInterval time.Duration `koanf:"throttle_interval"`
}

// ModelConfig is one generation worker.
type ModelConfig struct {
	Name        string        `koanf:"name"`
	Provider    string        `koanf:"provider"`
	ModelID     string        `koanf:"model_id"`
	Timeout     time.Duration `koanf:"timeout"`
	Temperature float64       `koanf:"temperature"`
	Enabled     bool          `koanf:"enabled"`
}

// OllamaConfig configures the Ollama backend.
type OllamaConfig struct {
	BaseURL   string        `koanf:"base_url"`
	Timeout   time.Duration `koanf:"timeout"`
	KeepAlive string        `koanf:"keep_alive"`
}

// PromptConfig holds the generation prompt.
type PromptConfig struct {
	Template string `koanf:"template"`
}

// SchedulerConfig sets when cycles run.
type SchedulerConfig struct {
	Timezone      string `koanf:"timezone"`
	RefreshMinute int    `koanf:"refresh_minute"`
}

// StorageConfig locates the archive.
type StorageConfig struct {
	DataDir string `koanf:"data_dir"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Addr:      ":8000",
		Weather: WeatherConfig{
			Units:   "metric",
			Timeout: 30 * time.Second,
			BaseURL: "https://api.openweathermap.org/data/3.0",
		},
		AI: AIConfig{
			ThrottleInterval: 5 * time.Second,
		},
		Ollama: OllamaConfig{
			BaseURL:   "http://localhost:11434",
			Timeout:   defaultModelTimeout,
			KeepAlive: "0",
		},
		Prompt: PromptConfig{
			Template: DefaultPromptTemplate,
		},
		Scheduler: SchedulerConfig{
			Timezone: "UTC",
		},
		Storage: StorageConfig{
			DataDir: "data",
		},
	}
}

// DefaultModel returns a model entry with defaults applied.
func DefaultModel() ModelConfig {
	return ModelConfig{
		Provider:    ProviderOllama,
		Timeout:     defaultModelTimeout,
		Temperature: defaultModelTemperature,
		Enabled:     true,
	}
}

// EnabledModels returns the enabled models in configuration order.
func (c *Config) EnabledModels() []ModelConfig {
	out := make([]ModelConfig, 0, len(c.Models))
	for _, m := range c.Models {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// EnabledModelNames returns the display names of the enabled models.
func (c *Config) EnabledModelNames() []string {
	models := c.EnabledModels()
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
	}
	return names
}

// Location loads the scheduler time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Scheduler.Timezone)
}
