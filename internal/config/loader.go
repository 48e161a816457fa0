package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables controlling Load.
const (
	EnvPrefix   = "AIWEATHER_"
	EnvFile     = "AIWEATHER_CONFIG"
	DefaultFile = "config/config.yaml"

	nestedSeparator = "__"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) from AIWEATHER_CONFIG, or config/config.yaml if present
//  3. env (prefix AIWEATHER_, "__" separates nested keys)
//
// The result is validated.
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	path, required := os.Getenv(EnvFile), true
	if path == "" {
		path, required = DefaultFile, false
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// AIWEATHER_WEATHER__API_KEY -> weather.api_key
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, nestedSeparator, ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// List entries start from model defaults rather than zero values.
	models := k.Slices("ai_models")
	cfg.Models = make([]ModelConfig, 0, len(models))
	for i, mk := range models {
		m := DefaultModel()
		if err := mk.UnmarshalWithConf("", &m, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
			return nil, fmt.Errorf("%w: ai_models[%d]: %w", ErrLoadConfig, i, err)
		}
		cfg.Models = append(cfg.Models, m)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
