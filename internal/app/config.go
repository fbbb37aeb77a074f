package app

import (
	"errors"
	"fmt"
	"slices"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	BuildPath string // subjects and roots
	RulesPath string // types and rules; skipped when it does not exist

	Workers         int
	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	VisualizePath string
	TracePath     string
	OTLPEndpoint  string
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.BuildPath == "" {
		return nil, errors.New("BuildPath is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.LogLevel != "" && !slices.Contains(validLogLevels, cfg.LogLevel) {
		return nil, fmt.Errorf("invalid log level %q: must be one of %v", cfg.LogLevel, validLogLevels)
	}
	if cfg.LogFormat != "" && !slices.Contains(validLogFormats, cfg.LogFormat) {
		return nil, fmt.Errorf("invalid log format %q: must be one of %v", cfg.LogFormat, validLogFormats)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("healthcheck port out of range: %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}
