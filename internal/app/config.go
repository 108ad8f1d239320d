package app

import (
	"errors"
	"time"

	"github.com/vk/redogrid/internal/model"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Targets      []string
	Profile      string
	ProfilePaths []string // hcl files or directories
	ManifestPath string   // hcl file

	// Resources override the manifest and profile resource defaults.
	Resources    model.ResourceSpec
	ForceLocal   bool
	User         string
	PollInterval time.Duration

	EventsURL       string
	EventsNamespace string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.Targets) == 0 && cfg.ManifestPath == "" {
		return nil, errors.New("at least one target or a manifest is required")
	}
	if cfg.PollInterval < 0 {
		return nil, errors.New("poll interval must not be negative")
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, errors.New("healthcheck port must be between 0 and 65535")
	}
	return &cfg, nil
}
