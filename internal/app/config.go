package app

import (
	"errors"
	"fmt"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	RecipePath  string // inline JSON or a description file
	ProfilePath string // optional; inline JSON or a description file

	ArtifactsRoot    string // root of relative artifact paths; defaults to the recipe's directory
	LibraryRoot      string // prefix for relative cpu library names
	RunlistThreshold int    // overrides the recipe's runlist_threshold when positive
	Iterations       int    // Execute calls in bare recipe mode

	ReportURL       string // socket.io endpoint receiving the report
	ReportNamespace string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.RecipePath == "" {
		return nil, errors.New("RecipePath is a required configuration field and cannot be empty")
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = 1
	}
	if cfg.Iterations < 0 {
		return nil, fmt.Errorf("Iterations must be positive, got %d", cfg.Iterations)
	}
	if cfg.RunlistThreshold < 0 {
		return nil, fmt.Errorf("RunlistThreshold must not be negative, got %d", cfg.RunlistThreshold)
	}
	return &cfg, nil
}
