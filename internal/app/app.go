package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/npurunner/internal/artifacts"
	"github.com/vk/npurunner/internal/ctxlog"
	"github.com/vk/npurunner/internal/device/sim"
	"github.com/vk/npurunner/internal/recipe"
	"github.com/vk/npurunner/internal/reportsink"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	ctx        context.Context
	config     *Config
	platform   recipe.Platform
	repo       artifacts.Repo
	sink       reportsink.Sink
	httpServer *http.Server
}

// Option customizes an App.
type Option func(*App)

// WithPlatform replaces the simulated device the app runs on by default.
func WithPlatform(plat recipe.Platform) Option {
	return func(a *App) { a.platform = plat }
}

// WithSink sets the report sink instead of dialing Config.ReportURL.
func WithSink(sink reportsink.Sink) Option {
	return func(a *App) { a.sink = sink }
}

// WithRepo sets the artifact repository instead of a file repository at
// Config.ArtifactsRoot.
func WithRepo(repo artifacts.Repo) Option {
	return func(a *App) { a.repo = repo }
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger.
func NewApp(ctx context.Context, outW io.Writer, config *Config, opts ...Option) *App {
	logger := newLogger(config.LogLevel, config.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:   outW,
		logger: logger,
		ctx:    ctx,
		config: config,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.platform.Device == nil {
		dev := sim.New()
		sim.RegisterBuiltins(dev)
		a.platform = recipe.Platform{Device: dev, Host: dev}
		logger.Debug("Using simulated device.")
	}
	if a.repo == nil {
		root := config.ArtifactsRoot
		if root == "" {
			root = descriptionDir(config.RecipePath)
		}
		a.repo = artifacts.NewFileRepo(root)
		logger.Debug("Artifact repository configured.", "id", a.repo.ID())
	}
	return a
}

// descriptionDir is the directory of a description file, or "" for inline
// descriptions.
func descriptionDir(text string) string {
	if strings.HasPrefix(strings.TrimSpace(text), "{") {
		return ""
	}
	if _, err := os.Stat(text); err != nil {
		return ""
	}
	return filepath.Dir(text)
}
