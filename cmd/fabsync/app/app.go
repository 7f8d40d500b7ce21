// Package app provides the application context and dependency
// management for the fabsync CLI. It centralizes configuration,
// logging, and client lifecycle so commands stay thin.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync"
	"github.com/netfabric/fabsync/internal/appcontext"
	"github.com/netfabric/fabsync/internal/config"
	"github.com/netfabric/fabsync/internal/registry"
)

// Ensure App implements appcontext.Interface at compile time.
var _ appcontext.Interface = (*App)(nil)

// App represents the fabsync application with all its dependencies. It
// provides a centralized place for configuration, logging, and the
// fabsync client instance.
type App struct {
	// Version information
	version string
	commit  string
	date    string

	// Configuration
	config *config.Config

	// Logger
	logger *zerolog.Logger

	// Client instance (lazy-initialized, singleton)
	mu     sync.RWMutex
	client fabsync.Client
}

// New creates a new App instance with the given version information.
func New(version, commit, date string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	app.config = cfg

	logger := NewLogger(cfg)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// Config returns the application configuration.
func (a *App) Config() *config.Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the requested output format.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// Client returns the fabsync client, creating it lazily if needed.
// This is thread-safe and ensures only one instance is created.
func (a *App) Client() (fabsync.Client, error) {
	a.mu.RLock()
	if a.client != nil {
		c := a.client
		a.mu.RUnlock()
		return c, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double-check after acquiring write lock
	if a.client != nil {
		return a.client, nil
	}

	c, err := a.buildClient()
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}

	a.client = c
	return c, nil
}

// buildClient constructs the fabsync client from the app configuration.
// The registry is opened here so the credential-overlaying fabric
// source can share it with the client.
func (a *App) buildClient() (fabsync.Client, error) {
	var reg registry.Registry
	if a.config.RegistryPath != "" {
		r, err := registry.OpenSQLite(a.config.RegistryPath)
		if err != nil {
			return nil, err
		}
		reg = r
	} else {
		reg = registry.NewMemory()
	}

	src := config.NewSource(reg, a.config)
	if err := src.Seed(context.Background()); err != nil {
		_ = reg.Close()
		return nil, err
	}

	opts := []fabsync.Option{
		fabsync.WithRegistry(reg),
		fabsync.WithFabricSource(src),
		fabsync.WithLogger(a.logger),
	}
	if a.config.SyncInterval > 0 {
		opts = append(opts,
			fabsync.WithSyncInterval(a.config.SyncInterval),
			fabsync.WithScheduledSync(true))
	}

	c, err := fabsync.New(opts...)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}
	return c, nil
}

// Shutdown performs graceful shutdown of the application, closing the
// client if one was created.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.RLock()
	c := a.client
	a.mu.RUnlock()

	if c != nil {
		return c.Close()
	}
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) error {
		a.config = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithClient sets a custom client instance (useful for testing).
func WithClient(c fabsync.Client) Option {
	return func(a *App) error {
		a.client = c
		return nil
	}
}
