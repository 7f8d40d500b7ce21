// Package appcontext provides the shared application context interface
// used by all commands. This gives command packages a single source of
// truth for app dependencies without importing the app package itself.
package appcontext

import (
	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync"
	"github.com/netfabric/fabsync/internal/config"
)

// Interface defines the application context that commands need. The App
// struct from cmd/fabsync/app implements it; commands accept the
// interface rather than the concrete type so tests can substitute a
// Mock.
type Interface interface {
	// Client returns the fabsync client, creating it lazily if needed.
	// This is thread-safe and ensures only one instance is created.
	Client() (fabsync.Client, error)

	// Config returns the loaded application configuration.
	Config() *config.Config

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the requested output format (table, json,
	// yaml, wide), empty for auto-detection.
	OutputFormat() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string
}
