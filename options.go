package fabsync

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/internal/orchestrator"
	"github.com/netfabric/fabsync/internal/registry"
	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/logging"
)

// Option is a functional option for configuring a Client.
type Option func(*options) error

// options holds the assembled configuration for New.
type options struct {
	registry       registry.Registry
	registryPath   string
	fabricSource   orchestrator.FabricSource
	fabrics        []*fabrics.Fabric
	repoFactory    orchestrator.RepoFactory
	clusterFactory orchestrator.ClusterFactory
	logger         *zerolog.Logger
	mergeKeys      []string

	scheduledSyncEnabled bool
	syncInterval         time.Duration
}

func defaults() *options {
	return &options{
		logger:       logging.Default(),
		syncInterval: time.Hour,
	}
}

func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.registry == nil {
		if o.registryPath != "" {
			reg, err := registry.OpenSQLite(o.registryPath)
			if err != nil {
				return nil, err
			}
			o.registry = reg
		} else {
			o.registry = registry.NewMemory()
		}
	}
	return o, nil
}

// WithRegistry uses an already-open registry. The client takes
// ownership and closes it on Close.
func WithRegistry(reg registry.Registry) Option {
	return func(o *options) error {
		if reg == nil {
			return errors.NewValidationError("registry", nil, "cannot be nil")
		}
		o.registry = reg
		return nil
	}
}

// WithRegistryPath opens a SQLite registry at the given path. Without
// this or WithRegistry the client runs on an in-memory registry.
func WithRegistryPath(path string) Option {
	return func(o *options) error {
		if path == "" {
			return errors.NewValidationError("path", path, "cannot be empty")
		}
		o.registryPath = path
		return nil
	}
}

// WithFabricSource overrides how fabric definitions (and their
// credentials) are resolved at sync time.
func WithFabricSource(src orchestrator.FabricSource) Option {
	return func(o *options) error {
		if src == nil {
			return errors.NewValidationError("source", nil, "cannot be nil")
		}
		o.fabricSource = src
		return nil
	}
}

// WithFabrics seeds fabric definitions into the registry on startup.
func WithFabrics(fabs ...*fabrics.Fabric) Option {
	return func(o *options) error {
		for _, f := range fabs {
			if f == nil {
				return errors.NewValidationError("fabric", nil, "cannot be nil")
			}
		}
		o.fabrics = append(o.fabrics, fabs...)
		return nil
	}
}

// WithRepoFactory overrides how repository clients are constructed,
// mainly for tests.
func WithRepoFactory(f orchestrator.RepoFactory) Option {
	return func(o *options) error {
		o.repoFactory = f
		return nil
	}
}

// WithClusterFactory overrides how cluster adapters are constructed,
// mainly for tests.
func WithClusterFactory(f orchestrator.ClusterFactory) Option {
	return func(o *options) error {
		o.clusterFactory = f
		return nil
	}
}

// WithLogger sets the logger used by the client and everything under it.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.NewValidationError("logger", nil, "cannot be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithMergeKeys overrides the document spec fields treated as identity
// when comparing store projections.
func WithMergeKeys(keys ...string) Option {
	return func(o *options) error {
		if len(keys) == 0 {
			return errors.NewValidationError("keys", keys, "cannot be empty")
		}
		o.mergeKeys = keys
		return nil
	}
}

// WithScheduledSync enables periodic reconciliation of every fabric.
func WithScheduledSync(enabled bool) Option {
	return func(o *options) error {
		o.scheduledSyncEnabled = enabled
		return nil
	}
}

// WithSyncInterval sets the period between scheduled syncs.
func WithSyncInterval(interval time.Duration) Option {
	return func(o *options) error {
		if interval < time.Minute {
			return errors.NewValidationError("interval", interval, "must be at least one minute")
		}
		o.syncInterval = interval
		return nil
	}
}
