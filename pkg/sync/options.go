package sync

import (
	"time"

	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
)

// Options configures one sync operation.
type Options struct {
	// Direction of the run. Defaults to bidirectional.
	Direction Direction

	// Filters restricts the run to specific resources; empty means all.
	Filters []resources.Ref

	// Strategy applied automatically to detected conflicts. Empty means
	// no automatic resolution: conflicts park their resources in Pending.
	Strategy reconcile.Strategy

	// Timeout bounds the whole run; zero means no timeout.
	Timeout time.Duration

	// Concurrency bounds parallel per-resource work. Defaults to 4.
	Concurrency int

	// DryRun detects and reports without writing to any store.
	DryRun bool
}

// Option configures Options.
type Option func(*Options)

// NewOptions applies defaults then options.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		Direction:   DirectionBidirectional,
		Concurrency: 4,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate rejects inconsistent option combinations upfront.
func (o *Options) Validate() error {
	if !o.Direction.Valid() {
		return errors.NewValidationError("direction", string(o.Direction), "unknown sync direction")
	}
	if o.Strategy != "" && !o.Strategy.Valid() {
		return errors.NewValidationError("strategy", string(o.Strategy), "unknown resolution strategy")
	}
	if o.Strategy == reconcile.StrategyManual {
		return errors.NewValidationError("strategy", string(o.Strategy), "manual resolution cannot run automatically")
	}
	if o.Concurrency < 1 {
		return errors.NewValidationError("concurrency", o.Concurrency, "must be at least 1")
	}
	return nil
}

// Matches reports whether a resource passes the filter set.
func (o *Options) Matches(ref resources.Ref) bool {
	if len(o.Filters) == 0 {
		return true
	}
	for _, f := range o.Filters {
		if f.Kind == ref.Kind && (f.Name == "" || f.Name == ref.Name) {
			return true
		}
	}
	return false
}

// WithDirection sets the sync direction.
func WithDirection(d Direction) Option {
	return func(o *Options) { o.Direction = d }
}

// WithFilters restricts the run to the given resources. A filter with
// an empty name matches every resource of its kind.
func WithFilters(refs ...resources.Ref) Option {
	return func(o *Options) { o.Filters = refs }
}

// WithStrategy sets the automatic conflict resolution strategy.
func WithStrategy(s reconcile.Strategy) Option {
	return func(o *Options) { o.Strategy = s }
}

// WithTimeout bounds the whole operation.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithConcurrency bounds parallel per-resource work.
func WithConcurrency(n int) Option {
	return func(o *Options) { o.Concurrency = n }
}

// WithDryRun detects and reports without writing.
func WithDryRun(enabled bool) Option {
	return func(o *Options) { o.DryRun = enabled }
}
