// Package fabsync provides the main entry point for the fabsync
// GitOps reconciliation engine. It keeps network-fabric resource
// documents in a version-controlled repository, a live cluster and a
// local registry convergent, detecting and resolving conflicts when
// the stores diverge.
//
// Example usage:
//
//	// Create a client over an in-memory registry
//	fs, err := fabsync.New(
//	    fabsync.WithFabrics(&fabrics.Fabric{
//	        ID:         "dc-east",
//	        RepoURL:    "https://git.example.com/net/dc-east.git",
//	        ClusterURL: "https://east.example.com",
//	        WorkDir:    "/var/lib/fabsync/dc-east",
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fs.Close()
//
//	// Register event hooks
//	fs.OnConflictDetected(func(c *reconcile.Conflict) {
//	    log.Printf("conflict on %s: %s", c.Resource, c.Type)
//	})
//
//	// Trigger a reconciliation and wait for it
//	snap, err := fs.Sync(ctx, "dc-east", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, _ := fs.WaitForSync(ctx, snap.ID)
//	fmt.Println(result.Summary())
package fabsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/internal/cluster"
	"github.com/netfabric/fabsync/internal/gitrepo"
	"github.com/netfabric/fabsync/internal/ingest"
	"github.com/netfabric/fabsync/internal/layout"
	"github.com/netfabric/fabsync/internal/orchestrator"
	"github.com/netfabric/fabsync/internal/registry"
	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

// Compile-time interface check to ensure proper implementation.
var _ Client = (*client)(nil)

// Syncer drives and inspects reconciliation operations.
type Syncer interface {
	// Sync starts an asynchronous reconciliation for a fabric.
	Sync(ctx context.Context, fabricID string, opts *syncop.Options) (syncop.Snapshot, error)

	// WaitForSync blocks until the operation finishes and returns its result.
	WaitForSync(ctx context.Context, operationID string) (*syncop.Result, error)

	// Operation returns the current state of an operation.
	Operation(ctx context.Context, operationID string) (*syncop.Snapshot, error)

	// Operations lists a fabric's operation history.
	Operations(ctx context.Context, fabricID string) ([]syncop.Snapshot, error)

	// CancelSync requests cooperative cancellation of a running operation.
	CancelSync(ctx context.Context, operationID string) error
}

// Resolver inspects and settles conflicts.
type Resolver interface {
	// Conflicts lists a fabric's conflicts.
	Conflicts(ctx context.Context, fabricID string, unresolvedOnly bool) ([]*reconcile.Conflict, error)

	// Resolve applies a strategy to a conflict and writes the outcome back.
	Resolve(ctx context.Context, conflictID string, strategy reconcile.Strategy, decisions reconcile.Decisions, manualDoc *resources.Document, actor string) (*reconcile.Conflict, error)
}

// Directories manages a fabric's working-tree topology and ingestion.
type Directories interface {
	// InitializeDirectories creates the canonical directory topology.
	InitializeDirectories(ctx context.Context, fabricID string, opts layout.InitOptions) (*layout.InitResult, error)

	// ValidateDirectories checks the topology without modifying anything.
	ValidateDirectories(ctx context.Context, fabricID string) (*layout.ValidationResult, error)

	// Ingest processes pending raw files into the managed tree.
	Ingest(ctx context.Context, fabricID string, opts ingest.Options) (*ingest.Result, error)
}

// Scheduler provides controls for periodic reconciliation.
type Scheduler interface {
	// ScheduledSyncOn begins periodic reconciliation of every fabric.
	ScheduledSyncOn() error

	// ScheduledSyncOff stops periodic reconciliation.
	ScheduledSyncOff() error
}

// Hooks provides access to event callback registration.
type Hooks interface {
	OnSyncStarted(SyncStartedHook)
	OnSyncCompleted(SyncCompletedHook)
	OnSyncFailed(SyncFailedHook)
	OnConflictDetected(ConflictDetectedHook)
	OnConflictResolved(ConflictResolvedHook)
}

// Client manages fabric reconciliation with scheduled syncs and event
// hooks.
type Client interface {
	Syncer
	Resolver
	Directories
	Scheduler
	Hooks

	// Orchestrator exposes the underlying orchestrator, mainly for
	// embedding the client in an HTTP server.
	Orchestrator() *orchestrator.Orchestrator

	// Registry exposes the underlying registry.
	Registry() registry.Registry

	// Close stops scheduled syncs and releases the registry.
	Close() error
}

// client is the internal implementation of the Client interface.
type client struct {
	options *options

	reg       registry.Registry
	fabricSrc orchestrator.FabricSource
	repoFor   orchestrator.RepoFactory
	orch      *orchestrator.Orchestrator
	hooks     *hooks
	logger    *zerolog.Logger

	// scheduled sync state
	syncTicker *time.Ticker
	stopCh     chan struct{}
	syncCancel context.CancelFunc

	// operations started with DryRun, for result labelling
	dryMu   sync.Mutex
	dryRuns map[string]bool
}

// New creates a new Client instance with the given options.
func New(opts ...Option) (Client, error) {
	o, err := defaults().apply(opts...)
	if err != nil {
		return nil, err
	}

	c := &client{
		options: o,
		reg:     o.registry,
		hooks:   newHooks(),
		logger:  o.logger,
		stopCh:  make(chan struct{}),
	}

	// Seed declared fabrics into the registry.
	for _, f := range o.fabrics {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		if err := c.reg.SaveFabric(context.Background(), f); err != nil {
			return nil, err
		}
	}

	c.fabricSrc = o.fabricSource
	if c.fabricSrc == nil {
		c.fabricSrc = registrySource{reg: c.reg}
	}

	c.repoFor = o.repoFactory
	if c.repoFor == nil {
		c.repoFor = func(f *fabrics.Fabric) gitrepo.Client {
			return gitrepo.NewExecClient(f, c.logger)
		}
	}
	clusterFor := o.clusterFactory
	if clusterFor == nil {
		clusterFor = func(f *fabrics.Fabric) cluster.Adapter {
			return cluster.NewHTTP(f, c.logger)
		}
	}

	orchOpts := []orchestrator.Option{orchestrator.WithEvents(c.hooks)}
	if len(o.mergeKeys) > 0 {
		orchOpts = append(orchOpts, orchestrator.WithDetector(
			reconcile.NewDetector(reconcile.WithMergeKeys(o.mergeKeys...))))
	}
	c.orch = orchestrator.New(c.reg, c.fabricSrc, c.repoFor, clusterFor, c.logger, orchOpts...)

	if o.scheduledSyncEnabled {
		if err := c.ScheduledSyncOn(); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// registrySource resolves fabrics straight from the registry, with no
// credential overlay. Callers needing tokens supply their own source.
type registrySource struct {
	reg registry.Registry
}

func (s registrySource) Fabric(ctx context.Context, id string) (*fabrics.Fabric, error) {
	return s.reg.GetFabric(ctx, id)
}

// Orchestrator exposes the underlying orchestrator.
func (c *client) Orchestrator() *orchestrator.Orchestrator {
	return c.orch
}

// Registry exposes the underlying registry.
func (c *client) Registry() registry.Registry {
	return c.reg
}

// Close stops scheduled syncs and releases the registry.
func (c *client) Close() error {
	_ = c.ScheduledSyncOff()
	return c.reg.Close()
}
