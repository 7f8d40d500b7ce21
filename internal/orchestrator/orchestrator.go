// Package orchestrator drives sync operations end to end: fetch both
// live stores, diff against the registry, resolve or escalate
// conflicts, write back, commit. At most one operation runs per fabric
// at a time; cancellation is cooperative between stages.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/internal/cluster"
	"github.com/netfabric/fabsync/internal/gitrepo"
	"github.com/netfabric/fabsync/internal/registry"
	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/reconcile"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

// FabricSource resolves a fabric ID to a fully configured fabric,
// credentials included. The registry never stores credentials, so the
// configuration layer implements this by overlaying them.
type FabricSource interface {
	Fabric(ctx context.Context, id string) (*fabrics.Fabric, error)
}

// RepoFactory builds the repository client for a fabric.
type RepoFactory func(*fabrics.Fabric) gitrepo.Client

// ClusterFactory builds the cluster adapter for a fabric.
type ClusterFactory func(*fabrics.Fabric) cluster.Adapter

// Orchestrator coordinates sync operations across fabrics.
type Orchestrator struct {
	reg        registry.Registry
	fabricSrc  FabricSource
	repoFor    RepoFactory
	clusterFor ClusterFactory
	detector   *reconcile.Detector
	resolver   *reconcile.Resolver
	events     EventSink
	logger     *zerolog.Logger

	// throttleWait is how long a rate-limited operation pauses before
	// resuming.
	throttleWait time.Duration

	mu     sync.Mutex
	active map[string]*run // fabric ID -> running operation
	runs   map[string]*run // operation ID -> running operation
}

// run is one in-flight operation.
type run struct {
	op     *syncop.Operation
	fabric *fabrics.Fabric
	opts   *syncop.Options

	mu        sync.Mutex
	cancelled bool
	// touched lists resources this run wrote, for Drifted re-marking
	// when the run is cancelled midway.
	touched []recordedWrite

	done chan struct{}
}

type recordedWrite struct {
	fabricID string
	ref      string
}

func (r *run) markCancelled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
}

func (r *run) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithEvents sets the event sink.
func WithEvents(sink EventSink) Option {
	return func(o *Orchestrator) { o.events = sink }
}

// WithDetector substitutes the conflict detector, e.g. with custom
// merge keys.
func WithDetector(d *reconcile.Detector) Option {
	return func(o *Orchestrator) { o.detector = d }
}

// WithThrottleWait sets the pause before resuming a throttled operation.
func WithThrottleWait(d time.Duration) Option {
	return func(o *Orchestrator) { o.throttleWait = d }
}

// New wires an Orchestrator.
func New(reg registry.Registry, fabricSrc FabricSource, repoFor RepoFactory, clusterFor ClusterFactory, logger *zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		reg:          reg,
		fabricSrc:    fabricSrc,
		repoFor:      repoFor,
		clusterFor:   clusterFor,
		detector:     reconcile.NewDetector(),
		resolver:     reconcile.NewResolver(),
		events:       NopEvents{},
		logger:       logger,
		throttleWait: 30 * time.Second,
		active:       make(map[string]*run),
		runs:         make(map[string]*run),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches a sync operation for the fabric. A second trigger
// while one is running is rejected, never queued.
func (o *Orchestrator) Start(ctx context.Context, fabricID string, opts *syncop.Options) (syncop.Snapshot, error) {
	if opts == nil {
		opts = syncop.NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return syncop.Snapshot{}, err
	}

	fabric, err := o.fabricSrc.Fabric(ctx, fabricID)
	if err != nil {
		return syncop.Snapshot{}, err
	}

	o.mu.Lock()
	if _, busy := o.active[fabricID]; busy {
		o.mu.Unlock()
		return syncop.Snapshot{}, errors.ErrSyncInProgress
	}
	op := syncop.NewOperation(fabricID, opts.Direction)
	r := &run{op: op, fabric: fabric, opts: opts, done: make(chan struct{})}
	o.active[fabricID] = r
	o.runs[op.ID] = r
	o.mu.Unlock()

	snap := op.Snapshot()
	if err := o.reg.SaveOperation(ctx, snap); err != nil {
		o.finish(r)
		return syncop.Snapshot{}, err
	}
	o.events.SyncStarted(snap)

	go o.execute(r)
	return snap, nil
}

// Get returns the current state of an operation, live or historical.
func (o *Orchestrator) Get(ctx context.Context, id string) (*syncop.Snapshot, error) {
	o.mu.Lock()
	r, live := o.runs[id]
	o.mu.Unlock()
	if live {
		snap := r.op.Snapshot()
		return &snap, nil
	}
	return o.reg.GetOperation(ctx, id)
}

// List returns the fabric's operations, oldest first.
func (o *Orchestrator) List(ctx context.Context, fabricID string) ([]syncop.Snapshot, error) {
	return o.reg.ListOperations(ctx, fabricID)
}

// Cancel requests cooperative cancellation. In-flight I/O runs to
// completion; the flag is honored between stages. Terminal operations
// return an error.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	o.mu.Lock()
	r, live := o.runs[id]
	o.mu.Unlock()
	if live {
		r.markCancelled()
		return nil
	}

	snap, err := o.reg.GetOperation(ctx, id)
	if err != nil {
		return err
	}
	if snap.Phase.Terminal() {
		return errors.NewValidationError("operation", id, "already terminal")
	}
	return errors.NewValidationError("operation", id, "not running")
}

// Wait blocks until the operation finishes. Test helper and shutdown
// aid; returns immediately for unknown or historical operations.
func (o *Orchestrator) Wait(id string) {
	o.mu.Lock()
	r, live := o.runs[id]
	o.mu.Unlock()
	if live {
		<-r.done
	}
}

// Active reports whether the fabric has a running operation.
func (o *Orchestrator) Active(fabricID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.active[fabricID]
	return busy
}

func (o *Orchestrator) finish(r *run) {
	o.mu.Lock()
	delete(o.active, r.fabric.ID)
	delete(o.runs, r.op.ID)
	o.mu.Unlock()
	close(r.done)
}
