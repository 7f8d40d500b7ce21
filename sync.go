package fabsync

import (
	"context"

	"github.com/netfabric/fabsync/internal/ingest"
	"github.com/netfabric/fabsync/internal/layout"
	"github.com/netfabric/fabsync/internal/registry"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

// Sync starts an asynchronous reconciliation for a fabric. Passing nil
// options runs a bidirectional sync with defaults. The returned
// snapshot carries the operation ID for WaitForSync and Operation.
func (c *client) Sync(ctx context.Context, fabricID string, opts *syncop.Options) (syncop.Snapshot, error) {
	snap, err := c.orch.Start(ctx, fabricID, opts)
	if err != nil {
		return syncop.Snapshot{}, err
	}
	if opts != nil && opts.DryRun {
		c.markDryRun(snap.ID)
	}
	return snap, nil
}

// WaitForSync blocks until the operation finishes (or ctx expires) and
// returns its result.
func (c *client) WaitForSync(ctx context.Context, operationID string) (*syncop.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		c.orch.Wait(operationID)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	snap, err := c.orch.Get(ctx, operationID)
	if err != nil {
		return nil, err
	}
	return syncop.ResultFromSnapshot(*snap, c.wasDryRun(operationID)), nil
}

// Operation returns the current state of an operation.
func (c *client) Operation(ctx context.Context, operationID string) (*syncop.Snapshot, error) {
	return c.orch.Get(ctx, operationID)
}

// Operations lists a fabric's operation history, most recent first.
func (c *client) Operations(ctx context.Context, fabricID string) ([]syncop.Snapshot, error) {
	return c.orch.List(ctx, fabricID)
}

// CancelSync requests cooperative cancellation of a running operation.
func (c *client) CancelSync(ctx context.Context, operationID string) error {
	return c.orch.Cancel(ctx, operationID)
}

// Conflicts lists a fabric's conflicts.
func (c *client) Conflicts(ctx context.Context, fabricID string, unresolvedOnly bool) ([]*reconcile.Conflict, error) {
	return c.orch.Conflicts(ctx, fabricID, unresolvedOnly)
}

// Resolve applies a strategy to a conflict and writes the outcome back
// to both stores.
func (c *client) Resolve(ctx context.Context, conflictID string, strategy reconcile.Strategy, decisions reconcile.Decisions, manualDoc *resources.Document, actor string) (*reconcile.Conflict, error) {
	if actor == "" {
		actor = "client"
	}
	return c.orch.ResolveConflict(ctx, conflictID, strategy, decisions, manualDoc, actor)
}

// InitializeDirectories creates the canonical directory topology under
// the fabric's working directory.
func (c *client) InitializeDirectories(ctx context.Context, fabricID string, opts layout.InitOptions) (*layout.InitResult, error) {
	fabric, err := c.fabricSrc.Fabric(ctx, fabricID)
	if err != nil {
		return nil, err
	}
	return layout.NewManager(fabric, c.logger).Initialize(opts)
}

// ValidateDirectories checks the topology without modifying anything.
func (c *client) ValidateDirectories(ctx context.Context, fabricID string) (*layout.ValidationResult, error) {
	fabric, err := c.fabricSrc.Fabric(ctx, fabricID)
	if err != nil {
		return nil, err
	}
	return layout.NewManager(fabric, c.logger).Validate()
}

// Ingest processes pending raw files into the fabric's managed tree.
func (c *client) Ingest(ctx context.Context, fabricID string, opts ingest.Options) (*ingest.Result, error) {
	fabric, err := c.fabricSrc.Fabric(ctx, fabricID)
	if err != nil {
		return nil, err
	}
	pipeline := ingest.NewPipeline(fabric, c.repoFor(fabric), registry.NewIngestRecorder(c.reg), c.logger)
	return pipeline.Ingest(ctx, opts)
}

func (c *client) markDryRun(operationID string) {
	c.dryMu.Lock()
	defer c.dryMu.Unlock()
	if c.dryRuns == nil {
		c.dryRuns = make(map[string]bool)
	}
	c.dryRuns[operationID] = true
}

func (c *client) wasDryRun(operationID string) bool {
	c.dryMu.Lock()
	defer c.dryMu.Unlock()
	return c.dryRuns[operationID]
}
