package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/netfabric/fabsync/internal/cluster"
	"github.com/netfabric/fabsync/internal/gitrepo"
	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

// candidate is one resource's view across the three stores.
type candidate struct {
	ref      resources.Ref
	repo     *resources.Document
	tracked  *resources.Tracked
	clusterD *resources.Document
}

// stagedWrites collects repository paths touched during write-back so
// the commit stage can stage them as one batch.
type stagedWrites struct {
	mu    sync.Mutex
	paths []string
}

func (s *stagedWrites) add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
}

func (s *stagedWrites) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	sort.Strings(out)
	return out
}

// execute runs the whole pipeline for one operation. Per-resource
// errors are recorded and never abort the run; repository-level
// failures fail the operation fast.
func (o *Orchestrator) execute(r *run) {
	defer o.finish(r)

	ctx := context.Background()
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	logger := o.logger.With().
		Str("operation", r.op.ID).
		Str("fabric", r.fabric.ID).
		Logger()

	repo := o.repoFor(r.fabric)
	adapter := o.clusterFor(r.fabric)

	fail := func(err error) {
		r.op.Fail(err)
		snap := r.op.Snapshot()
		o.persist(ctx, snap)
		o.events.SyncFailed(snap)
		logger.Error().Err(err).Msg("sync operation failed")
	}

	// Fetch both live stores. Either one unreachable is fatal.
	if !o.advance(ctx, r, syncop.PhaseFetching) {
		return
	}
	if err := repo.Ensure(ctx); err != nil {
		fail(err)
		return
	}
	repoDocs, err := o.loadManagedTree(repo.Root())
	if err != nil {
		fail(err)
		return
	}
	clusterDocs, err := o.fetchThrottled(ctx, r, adapter)
	if err != nil {
		fail(err)
		return
	}

	// Diff: build the resource universe from all three stores.
	if !o.advance(ctx, r, syncop.PhaseDiffing) {
		return
	}
	trackedRows, err := o.reg.ListResources(ctx, r.fabric.ID)
	if err != nil {
		fail(err)
		return
	}
	candidates := buildCandidates(repoDocs, trackedRows, clusterDocs, r.opts)

	// Resolve and write back, per resource, in parallel.
	if !o.advance(ctx, r, syncop.PhaseResolving) {
		return
	}
	if !o.advance(ctx, r, syncop.PhaseWritingBack) {
		return
	}
	writes := &stagedWrites{}
	g := &errgroup.Group{}
	g.SetLimit(r.opts.Concurrency)
	for _, c := range candidates {
		c := c
		g.Go(func() error {
			o.reconcileOne(ctx, r, repo, adapter, c, writes)
			return nil
		})
	}
	_ = g.Wait()

	if r.isCancelled() {
		o.cancelRun(ctx, r)
		return
	}

	// One serialized commit per operation.
	if !o.advance(ctx, r, syncop.PhaseCommitting) {
		return
	}
	if !r.opts.DryRun {
		if paths := writes.all(); len(paths) > 0 {
			if err := repo.Stage(ctx, paths...); err != nil {
				fail(err)
				return
			}
			counts := r.op.Counts()
			msg := fmt.Sprintf("sync %s: %d created, %d updated, %d deleted",
				r.op.ID, counts.Created, counts.Updated, counts.Deleted)
			if _, err := repo.Commit(ctx, msg); err != nil {
				fail(err)
				return
			}
			if err := repo.Push(ctx); err != nil {
				fail(err)
				return
			}
		}
	}

	if err := r.op.Advance(syncop.PhaseCompleted); err != nil {
		fail(err)
		return
	}
	snap := r.op.Snapshot()
	o.persist(ctx, snap)
	o.events.SyncCompleted(snap)
	logger.Info().
		Int("resources", snap.Counts.Total()).
		Int("conflicted", snap.Counts.Conflicted).
		Int("errored", snap.Counts.Errored).
		Msg("sync operation completed")
}

// advance moves the operation forward, honoring the cancellation flag
// between stages.
func (o *Orchestrator) advance(ctx context.Context, r *run, to syncop.Phase) bool {
	if r.isCancelled() {
		o.cancelRun(ctx, r)
		return false
	}
	if err := ctx.Err(); err != nil {
		r.op.Fail(errors.WrapTimeout("sync operation", err))
		snap := r.op.Snapshot()
		o.persist(context.Background(), snap)
		o.events.SyncFailed(snap)
		return false
	}
	if err := r.op.Advance(to); err != nil {
		r.op.Fail(err)
		snap := r.op.Snapshot()
		o.persist(ctx, snap)
		o.events.SyncFailed(snap)
		return false
	}
	o.persist(ctx, r.op.Snapshot())
	return true
}

// cancelRun finalizes a cancelled operation: applied writes stay, but
// touched resources are re-marked Drifted so the next run re-evaluates
// them.
func (o *Orchestrator) cancelRun(ctx context.Context, r *run) {
	if err := r.op.Advance(syncop.PhaseCancelled); err != nil {
		r.op.Fail(err)
	}

	r.mu.Lock()
	touched := make([]recordedWrite, len(r.touched))
	copy(touched, r.touched)
	r.mu.Unlock()

	for _, w := range touched {
		ref, err := resources.ParseRef(w.ref)
		if err != nil {
			continue
		}
		tracked, err := o.reg.GetResource(ctx, w.fabricID, ref)
		if err != nil {
			continue
		}
		if tracked.State == resources.StateSynced {
			if err := tracked.Transition(resources.StateDrifted); err == nil {
				_ = o.reg.UpsertResource(ctx, tracked)
			}
		}
	}

	o.persist(ctx, r.op.Snapshot())
	o.logger.Info().Str("operation", r.op.ID).Msg("sync operation cancelled")
}

// fetchThrottled fetches cluster state, pausing in the throttled phase
// and retrying once when the cluster rate-limits us.
func (o *Orchestrator) fetchThrottled(ctx context.Context, r *run, adapter cluster.Adapter) (map[resources.Ref]*resources.Document, error) {
	docs, err := adapter.Fetch(ctx)
	if err == nil || !errors.IsRateLimited(err) {
		return docs, err
	}

	if err := r.op.Advance(syncop.PhaseThrottled); err != nil {
		return nil, err
	}
	o.persist(ctx, r.op.Snapshot())
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(o.throttleWait):
	}
	if err := r.op.Advance(syncop.PhaseFetching); err != nil {
		return nil, err
	}
	o.persist(ctx, r.op.Snapshot())
	return adapter.Fetch(ctx)
}

// reconcileOne detects and settles divergence for a single resource.
func (o *Orchestrator) reconcileOne(ctx context.Context, r *run, repo gitrepo.Client, adapter cluster.Adapter, c candidate, writes *stagedWrites) {
	var registryDoc *resources.Document
	if c.tracked != nil {
		registryDoc = c.tracked.Document
	}

	det := o.detector.Detect(r.fabric.ID, r.op.ID, c.ref, c.repo, registryDoc, c.clusterD)

	switch {
	case det.InSync:
		r.op.Record(syncop.ResourceOutcome{Resource: c.ref, Kind: syncop.OutcomeSkipped})
		o.confirmSynced(ctx, r, c)

	case det.Conflict != nil:
		o.handleConflict(ctx, r, repo, adapter, c, det.Conflict, writes)

	case det.Orphaned:
		o.markOrphaned(ctx, r, c)

	default:
		o.applyResolution(ctx, r, repo, adapter, c, det.Resolved, det.Deleted, syncop.OutcomeAutoReconciled, writes)
	}
}

// markOrphaned parks a row whose resource vanished from both live
// stores. The registry copy is the only surviving record, so it is
// never deleted here: the row moves to Orphaned and waits for a
// recovery decision (restore through Pending, or recreate as Draft).
func (o *Orchestrator) markOrphaned(ctx context.Context, r *run, c candidate) {
	if c.tracked == nil {
		return
	}
	if r.opts.DryRun {
		r.op.Record(syncop.ResourceOutcome{Resource: c.ref, Kind: syncop.OutcomeSkipped})
		return
	}

	t := c.tracked
	for t.State != resources.StateOrphaned {
		var next resources.State
		switch t.State {
		case resources.StateDraft:
			next = resources.StateCommitted
		case resources.StateSynced:
			next = resources.StateDrifted
		case resources.StateCommitted, resources.StateDrifted:
			next = resources.StatePending
		case resources.StatePending:
			next = resources.StateOrphaned
		default:
			return
		}
		if err := t.Transition(next); err != nil {
			o.recordError(r, c.ref, err)
			return
		}
	}
	if err := o.reg.UpsertResource(ctx, t); err != nil {
		o.recordError(r, c.ref, err)
		return
	}
	r.op.Record(syncop.ResourceOutcome{
		Resource: c.ref,
		Kind:     syncop.OutcomeOrphaned,
		State:    resources.StateOrphaned,
	})
}

// handleConflict either resolves automatically per the operation's
// strategy, or parks the resource in Pending for a manual decision.
func (o *Orchestrator) handleConflict(ctx context.Context, r *run, repo gitrepo.Client, adapter cluster.Adapter, c candidate, conflict *reconcile.Conflict, writes *stagedWrites) {
	if r.opts.Strategy == "" {
		if err := o.reg.SaveConflict(ctx, conflict); err != nil {
			o.recordError(r, c.ref, err)
			return
		}
		o.parkPending(ctx, r, c, conflict.ID)
		r.op.Record(syncop.ResourceOutcome{
			Resource:   c.ref,
			Kind:       syncop.OutcomeConflicted,
			State:      resources.StatePending,
			ConflictID: conflict.ID,
		})
		o.events.ConflictDetected(conflict)
		return
	}

	resolution, audit, err := o.resolver.Resolve(conflict, r.opts.Strategy, nil, nil, "auto:"+string(r.opts.Strategy))
	if err != nil {
		o.recordError(r, c.ref, err)
		return
	}
	if err := o.reg.SaveConflict(ctx, conflict); err != nil {
		o.recordError(r, c.ref, err)
		return
	}
	if err := o.reg.SaveAudit(ctx, audit); err != nil {
		o.recordError(r, c.ref, err)
		return
	}
	o.events.ConflictResolved(conflict)
	o.applyResolution(ctx, r, repo, adapter, c, resolution.Document, resolution.Deleted, syncop.OutcomeUpdated, writes)
}

// applyResolution writes the winning document (or deletion) to both
// stores per the operation's direction. The registry row is updated
// only after both writes land.
func (o *Orchestrator) applyResolution(ctx context.Context, r *run, repo gitrepo.Client, adapter cluster.Adapter, c candidate, doc *resources.Document, deleted bool, kind syncop.OutcomeKind, writes *stagedWrites) {
	if r.opts.DryRun {
		r.op.Record(syncop.ResourceOutcome{Resource: c.ref, Kind: syncop.OutcomeSkipped})
		return
	}

	toRepo := r.opts.Direction != syncop.DirectionRepoToCluster
	toCluster := r.opts.Direction != syncop.DirectionClusterToRepo

	if deleted || doc == nil {
		o.applyDeletion(ctx, r, repo, adapter, c, toRepo, toCluster, writes)
		return
	}

	path := doc.Path()
	if toRepo {
		data, err := doc.Marshal()
		if err != nil {
			o.recordError(r, c.ref, err)
			return
		}
		target := filepath.Join(repo.Root(), filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			o.recordError(r, c.ref, errors.WrapIO("create", filepath.Dir(path), err))
			return
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			o.recordError(r, c.ref, errors.WrapIO("write", path, err))
			return
		}
		writes.add(path)
	}
	if toCluster {
		if err := o.applyClusterThrottled(ctx, r, adapter, doc); err != nil {
			if errors.IsClusterRejection(err) {
				o.parkSchemaViolation(ctx, r, c, doc, err)
				return
			}
			o.recordError(r, c.ref, err)
			return
		}
	}

	// Both writes landed: the registry row may now say Synced.
	hash := resources.Hash(doc)
	tracked := c.tracked
	if tracked == nil {
		tracked = &resources.Tracked{
			FabricID: r.fabric.ID,
			Ref:      c.ref,
			State:    resources.StateCommitted,
		}
	}
	tracked.FilePath = path
	tracked.Document = doc.Copy()
	tracked.RepoHash = hash
	tracked.RegistryHash = hash
	tracked.ClusterHash = hash
	tracked.LastSyncedAt = time.Now().UTC()
	tracked.PendingConflictID = ""
	o.markSynced(tracked)
	if err := o.reg.UpsertResource(ctx, tracked); err != nil {
		o.recordError(r, c.ref, err)
		return
	}

	outcome := kind
	if c.tracked == nil && kind == syncop.OutcomeAutoReconciled {
		outcome = syncop.OutcomeCreated
	}
	r.op.Record(syncop.ResourceOutcome{Resource: c.ref, Kind: outcome, State: tracked.State})
	o.touch(r, c.ref)
}

func (o *Orchestrator) applyDeletion(ctx context.Context, r *run, repo gitrepo.Client, adapter cluster.Adapter, c candidate, toRepo, toCluster bool, writes *stagedWrites) {
	if toRepo && c.repo != nil {
		path := c.repo.Path()
		target := filepath.Join(repo.Root(), filepath.FromSlash(path))
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			o.recordError(r, c.ref, errors.WrapIO("remove", path, err))
			return
		}
		writes.add(path)
	}
	if toCluster && c.clusterD != nil {
		if err := adapter.Delete(ctx, c.ref); err != nil {
			o.recordError(r, c.ref, err)
			return
		}
	}

	if c.tracked != nil {
		if err := o.reg.DeleteResource(ctx, r.fabric.ID, c.ref); err != nil && !errors.IsNotFound(err) {
			o.recordError(r, c.ref, err)
			return
		}
	}
	r.op.Record(syncop.ResourceOutcome{Resource: c.ref, Kind: syncop.OutcomeDeleted})
	o.touch(r, c.ref)
}

// parkSchemaViolation handles a permanent cluster rejection during
// write-back: the operation loops back through the resolving phase and
// the resource parks Pending behind a schema_violation conflict, so the
// rejection surfaces as a resolvable conflict instead of a bare error.
func (o *Orchestrator) parkSchemaViolation(ctx context.Context, r *run, c candidate, doc *resources.Document, cause error) {
	// Parallel writers may race on the loop-back; only the first
	// transition wins and the rest just record their conflict.
	_ = r.op.Advance(syncop.PhaseResolving)
	o.persist(ctx, r.op.Snapshot())

	conflict := reconcile.NewSchemaViolation(r.fabric.ID, r.op.ID, c.ref, doc, c.clusterD, cause)
	if err := o.reg.SaveConflict(ctx, conflict); err != nil {
		o.recordError(r, c.ref, err)
	} else {
		o.parkPending(ctx, r, c, conflict.ID)
		r.op.Record(syncop.ResourceOutcome{
			Resource:   c.ref,
			Kind:       syncop.OutcomeConflicted,
			State:      resources.StatePending,
			ConflictID: conflict.ID,
		})
		o.events.ConflictDetected(conflict)
	}

	_ = r.op.Advance(syncop.PhaseWritingBack)
	o.persist(ctx, r.op.Snapshot())
}

// applyClusterThrottled applies to the cluster, pausing once in the
// throttled phase when rate-limited.
func (o *Orchestrator) applyClusterThrottled(ctx context.Context, r *run, adapter cluster.Adapter, doc *resources.Document) error {
	err := adapter.Apply(ctx, doc)
	if err == nil || !errors.IsRateLimited(err) {
		return err
	}

	// Parallel writers may race to throttle; only the first transition
	// wins and the rest just wait.
	_ = r.op.Advance(syncop.PhaseThrottled)
	o.persist(ctx, r.op.Snapshot())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.throttleWait):
	}
	_ = r.op.Advance(syncop.PhaseWritingBack)
	o.persist(ctx, r.op.Snapshot())
	return adapter.Apply(ctx, doc)
}

// confirmSynced settles the registry row for an in-sync resource.
func (o *Orchestrator) confirmSynced(ctx context.Context, r *run, c candidate) {
	if c.tracked == nil || c.repo == nil {
		return
	}
	hash := resources.Hash(c.repo)
	if c.tracked.State == resources.StateSynced && c.tracked.RepoHash == hash {
		return
	}
	c.tracked.RepoHash = hash
	c.tracked.RegistryHash = hash
	c.tracked.ClusterHash = hash
	c.tracked.LastSyncedAt = time.Now().UTC()
	o.markSynced(c.tracked)
	_ = o.reg.UpsertResource(ctx, c.tracked)
}

// markSynced walks the lifecycle to Synced through whatever legal
// intermediate the current state requires.
func (o *Orchestrator) markSynced(t *resources.Tracked) {
	for t.State != resources.StateSynced {
		var next resources.State
		switch t.State {
		case resources.StateDraft:
			next = resources.StateCommitted
		case resources.StateCommitted, resources.StateDrifted, resources.StatePending:
			next = resources.StateSynced
		case resources.StateOrphaned:
			next = resources.StatePending
		default:
			return
		}
		if err := t.Transition(next); err != nil {
			return
		}
	}
}

// parkPending moves the conflicted resource into Pending with a
// reference to its blocking conflict.
func (o *Orchestrator) parkPending(ctx context.Context, r *run, c candidate, conflictID string) {
	tracked := c.tracked
	if tracked == nil {
		tracked = &resources.Tracked{
			FabricID: r.fabric.ID,
			Ref:      c.ref,
			State:    resources.StatePending,
		}
		if c.repo != nil {
			tracked.FilePath = c.repo.Path()
			tracked.Document = c.repo.Copy()
		}
	} else if tracked.State != resources.StatePending {
		// Synced rows pass through Drifted on the way to Pending.
		if tracked.State == resources.StateSynced {
			_ = tracked.Transition(resources.StateDrifted)
		}
		if err := tracked.Transition(resources.StatePending); err != nil {
			o.logger.Warn().
				Str("resource", c.ref.String()).
				Err(err).
				Msg("could not park resource pending")
		}
	}
	tracked.PendingConflictID = conflictID
	if err := o.reg.UpsertResource(ctx, tracked); err != nil {
		o.recordError(r, c.ref, err)
	}
}

func (o *Orchestrator) recordError(r *run, ref resources.Ref, err error) {
	r.op.Record(syncop.ResourceOutcome{
		Resource: ref,
		Kind:     syncop.OutcomeErrored,
		Error:    err.Error(),
	})
}

func (o *Orchestrator) touch(r *run, ref resources.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched = append(r.touched, recordedWrite{fabricID: r.fabric.ID, ref: ref.String()})
}

func (o *Orchestrator) persist(ctx context.Context, snap syncop.Snapshot) {
	if err := o.reg.SaveOperation(ctx, snap); err != nil {
		o.logger.Warn().Str("operation", snap.ID).Err(err).Msg("could not persist operation snapshot")
	}
}

// loadManagedTree reads every document under managed/ in the working tree.
func (o *Orchestrator) loadManagedTree(root string) (map[resources.Ref]*resources.Document, error) {
	managed := filepath.Join(root, "managed")
	out := make(map[resources.Ref]*resources.Document)

	entries, err := os.ReadDir(managed)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, errors.WrapIO("read", "managed", err)
	}

	for _, kindDir := range entries {
		if !kindDir.IsDir() || kindDir.Name() == "metadata" {
			continue
		}
		files, err := os.ReadDir(filepath.Join(managed, kindDir.Name()))
		if err != nil {
			return nil, errors.WrapIO("read", "managed/"+kindDir.Name(), err)
		}
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(managed, kindDir.Name(), file.Name()))
			if err != nil {
				return nil, errors.WrapIO("read", file.Name(), err)
			}
			doc, err := resources.Unmarshal(data)
			if err != nil {
				return nil, errors.WrapParse("yaml", "managed/"+kindDir.Name()+"/"+file.Name(), err)
			}
			if err := doc.Validate(); err != nil {
				return nil, fmt.Errorf("managed/%s/%s: %w", kindDir.Name(), file.Name(), err)
			}
			out[doc.Ref()] = doc
		}
	}
	return out, nil
}

// buildCandidates unions the three stores into per-resource candidates,
// honoring the operation's resource filters.
func buildCandidates(repoDocs map[resources.Ref]*resources.Document, tracked []*resources.Tracked, clusterDocs map[resources.Ref]*resources.Document, opts *syncop.Options) []candidate {
	byRef := make(map[resources.Ref]*candidate)
	get := func(ref resources.Ref) *candidate {
		if c, ok := byRef[ref]; ok {
			return c
		}
		c := &candidate{ref: ref}
		byRef[ref] = c
		return c
	}

	for ref, doc := range repoDocs {
		get(ref).repo = doc
	}
	for _, t := range tracked {
		get(t.Ref).tracked = t
	}
	for ref, doc := range clusterDocs {
		get(ref).clusterD = doc
	}

	out := make([]candidate, 0, len(byRef))
	for ref, c := range byRef {
		if !opts.Matches(ref) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ref.String() < out[j].ref.String() })
	return out
}
