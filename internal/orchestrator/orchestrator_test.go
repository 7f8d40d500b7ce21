package orchestrator

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfabric/fabsync/internal/cluster"
	"github.com/netfabric/fabsync/internal/gitrepo"
	"github.com/netfabric/fabsync/internal/layout"
	"github.com/netfabric/fabsync/internal/registry"
	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/logging"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

type fabricSourceMap map[string]*fabrics.Fabric

func (m fabricSourceMap) Fabric(_ context.Context, id string) (*fabrics.Fabric, error) {
	f, ok := m[id]
	if !ok {
		return nil, errors.NewNotFoundError("fabric", id)
	}
	return f, nil
}

type capturedEvents struct {
	mu        sync.Mutex
	started   []string
	completed []string
	failed    []string
	detected  []string
	resolved  []string
}

func (e *capturedEvents) SyncStarted(s syncop.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, s.ID)
}

func (e *capturedEvents) SyncCompleted(s syncop.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, s.ID)
}

func (e *capturedEvents) SyncFailed(s syncop.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, s.ID)
}

func (e *capturedEvents) ConflictDetected(c *reconcile.Conflict) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detected = append(e.detected, c.ID)
}

func (e *capturedEvents) ConflictResolved(c *reconcile.Conflict) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolved = append(e.resolved, c.ID)
}

type harness struct {
	orch   *Orchestrator
	fabric *fabrics.Fabric
	reg    registry.Registry
	repo   *gitrepo.MemoryClient
	fake   *cluster.Fake
	events *capturedEvents
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	f := &fabrics.Fabric{
		ID:         "fab-1",
		RepoURL:    "https://git.example.com/net/fabric-config.git",
		ClusterURL: "https://cluster.example.com",
		WorkDir:    t.TempDir(),
	}
	_, err := layout.NewManager(f, &logging.Nop).Initialize(layout.InitOptions{})
	require.NoError(t, err)

	reg := registry.NewMemory()
	repo := gitrepo.NewMemoryClient(f.WorkDir)
	fake := cluster.NewFake()
	events := &capturedEvents{}

	all := append([]Option{
		WithEvents(events),
		WithThrottleWait(time.Millisecond),
	}, opts...)
	orch := New(reg, fabricSourceMap{"fab-1": f},
		func(*fabrics.Fabric) gitrepo.Client { return repo },
		func(*fabrics.Fabric) cluster.Adapter { return fake },
		&logging.Nop, all...)

	return &harness{orch: orch, fabric: f, reg: reg, repo: repo, fake: fake, events: events}
}

func (h *harness) writeRepoDoc(t *testing.T, doc *resources.Document) {
	t.Helper()
	data, err := doc.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(h.fabric.TreePath(doc.Path()), data, 0o644))
}

func (h *harness) runSync(t *testing.T, opts *syncop.Options) *syncop.Snapshot {
	t.Helper()
	snap, err := h.orch.Start(context.Background(), "fab-1", opts)
	require.NoError(t, err)
	h.orch.Wait(snap.ID)
	got, err := h.orch.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	return got
}

func vpcDoc(cidr string) *resources.Document {
	return &resources.Document{
		Kind: resources.KindVPC,
		Name: "prod",
		Metadata: resources.Metadata{
			Labels: map[string]string{"env": "prod"},
		},
		Spec: map[string]any{"cidr": cidr},
	}
}

func TestSyncAdoptsRepoOnlyResource(t *testing.T) {
	h := newHarness(t)
	h.writeRepoDoc(t, vpcDoc("10.0.0.0/16"))

	snap := h.runSync(t, nil)
	assert.Equal(t, syncop.PhaseCompleted, snap.Phase)
	assert.Equal(t, 1, snap.Counts.Created)
	assert.Zero(t, snap.Counts.Errored)

	// The cluster received the document and the registry row is Synced.
	require.NotNil(t, h.fake.Get(resources.Ref{Kind: resources.KindVPC, Name: "prod"}))
	tracked, err := h.reg.GetResource(context.Background(), "fab-1", resources.Ref{Kind: resources.KindVPC, Name: "prod"})
	require.NoError(t, err)
	assert.Equal(t, resources.StateSynced, tracked.State)
	assert.Equal(t, tracked.RepoHash, tracked.ClusterHash)

	assert.Equal(t, []string{snap.ID}, h.events.started)
	assert.Equal(t, []string{snap.ID}, h.events.completed)
}

func TestSyncInSyncResourcesSkip(t *testing.T) {
	h := newHarness(t)
	doc := vpcDoc("10.0.0.0/16")
	h.writeRepoDoc(t, doc)
	h.fake.Seed(doc)

	first := h.runSync(t, nil)
	require.Equal(t, syncop.PhaseCompleted, first.Phase)

	second := h.runSync(t, nil)
	assert.Equal(t, 1, second.Counts.Skipped)
	assert.Zero(t, second.Counts.Created)
	assert.Zero(t, second.Counts.Updated)
}

func TestSyncDetectsTrueConflict(t *testing.T) {
	h := newHarness(t)
	repoDoc := vpcDoc("10.0.0.0/16")
	h.writeRepoDoc(t, repoDoc)
	h.fake.Seed(vpcDoc("10.0.1.0/16"))

	// Registry baseline matches the repo side.
	hash := resources.Hash(repoDoc)
	require.NoError(t, h.reg.UpsertResource(context.Background(), &resources.Tracked{
		FabricID:     "fab-1",
		Ref:          repoDoc.Ref(),
		FilePath:     repoDoc.Path(),
		RepoHash:     hash,
		RegistryHash: hash,
		ClusterHash:  hash,
		State:        resources.StateSynced,
		Document:     repoDoc.Copy(),
	}))

	snap := h.runSync(t, nil)
	assert.Equal(t, syncop.PhaseCompleted, snap.Phase)
	assert.Equal(t, 1, snap.Counts.Conflicted)
	require.Len(t, snap.Blocking, 1)

	conflicts, err := h.orch.Conflicts(context.Background(), "fab-1", true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, reconcile.TypeConcurrentModification, conflicts[0].Type)
	assert.Equal(t, []string{conflicts[0].ID}, h.events.detected)

	// The resource is parked Pending with the conflict reference.
	tracked, err := h.reg.GetResource(context.Background(), "fab-1", repoDoc.Ref())
	require.NoError(t, err)
	assert.Equal(t, resources.StatePending, tracked.State)
	assert.Equal(t, conflicts[0].ID, tracked.PendingConflictID)
}

func TestSyncAutoStrategyResolvesConflict(t *testing.T) {
	h := newHarness(t)
	repoDoc := vpcDoc("10.0.0.0/16")
	h.writeRepoDoc(t, repoDoc)
	h.fake.Seed(vpcDoc("10.0.1.0/16"))

	hash := resources.Hash(repoDoc)
	require.NoError(t, h.reg.UpsertResource(context.Background(), &resources.Tracked{
		FabricID: "fab-1", Ref: repoDoc.Ref(), FilePath: repoDoc.Path(),
		RepoHash: hash, RegistryHash: hash, ClusterHash: hash,
		State: resources.StateSynced, Document: repoDoc.Copy(),
	}))

	snap := h.runSync(t, syncop.NewOptions(syncop.WithStrategy(reconcile.StrategyMerge)))
	assert.Equal(t, syncop.PhaseCompleted, snap.Phase)
	assert.Equal(t, 1, snap.Counts.Updated)
	assert.Empty(t, snap.Blocking)

	// Merge is last-writer per field: only the cluster changed, so the
	// cluster value wins everywhere.
	tracked, err := h.reg.GetResource(context.Background(), "fab-1", repoDoc.Ref())
	require.NoError(t, err)
	assert.Equal(t, "10.0.1.0/16", tracked.Document.Spec["cidr"])
	assert.Equal(t, resources.StateSynced, tracked.State)

	audits, err := h.reg.ListAudits(context.Background(), "fab-1")
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, resources.Hash(tracked.Document), audits[0].OutputHash)
}

func TestSyncPropagatesDeletion(t *testing.T) {
	h := newHarness(t)
	repoDoc := vpcDoc("10.0.0.0/16")
	h.writeRepoDoc(t, repoDoc)

	// Tracked and present in the repo, deleted from the cluster, with
	// no local modification since the last sync: deletion propagates.
	hash := resources.Hash(repoDoc)
	require.NoError(t, h.reg.UpsertResource(context.Background(), &resources.Tracked{
		FabricID: "fab-1", Ref: repoDoc.Ref(), FilePath: repoDoc.Path(),
		RepoHash: hash, RegistryHash: hash, ClusterHash: hash,
		State: resources.StateSynced, Document: repoDoc.Copy(),
	}))

	snap := h.runSync(t, nil)
	assert.Equal(t, syncop.PhaseCompleted, snap.Phase)
	assert.Equal(t, 1, snap.Counts.Deleted)

	_, err := os.Stat(h.fabric.TreePath(repoDoc.Path()))
	assert.True(t, os.IsNotExist(err))
	_, err = h.reg.GetResource(context.Background(), "fab-1", repoDoc.Ref())
	assert.True(t, errors.IsNotFound(err))
}

func TestSyncOrphansVanishedResource(t *testing.T) {
	h := newHarness(t)
	doc := vpcDoc("10.0.0.0/16")

	// Tracked as Synced but gone from both the repository and the
	// cluster: the registry row is the only surviving record and must
	// park as Orphaned, never be deleted.
	hash := resources.Hash(doc)
	require.NoError(t, h.reg.UpsertResource(context.Background(), &resources.Tracked{
		FabricID: "fab-1", Ref: doc.Ref(), FilePath: doc.Path(),
		RepoHash: hash, RegistryHash: hash, ClusterHash: hash,
		State: resources.StateSynced, Document: doc.Copy(),
	}))

	snap := h.runSync(t, nil)
	assert.Equal(t, syncop.PhaseCompleted, snap.Phase)
	assert.Equal(t, 1, snap.Counts.Orphaned)
	assert.Zero(t, snap.Counts.Deleted)

	tracked, err := h.reg.GetResource(context.Background(), "fab-1", doc.Ref())
	require.NoError(t, err)
	assert.Equal(t, resources.StateOrphaned, tracked.State)
	assert.Equal(t, "10.0.0.0/16", tracked.Document.Spec["cidr"])
}

func TestSyncOrphanDryRunLeavesRowUntouched(t *testing.T) {
	h := newHarness(t)
	doc := vpcDoc("10.0.0.0/16")
	hash := resources.Hash(doc)
	require.NoError(t, h.reg.UpsertResource(context.Background(), &resources.Tracked{
		FabricID: "fab-1", Ref: doc.Ref(), FilePath: doc.Path(),
		RepoHash: hash, RegistryHash: hash, ClusterHash: hash,
		State: resources.StateSynced, Document: doc.Copy(),
	}))

	snap := h.runSync(t, syncop.NewOptions(syncop.WithDryRun(true)))
	assert.Equal(t, 1, snap.Counts.Skipped)

	tracked, err := h.reg.GetResource(context.Background(), "fab-1", doc.Ref())
	require.NoError(t, err)
	assert.Equal(t, resources.StateSynced, tracked.State)
}

func TestSyncClusterRejectionParksSchemaViolation(t *testing.T) {
	h := newHarness(t)
	doc := vpcDoc("10.0.0.0/16")
	h.writeRepoDoc(t, doc)
	h.fake.ApplyErr[doc.Ref()] = errors.NewClusterError(
		"apply", doc.Ref().String(), 422, "cidr out of range", false)

	snap := h.runSync(t, nil)
	assert.Equal(t, syncop.PhaseCompleted, snap.Phase)
	assert.Equal(t, 1, snap.Counts.Conflicted)
	assert.Zero(t, snap.Counts.Errored)
	require.Len(t, snap.Blocking, 1)

	conflicts, err := h.orch.Conflicts(context.Background(), "fab-1", true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, reconcile.TypeSchemaViolation, conflicts[0].Type)
	assert.Equal(t, reconcile.SeverityCritical, conflicts[0].Severity)
	assert.Contains(t, conflicts[0].Detail, "cidr out of range")
	require.NotNil(t, conflicts[0].RepoDoc)
	assert.Equal(t, "10.0.0.0/16", conflicts[0].RepoDoc.Spec["cidr"])

	// The rejected resource parks Pending behind the conflict.
	tracked, err := h.reg.GetResource(context.Background(), "fab-1", doc.Ref())
	require.NoError(t, err)
	assert.Equal(t, resources.StatePending, tracked.State)
	assert.Equal(t, conflicts[0].ID, tracked.PendingConflictID)
	assert.Equal(t, []string{conflicts[0].ID}, h.events.detected)
}

func TestSyncTransientClusterErrorStaysErrored(t *testing.T) {
	h := newHarness(t)
	doc := vpcDoc("10.0.0.0/16")
	h.writeRepoDoc(t, doc)
	h.fake.ApplyErr[doc.Ref()] = errors.NewClusterError(
		"apply", doc.Ref().String(), 503, "cluster unavailable", true)

	snap := h.runSync(t, nil)
	assert.Equal(t, 1, snap.Counts.Errored)
	assert.Zero(t, snap.Counts.Conflicted)

	conflicts, err := h.orch.Conflicts(context.Background(), "fab-1", true)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestSyncPerResourceErrorDoesNotAbort(t *testing.T) {
	h := newHarness(t)
	h.writeRepoDoc(t, vpcDoc("10.0.0.0/16"))
	sub := &resources.Document{
		Kind: resources.KindSubnet,
		Name: "web",
		Spec: map[string]any{"cidr": "10.0.1.0/24"},
	}
	h.writeRepoDoc(t, sub)
	h.fake.ApplyErr[sub.Ref()] = errors.NewClusterError("put", sub.Ref().String(), 422, "cidr out of range", false)

	snap := h.runSync(t, nil)
	assert.Equal(t, syncop.PhaseCompleted, snap.Phase)
	assert.Equal(t, 1, snap.Counts.Created)
	assert.Equal(t, 1, snap.Counts.Errored)

	var errored *syncop.ResourceOutcome
	for i := range snap.Outcomes {
		if snap.Outcomes[i].Kind == syncop.OutcomeErrored {
			errored = &snap.Outcomes[i]
		}
	}
	require.NotNil(t, errored)
	assert.Contains(t, errored.Error, "cidr out of range")
}

func TestSyncSingleActivePerFabric(t *testing.T) {
	h := newHarness(t)
	blocker := &blockingAdapter{Fake: h.fake, release: make(chan struct{})}
	h.orch.clusterFor = func(*fabrics.Fabric) cluster.Adapter { return blocker }

	snap, err := h.orch.Start(context.Background(), "fab-1", nil)
	require.NoError(t, err)

	_, err = h.orch.Start(context.Background(), "fab-1", nil)
	assert.ErrorIs(t, err, errors.ErrSyncInProgress)

	close(blocker.release)
	h.orch.Wait(snap.ID)

	// Once finished, a new operation is accepted again.
	snap2, err := h.orch.Start(context.Background(), "fab-1", nil)
	require.NoError(t, err)
	h.orch.Wait(snap2.ID)
}

func TestSyncCancelFinishesWithoutWrites(t *testing.T) {
	h := newHarness(t)
	doc := vpcDoc("10.0.0.0/16")
	h.writeRepoDoc(t, doc)

	blocker := &blockingAdapter{Fake: h.fake, release: make(chan struct{})}
	h.orch.clusterFor = func(*fabrics.Fabric) cluster.Adapter { return blocker }

	snap, err := h.orch.Start(context.Background(), "fab-1", nil)
	require.NoError(t, err)
	require.NoError(t, h.orch.Cancel(context.Background(), snap.ID))
	close(blocker.release)
	h.orch.Wait(snap.ID)

	got, err := h.orch.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, syncop.PhaseCancelled, got.Phase)
	// Cancelled before write-back: no writes, nothing re-marked.
	assert.Zero(t, got.Counts.Total())
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.writeRepoDoc(t, vpcDoc("10.0.0.0/16"))

	snap := h.runSync(t, syncop.NewOptions(syncop.WithDryRun(true)))
	assert.Equal(t, syncop.PhaseCompleted, snap.Phase)
	assert.Zero(t, h.fake.Applies())
	assert.Len(t, h.repo.Commits(), 1)
}

func TestSyncThrottlesOnRateLimit(t *testing.T) {
	h := newHarness(t)
	h.writeRepoDoc(t, vpcDoc("10.0.0.0/16"))

	limiter := &rateLimitOnce{Fake: h.fake}
	h.orch.clusterFor = func(*fabrics.Fabric) cluster.Adapter { return limiter }

	snap := h.runSync(t, nil)
	assert.Equal(t, syncop.PhaseCompleted, snap.Phase)
	assert.Equal(t, 1, snap.Counts.Created)

	// The throttled pause was persisted along the way.
	history, err := h.reg.GetOperation(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, syncop.PhaseCompleted, history.Phase)
}

func TestResolveConflictWritesBack(t *testing.T) {
	h := newHarness(t)
	repoDoc := vpcDoc("10.0.0.0/16")
	h.writeRepoDoc(t, repoDoc)
	h.fake.Seed(vpcDoc("10.0.1.0/16"))

	hash := resources.Hash(repoDoc)
	require.NoError(t, h.reg.UpsertResource(context.Background(), &resources.Tracked{
		FabricID: "fab-1", Ref: repoDoc.Ref(), FilePath: repoDoc.Path(),
		RepoHash: hash, RegistryHash: hash, ClusterHash: hash,
		State: resources.StateSynced, Document: repoDoc.Copy(),
	}))

	h.runSync(t, nil)
	conflicts, err := h.orch.Conflicts(context.Background(), "fab-1", true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	resolved, err := h.orch.ResolveConflict(context.Background(),
		conflicts[0].ID, reconcile.StrategyTargetWins, nil, nil, "operator")
	require.NoError(t, err)
	require.NotNil(t, resolved.Resolution)

	// Cluster side won; repo file, registry and cluster all agree.
	data, err := os.ReadFile(h.fabric.TreePath(repoDoc.Path()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "10.0.1.0/16")

	tracked, err := h.reg.GetResource(context.Background(), "fab-1", repoDoc.Ref())
	require.NoError(t, err)
	assert.Equal(t, resources.StateSynced, tracked.State)
	assert.Empty(t, tracked.PendingConflictID)

	// Resolving again is rejected: resolutions are immutable.
	_, err = h.orch.ResolveConflict(context.Background(),
		conflicts[0].ID, reconcile.StrategySourceWins, nil, nil, "operator")
	require.Error(t, err)
}

// blockingAdapter delays Fetch until released.
type blockingAdapter struct {
	*cluster.Fake
	release chan struct{}
}

func (b *blockingAdapter) Fetch(ctx context.Context) (map[resources.Ref]*resources.Document, error) {
	<-b.release
	return b.Fake.Fetch(ctx)
}

// rateLimitOnce fails the first Fetch with a 429.
type rateLimitOnce struct {
	*cluster.Fake
	tripped bool
}

func (r *rateLimitOnce) Fetch(ctx context.Context) (map[resources.Ref]*resources.Document, error) {
	if !r.tripped {
		r.tripped = true
		return nil, errors.NewClusterError("get", "", 429, "rate limited", true)
	}
	return r.Fake.Fetch(ctx)
}
