package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/netfabric/fabsync/internal/gitrepo"
	"github.com/netfabric/fabsync/internal/registry"
	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
)

// Conflicts lists a fabric's conflicts.
func (o *Orchestrator) Conflicts(ctx context.Context, fabricID string, unresolvedOnly bool) ([]*reconcile.Conflict, error) {
	return o.reg.ListConflicts(ctx, fabricID, registry.ConflictFilter{Unresolved: unresolvedOnly})
}

// ResolveConflict applies a resolution strategy to a stored conflict
// and writes the outcome back to both stores. The resolution decision
// and its audit entry are persisted before write-back starts, so a
// failed write-back never loses the decision; the resource simply
// stays Pending until the next attempt.
func (o *Orchestrator) ResolveConflict(ctx context.Context, conflictID string, strategy reconcile.Strategy, decisions reconcile.Decisions, manualDoc *resources.Document, actor string) (*reconcile.Conflict, error) {
	conflict, err := o.reg.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}

	// The working tree is exclusive to one writer per fabric.
	if o.Active(conflict.FabricID) {
		return nil, errors.ErrSyncInProgress
	}

	resolution, audit, err := o.resolver.Resolve(conflict, strategy, decisions, manualDoc, actor)
	if err != nil {
		return nil, err
	}
	if err := o.reg.SaveAudit(ctx, audit); err != nil {
		return nil, err
	}
	if err := o.reg.SaveConflict(ctx, conflict); err != nil {
		return nil, err
	}
	o.events.ConflictResolved(conflict)

	if err := o.writeBackResolution(ctx, conflict, resolution); err != nil {
		return conflict, fmt.Errorf("resolution recorded but write-back failed: %w", err)
	}

	// The conflict no longer blocks its operation.
	o.mu.Lock()
	if r, live := o.runs[conflict.OperationID]; live {
		r.op.Unblock(conflictID)
	}
	o.mu.Unlock()

	return conflict, nil
}

// writeBackResolution lands a resolved document (or deletion) in the
// repository and the cluster, then settles the registry row.
func (o *Orchestrator) writeBackResolution(ctx context.Context, conflict *reconcile.Conflict, resolution *reconcile.Resolution) error {
	fabric, err := o.fabricSrc.Fabric(ctx, conflict.FabricID)
	if err != nil {
		return err
	}
	repo := o.repoFor(fabric)
	adapter := o.clusterFor(fabric)

	if err := repo.Ensure(ctx); err != nil {
		return err
	}

	ref := conflict.Resource
	tracked, err := o.reg.GetResource(ctx, fabric.ID, ref)
	if err != nil && !errors.IsNotFound(err) {
		return err
	}

	if resolution.Deleted {
		var path string
		if conflict.RepoDoc != nil {
			path = conflict.RepoDoc.Path()
		} else if tracked != nil {
			path = tracked.FilePath
		}
		if path != "" {
			target := filepath.Join(repo.Root(), filepath.FromSlash(path))
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return errors.WrapIO("remove", path, err)
			}
			if err := o.commitResolution(ctx, repo, conflict, path); err != nil {
				return err
			}
		}
		if err := adapter.Delete(ctx, ref); err != nil {
			return err
		}
		if tracked != nil {
			if err := o.reg.DeleteResource(ctx, fabric.ID, ref); err != nil && !errors.IsNotFound(err) {
				return err
			}
		}
		return nil
	}

	doc := resolution.Document
	path := doc.Path()
	data, err := doc.Marshal()
	if err != nil {
		return err
	}
	target := filepath.Join(repo.Root(), filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.WrapIO("create", filepath.Dir(path), err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return errors.WrapIO("write", path, err)
	}
	if err := o.commitResolution(ctx, repo, conflict, path); err != nil {
		return err
	}
	if err := adapter.Apply(ctx, doc); err != nil {
		return err
	}

	hash := resources.Hash(doc)
	if tracked == nil {
		tracked = &resources.Tracked{
			FabricID: fabric.ID,
			Ref:      ref,
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
	return o.reg.UpsertResource(ctx, tracked)
}

func (o *Orchestrator) commitResolution(ctx context.Context, repo gitrepo.Client, conflict *reconcile.Conflict, path string) error {
	if err := repo.Stage(ctx, path); err != nil {
		return err
	}
	msg := fmt.Sprintf("resolve conflict %s (%s) for %s",
		conflict.ID, conflict.Resolution.Strategy, conflict.Resource)
	if _, err := repo.Commit(ctx, msg); err != nil {
		return err
	}
	return repo.Push(ctx)
}
