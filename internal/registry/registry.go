// Package registry is the relational record of everything the sync
// engine tracks: fabrics, resources with their lifecycle state and
// per-store hashes, sync operations, conflicts and resolution audit
// entries. Two implementations exist: SQLite for production and an
// in-memory store for tests.
package registry

import (
	"context"

	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
	"github.com/netfabric/fabsync/pkg/sync"
)

// ConflictFilter narrows conflict listings.
type ConflictFilter struct {
	// Unresolved limits results to conflicts without a resolution.
	Unresolved bool
}

// Registry persists the engine's durable state. Implementations use
// short per-row transactions; callers never hold a registry-wide lock.
type Registry interface {
	// Fabrics.
	SaveFabric(ctx context.Context, f *fabrics.Fabric) error
	GetFabric(ctx context.Context, id string) (*fabrics.Fabric, error)
	ListFabrics(ctx context.Context) ([]*fabrics.Fabric, error)

	// Tracked resources, keyed (fabric, kind, name).
	UpsertResource(ctx context.Context, t *resources.Tracked) error
	GetResource(ctx context.Context, fabricID string, ref resources.Ref) (*resources.Tracked, error)
	ListResources(ctx context.Context, fabricID string) ([]*resources.Tracked, error)
	DeleteResource(ctx context.Context, fabricID string, ref resources.Ref) error

	// Sync operations, immutable once terminal.
	SaveOperation(ctx context.Context, snap sync.Snapshot) error
	GetOperation(ctx context.Context, id string) (*sync.Snapshot, error)
	ListOperations(ctx context.Context, fabricID string) ([]sync.Snapshot, error)

	// Conflicts.
	SaveConflict(ctx context.Context, c *reconcile.Conflict) error
	GetConflict(ctx context.Context, id string) (*reconcile.Conflict, error)
	ListConflicts(ctx context.Context, fabricID string, filter ConflictFilter) ([]*reconcile.Conflict, error)

	// Audit entries, append-only.
	SaveAudit(ctx context.Context, e *reconcile.AuditEntry) error
	ListAudits(ctx context.Context, fabricID string) ([]*reconcile.AuditEntry, error)

	// Close releases the underlying store.
	Close() error
}
