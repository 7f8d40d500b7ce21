package registry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

// memoryRegistry keeps everything in maps, deep-copying on the way in
// and out so callers never share mutable state with the store.
type memoryRegistry struct {
	mu sync.RWMutex

	fabrics    map[string]*fabrics.Fabric
	resources  map[string]map[string]*resources.Tracked
	operations map[string]syncop.Snapshot
	conflicts  map[string]*reconcile.Conflict
	audits     []*reconcile.AuditEntry
}

// NewMemory returns an empty in-memory Registry.
func NewMemory() Registry {
	return &memoryRegistry{
		fabrics:    make(map[string]*fabrics.Fabric),
		resources:  make(map[string]map[string]*resources.Tracked),
		operations: make(map[string]syncop.Snapshot),
		conflicts:  make(map[string]*reconcile.Conflict),
	}
}

func (m *memoryRegistry) Close() error { return nil }

func (m *memoryRegistry) SaveFabric(_ context.Context, f *fabrics.Fabric) error {
	if err := f.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fabrics[f.ID] = deepCopy(f)
	return nil
}

func (m *memoryRegistry) GetFabric(_ context.Context, id string) (*fabrics.Fabric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fabrics[id]
	if !ok {
		return nil, errors.NewNotFoundError("fabric", id)
	}
	return deepCopy(f), nil
}

func (m *memoryRegistry) ListFabrics(_ context.Context) ([]*fabrics.Fabric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*fabrics.Fabric, 0, len(m.fabrics))
	for _, f := range m.fabrics {
		out = append(out, deepCopy(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRegistry) UpsertResource(_ context.Context, t *resources.Tracked) error {
	if t.FabricID == "" || t.Ref.Kind == "" || t.Ref.Name == "" {
		return errors.NewValidationError("resource", t.Ref.String(), "fabric, kind and name are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.resources[t.FabricID]
	if !ok {
		rows = make(map[string]*resources.Tracked)
		m.resources[t.FabricID] = rows
	}
	rows[t.Ref.String()] = deepCopy(t)
	return nil
}

func (m *memoryRegistry) GetResource(_ context.Context, fabricID string, ref resources.Ref) (*resources.Tracked, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.resources[fabricID][ref.String()]
	if !ok {
		return nil, errors.NewNotFoundError("resource", ref.String())
	}
	return deepCopy(t), nil
}

func (m *memoryRegistry) ListResources(_ context.Context, fabricID string) ([]*resources.Tracked, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.resources[fabricID]
	out := make([]*resources.Tracked, 0, len(rows))
	for _, t := range rows {
		out = append(out, deepCopy(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.String() < out[j].Ref.String() })
	return out, nil
}

func (m *memoryRegistry) DeleteResource(_ context.Context, fabricID string, ref resources.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[fabricID][ref.String()]; !ok {
		return errors.NewNotFoundError("resource", ref.String())
	}
	delete(m.resources[fabricID], ref.String())
	return nil
}

func (m *memoryRegistry) SaveOperation(_ context.Context, snap syncop.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.operations[snap.ID]; ok && prev.Phase.Terminal() {
		return errors.NewValidationError("operation", snap.ID, "terminal operations are immutable")
	}
	m.operations[snap.ID] = snap
	return nil
}

func (m *memoryRegistry) GetOperation(_ context.Context, id string) (*syncop.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.operations[id]
	if !ok {
		return nil, errors.NewNotFoundError("sync operation", id)
	}
	return &snap, nil
}

func (m *memoryRegistry) ListOperations(_ context.Context, fabricID string) ([]syncop.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []syncop.Snapshot
	for _, snap := range m.operations {
		if snap.FabricID == fabricID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *memoryRegistry) SaveConflict(_ context.Context, c *reconcile.Conflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.conflicts[c.ID]; ok && prev.Resolved() && c.Resolution == nil {
		return errors.NewValidationError("conflict", c.ID, "resolution cannot be cleared")
	}
	m.conflicts[c.ID] = deepCopy(c)
	return nil
}

func (m *memoryRegistry) GetConflict(_ context.Context, id string) (*reconcile.Conflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conflicts[id]
	if !ok {
		return nil, errors.NewNotFoundError("conflict", id)
	}
	return deepCopy(c), nil
}

func (m *memoryRegistry) ListConflicts(_ context.Context, fabricID string, filter ConflictFilter) ([]*reconcile.Conflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*reconcile.Conflict
	for _, c := range m.conflicts {
		if c.FabricID != fabricID {
			continue
		}
		if filter.Unresolved && c.Resolved() {
			continue
		}
		out = append(out, deepCopy(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

func (m *memoryRegistry) SaveAudit(_ context.Context, e *reconcile.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, deepCopy(e))
	return nil
}

func (m *memoryRegistry) ListAudits(_ context.Context, fabricID string) ([]*reconcile.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*reconcile.AuditEntry
	for _, e := range m.audits {
		if e.FabricID == fabricID {
			out = append(out, deepCopy(e))
		}
	}
	return out, nil
}

// deepCopy round-trips through JSON; registry types are all plain data.
func deepCopy[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		panic(err)
	}
	return out
}
