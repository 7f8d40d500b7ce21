package fabsync

import (
	"sync"

	"github.com/netfabric/fabsync/pkg/reconcile"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

// SyncStartedHook is called when a sync operation begins executing.
type SyncStartedHook func(snap syncop.Snapshot)

// SyncCompletedHook is called when a sync operation finishes
// successfully, including runs that parked conflicts.
type SyncCompletedHook func(snap syncop.Snapshot)

// SyncFailedHook is called when a sync operation fails or is cancelled.
type SyncFailedHook func(snap syncop.Snapshot)

// ConflictDetectedHook is called when a true conflict is detected and
// parked for resolution.
type ConflictDetectedHook func(c *reconcile.Conflict)

// ConflictResolvedHook is called when a conflict is resolved, whether
// automatically or through the Resolve API.
type ConflictResolvedHook func(c *reconcile.Conflict)

// hooks fans orchestrator events out to registered callbacks. It
// implements orchestrator.EventSink.
type hooks struct {
	mu                sync.RWMutex
	syncStarted       []SyncStartedHook
	syncCompleted     []SyncCompletedHook
	syncFailed        []SyncFailedHook
	conflictDetected  []ConflictDetectedHook
	conflictResolved  []ConflictResolvedHook
}

func newHooks() *hooks {
	return &hooks{}
}

// OnSyncStarted registers a callback for sync start events.
func (c *client) OnSyncStarted(hook SyncStartedHook) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.syncStarted = append(c.hooks.syncStarted, hook)
}

// OnSyncCompleted registers a callback for sync completion events.
func (c *client) OnSyncCompleted(hook SyncCompletedHook) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.syncCompleted = append(c.hooks.syncCompleted, hook)
}

// OnSyncFailed registers a callback for sync failure events.
func (c *client) OnSyncFailed(hook SyncFailedHook) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.syncFailed = append(c.hooks.syncFailed, hook)
}

// OnConflictDetected registers a callback for conflict detection events.
func (c *client) OnConflictDetected(hook ConflictDetectedHook) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.conflictDetected = append(c.hooks.conflictDetected, hook)
}

// OnConflictResolved registers a callback for conflict resolution events.
func (c *client) OnConflictResolved(hook ConflictResolvedHook) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.conflictResolved = append(c.hooks.conflictResolved, hook)
}

func (h *hooks) SyncStarted(snap syncop.Snapshot) {
	h.mu.RLock()
	registered := make([]SyncStartedHook, len(h.syncStarted))
	copy(registered, h.syncStarted)
	h.mu.RUnlock()
	for _, hook := range registered {
		hook(snap)
	}
}

func (h *hooks) SyncCompleted(snap syncop.Snapshot) {
	h.mu.RLock()
	registered := make([]SyncCompletedHook, len(h.syncCompleted))
	copy(registered, h.syncCompleted)
	h.mu.RUnlock()
	for _, hook := range registered {
		hook(snap)
	}
}

func (h *hooks) SyncFailed(snap syncop.Snapshot) {
	h.mu.RLock()
	registered := make([]SyncFailedHook, len(h.syncFailed))
	copy(registered, h.syncFailed)
	h.mu.RUnlock()
	for _, hook := range registered {
		hook(snap)
	}
}

func (h *hooks) ConflictDetected(conflict *reconcile.Conflict) {
	h.mu.RLock()
	registered := make([]ConflictDetectedHook, len(h.conflictDetected))
	copy(registered, h.conflictDetected)
	h.mu.RUnlock()
	for _, hook := range registered {
		hook(conflict)
	}
}

func (h *hooks) ConflictResolved(conflict *reconcile.Conflict) {
	h.mu.RLock()
	registered := make([]ConflictResolvedHook, len(h.conflictResolved))
	copy(registered, h.conflictResolved)
	h.mu.RUnlock()
	for _, hook := range registered {
		hook(conflict)
	}
}
