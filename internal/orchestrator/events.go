package orchestrator

import (
	"github.com/netfabric/fabsync/pkg/reconcile"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

// EventSink receives lifecycle notifications. The webhook dispatcher
// and the embedding client's hooks both implement it. Implementations
// must not block; the orchestrator calls them inline.
type EventSink interface {
	SyncStarted(snap syncop.Snapshot)
	SyncCompleted(snap syncop.Snapshot)
	SyncFailed(snap syncop.Snapshot)
	ConflictDetected(c *reconcile.Conflict)
	ConflictResolved(c *reconcile.Conflict)
}

// NopEvents discards every event.
type NopEvents struct{}

func (NopEvents) SyncStarted(syncop.Snapshot)            {}
func (NopEvents) SyncCompleted(syncop.Snapshot)          {}
func (NopEvents) SyncFailed(syncop.Snapshot)             {}
func (NopEvents) ConflictDetected(*reconcile.Conflict)   {}
func (NopEvents) ConflictResolved(*reconcile.Conflict)   {}

// MultiEvents fans one event out to several sinks.
type MultiEvents []EventSink

func (m MultiEvents) SyncStarted(snap syncop.Snapshot) {
	for _, s := range m {
		s.SyncStarted(snap)
	}
}

func (m MultiEvents) SyncCompleted(snap syncop.Snapshot) {
	for _, s := range m {
		s.SyncCompleted(snap)
	}
}

func (m MultiEvents) SyncFailed(snap syncop.Snapshot) {
	for _, s := range m {
		s.SyncFailed(snap)
	}
}

func (m MultiEvents) ConflictDetected(c *reconcile.Conflict) {
	for _, s := range m {
		s.ConflictDetected(c)
	}
}

func (m MultiEvents) ConflictResolved(c *reconcile.Conflict) {
	for _, s := range m {
		s.ConflictResolved(c)
	}
}
