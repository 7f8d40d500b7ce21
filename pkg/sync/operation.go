// Package sync defines the Sync Operation model: one reconciliation run
// with its phase state machine, per-resource outcomes and aggregate
// counts. Operations are immutable once terminal and retained for
// audit/history.
package sync

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/resources"
)

// Direction selects which way changes flow during a run.
type Direction string

const (
	DirectionRepoToCluster Direction = "repo-to-cluster"
	DirectionClusterToRepo Direction = "cluster-to-repo"
	DirectionBidirectional Direction = "bidirectional"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case DirectionRepoToCluster, DirectionClusterToRepo, DirectionBidirectional:
		return true
	}
	return false
}

// Phase is the orchestration stage of a sync operation.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseFetching     Phase = "fetching"
	PhaseDiffing      Phase = "diffing"
	PhaseResolving    Phase = "resolving"
	PhaseWritingBack  Phase = "writing_back"
	PhaseCommitting   Phase = "committing"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhaseCancelled    Phase = "cancelled"
	PhaseThrottled    Phase = "throttled"
)

// Terminal reports whether the phase ends the operation.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// phaseOrder drives forward-progress validation. Throttled is a pause,
// not a step; it maps to the phase it interrupted.
var phaseOrder = map[Phase]int{
	PhaseInitializing: 0,
	PhaseFetching:     1,
	PhaseDiffing:      2,
	PhaseResolving:    3,
	PhaseWritingBack:  4,
	PhaseCommitting:   5,
	PhaseCompleted:    6,
}

// advanceAllowed validates a phase change. Forward single steps are
// legal; writing_back may loop with resolving when write-back surfaces
// new conflicts; failed is reachable from any non-terminal phase and
// cancelled from any phase before committing.
func advanceAllowed(from, to Phase) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case PhaseFailed:
		return true
	case PhaseCancelled:
		return phaseOrder[from] < phaseOrder[PhaseCommitting]
	case PhaseThrottled:
		return true
	case PhaseResolving:
		// Loop back from write-back is allowed.
		return from == PhaseDiffing || from == PhaseWritingBack || from == PhaseThrottled
	}
	if from == PhaseThrottled {
		return true
	}
	return phaseOrder[to] == phaseOrder[from]+1
}

// OutcomeKind classifies what happened to one resource during a run.
type OutcomeKind string

const (
	OutcomeCreated        OutcomeKind = "created"
	OutcomeUpdated        OutcomeKind = "updated"
	OutcomeDeleted        OutcomeKind = "deleted"
	OutcomeSkipped        OutcomeKind = "skipped"
	OutcomeConflicted     OutcomeKind = "conflicted"
	OutcomeAutoReconciled OutcomeKind = "auto_reconciled"
	OutcomeOrphaned       OutcomeKind = "orphaned"
	OutcomeErrored        OutcomeKind = "errored"
)

// ResourceOutcome records the result for one resource, including the
// cause when it errored or conflicted. Per-resource errors never abort
// the whole operation.
type ResourceOutcome struct {
	Resource   resources.Ref   `json:"resource" yaml:"resource"`
	Kind       OutcomeKind     `json:"kind" yaml:"kind"`
	State      resources.State `json:"state,omitempty" yaml:"state,omitempty"`
	ConflictID string          `json:"conflict_id,omitempty" yaml:"conflict_id,omitempty"`
	Error      string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// Counts aggregates per-resource outcomes.
type Counts struct {
	Created        int `json:"created" yaml:"created"`
	Updated        int `json:"updated" yaml:"updated"`
	Deleted        int `json:"deleted" yaml:"deleted"`
	Skipped        int `json:"skipped" yaml:"skipped"`
	Conflicted     int `json:"conflicted" yaml:"conflicted"`
	AutoReconciled int `json:"auto_reconciled" yaml:"auto_reconciled"`
	Orphaned       int `json:"orphaned" yaml:"orphaned"`
	Errored        int `json:"errored" yaml:"errored"`
}

// Total returns the number of recorded outcomes.
func (c Counts) Total() int {
	return c.Created + c.Updated + c.Deleted + c.Skipped + c.Conflicted + c.AutoReconciled + c.Orphaned + c.Errored
}

// Operation is one reconciliation run. All mutators validate the phase
// state machine; terminal operations reject every mutation.
type Operation struct {
	mu sync.RWMutex

	ID        string    `json:"id" yaml:"id"`
	FabricID  string    `json:"fabric_id" yaml:"fabric_id"`
	Direction Direction `json:"direction" yaml:"direction"`

	phase         Phase
	throttledFrom Phase

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`

	outcomes []ResourceOutcome
	counts   Counts

	// Blocking conflicts currently holding resources in Pending.
	blocking []string

	failure string
}

// NewOperation starts a run in the initializing phase.
func NewOperation(fabricID string, direction Direction) *Operation {
	return &Operation{
		ID:        uuid.NewString(),
		FabricID:  fabricID,
		Direction: direction,
		phase:     PhaseInitializing,
		StartedAt: time.Now().UTC(),
	}
}

// Phase returns the current phase.
func (o *Operation) Phase() Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phase
}

// Advance moves the operation to the next phase, validating the edge.
func (o *Operation) Advance(to Phase) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	from := o.phase
	if from == PhaseThrottled && to != PhaseFailed && to != PhaseCancelled {
		// Resuming: the target must be legal from the interrupted phase.
		from = o.throttledFrom
	}
	if !advanceAllowed(from, to) {
		return errors.NewValidationError("phase", string(to), "illegal transition from "+string(o.phase))
	}
	if to == PhaseThrottled {
		o.throttledFrom = o.phase
	}
	o.phase = to
	if to.Terminal() {
		o.FinishedAt = time.Now().UTC()
	}
	return nil
}

// Fail marks the operation failed with a cause.
func (o *Operation) Fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase.Terminal() {
		return
	}
	o.phase = PhaseFailed
	if err != nil {
		o.failure = err.Error()
	}
	o.FinishedAt = time.Now().UTC()
}

// Failure returns the recorded failure cause, if any.
func (o *Operation) Failure() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.failure
}

// Record appends one per-resource outcome and updates the aggregate counts.
func (o *Operation) Record(outcome ResourceOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase.Terminal() {
		return
	}
	o.outcomes = append(o.outcomes, outcome)
	switch outcome.Kind {
	case OutcomeCreated:
		o.counts.Created++
	case OutcomeUpdated:
		o.counts.Updated++
	case OutcomeDeleted:
		o.counts.Deleted++
	case OutcomeSkipped:
		o.counts.Skipped++
	case OutcomeConflicted:
		o.counts.Conflicted++
		if outcome.ConflictID != "" {
			o.blocking = append(o.blocking, outcome.ConflictID)
		}
	case OutcomeAutoReconciled:
		o.counts.AutoReconciled++
	case OutcomeOrphaned:
		o.counts.Orphaned++
	case OutcomeErrored:
		o.counts.Errored++
	}
}

// Unblock removes a conflict from the blocking list once resolved.
func (o *Operation) Unblock(conflictID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.blocking[:0]
	for _, id := range o.blocking {
		if id != conflictID {
			kept = append(kept, id)
		}
	}
	o.blocking = kept
}

// Snapshot is a point-in-time, lock-free copy for API responses.
type Snapshot struct {
	ID         string            `json:"id"`
	FabricID   string            `json:"fabric_id"`
	Direction  Direction         `json:"direction"`
	Phase      Phase             `json:"phase"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Counts     Counts            `json:"counts"`
	Outcomes   []ResourceOutcome `json:"outcomes,omitempty"`
	Blocking   []string          `json:"blocking_conflicts,omitempty"`
	Failure    string            `json:"failure,omitempty"`
}

// Snapshot captures the operation's current state.
func (o *Operation) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snap := Snapshot{
		ID:        o.ID,
		FabricID:  o.FabricID,
		Direction: o.Direction,
		Phase:     o.phase,
		StartedAt: o.StartedAt,
		Counts:    o.counts,
		Failure:   o.failure,
	}
	if !o.FinishedAt.IsZero() {
		t := o.FinishedAt
		snap.FinishedAt = &t
	}
	snap.Outcomes = make([]ResourceOutcome, len(o.outcomes))
	copy(snap.Outcomes, o.outcomes)
	snap.Blocking = make([]string, len(o.blocking))
	copy(snap.Blocking, o.blocking)
	return snap
}

// Counts returns the aggregate counters.
func (o *Operation) Counts() Counts {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.counts
}
