package resources

import (
	"github.com/netfabric/fabsync/pkg/errors"
)

// State is the lifecycle state of a tracked resource. Exactly one state
// is active per resource at a time, and only adjacent transitions are
// legal; everything else is rejected with ErrIllegalTransition.
type State string

const (
	// StateDraft: known only to the registry, not yet written to the repository.
	StateDraft State = "draft"

	// StateCommitted: written to the repository, not yet confirmed applied
	// to the cluster.
	StateCommitted State = "committed"

	// StateSynced: repository, registry and cluster agree.
	StateSynced State = "synced"

	// StateDrifted: a diff found a mismatch, resolution not yet attempted.
	StateDrifted State = "drifted"

	// StateOrphaned: the resource exists in fewer than two of the three stores.
	StateOrphaned State = "orphaned"

	// StatePending: awaiting an explicit resolution decision.
	StatePending State = "pending"
)

// transitions encodes the legal lifecycle edges.
var transitions = map[State][]State{
	StateDraft:     {StateCommitted},
	StateCommitted: {StateSynced, StatePending},
	StateSynced:    {StateDrifted},
	StateDrifted:   {StatePending, StateSynced},
	StateOrphaned:  {StatePending, StateDraft},
	StatePending:   {StateSynced, StateCommitted, StateOrphaned},
}

// String returns the string representation of a state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is one of the six lifecycle states.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Next returns the states reachable from s.
func (s State) Next() []State {
	out := make([]State, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// ParseState parses a stored state string, rejecting unknown values so a
// corrupted registry row cannot smuggle in an invalid state.
func ParseState(s string) (State, error) {
	state := State(s)
	if !state.Valid() {
		return "", errors.NewValidationError("state", s, "unknown lifecycle state")
	}
	return state, nil
}

// DirectoryRoot names the top-level directory a resource in this state
// is allowed to live under. Directory membership and lifecycle state
// must agree.
func (s State) DirectoryRoot() string {
	switch s {
	case StateDraft:
		return "" // registry only, no file yet
	case StateOrphaned:
		return "unmanaged"
	default:
		return "managed"
	}
}
