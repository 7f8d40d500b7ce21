package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfabric/fabsync/pkg/errors"
)

func TestLegalTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
		ok   bool
	}{
		{StateDraft, StateCommitted, true},
		{StateCommitted, StateSynced, true},
		{StateCommitted, StatePending, true},
		{StateSynced, StateDrifted, true},
		{StateDrifted, StatePending, true},
		{StateDrifted, StateSynced, true},
		{StateOrphaned, StatePending, true},
		{StateOrphaned, StateDraft, true},
		{StatePending, StateSynced, true},
		{StatePending, StateCommitted, true},
		{StatePending, StateOrphaned, true},

		// non-adjacent jumps must be rejected
		{StateDraft, StateSynced, false},
		{StateDraft, StateDrifted, false},
		{StateSynced, StateCommitted, false},
		{StateSynced, StatePending, false},
		{StateCommitted, StateDrifted, false},
		{StateDrifted, StateOrphaned, false},
		{StatePending, StateDraft, false},
		{StateOrphaned, StateSynced, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestTrackedTransitionRejectsIllegalEdge(t *testing.T) {
	tr := &Tracked{
		FabricID: "f1",
		Ref:      Ref{Kind: KindVPC, Name: "prod"},
		State:    StateDraft,
	}

	err := tr.Transition(StateSynced)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIllegalTransition)
	assert.Equal(t, StateDraft, tr.State, "state must not change on a rejected transition")

	require.NoError(t, tr.Transition(StateCommitted))
	assert.Equal(t, StateCommitted, tr.State)
}

func TestParseState(t *testing.T) {
	s, err := ParseState("drifted")
	require.NoError(t, err)
	assert.Equal(t, StateDrifted, s)

	_, err = ParseState("stuck")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestDirectoryRootAgreesWithState(t *testing.T) {
	assert.Equal(t, "", StateDraft.DirectoryRoot())
	assert.Equal(t, "unmanaged", StateOrphaned.DirectoryRoot())
	assert.Equal(t, "managed", StateSynced.DirectoryRoot())
	assert.Equal(t, "managed", StateDrifted.DirectoryRoot())
	assert.Equal(t, "managed", StatePending.DirectoryRoot())
}
