package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/resources"
)

// detectProdConflict builds a concurrent modification: repo and registry
// at 10.0.0.0/16, cluster at 10.0.1.0/16.
func detectProdConflict(t *testing.T) *Conflict {
	t.Helper()
	det := NewDetector().Detect("f1", "op1", prodRef(),
		vpcDoc("10.0.0.0/16"), vpcDoc("10.0.0.0/16"), vpcDoc("10.0.1.0/16"))
	require.NotNil(t, det.Conflict)
	return det.Conflict
}

func TestResolveMergeLastWriterWins(t *testing.T) {
	conflict := detectProdConflict(t)

	resolution, entry, err := NewResolver().Resolve(conflict, StrategyMerge, nil, nil, "operator@example.com")
	require.NoError(t, err)
	require.NotNil(t, resolution.Document)

	// Only the cluster wrote the subnet field since the last sync, so
	// last-writer-wins picks the cluster value.
	assert.Equal(t, "10.0.1.0/16", resolution.Document.Spec["subnet"])

	require.NotNil(t, entry)
	assert.Equal(t, resources.Hash(resolution.Document), entry.OutputHash)
	assert.Equal(t, conflict.ID, entry.ConflictID)
	assert.Equal(t, "operator@example.com", entry.Actor)
}

func TestResolveMergeUserDecisionOverrides(t *testing.T) {
	conflict := detectProdConflict(t)

	resolution, _, err := NewResolver().Resolve(conflict, StrategyMerge,
		Decisions{"spec.subnet": "10.8.0.0/16"}, nil, "operator")
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.0/16", resolution.Document.Spec["subnet"])
}

func TestResolveMergeUnionsListFields(t *testing.T) {
	registry := vpcDoc("10.0.0.0/16")
	registry.Spec["cidr_blocks"] = []any{"10.0.0.0/16"}
	repo := vpcDoc("10.0.0.0/16")
	repo.Spec["cidr_blocks"] = []any{"10.0.0.0/16", "10.1.0.0/16"}
	cluster := vpcDoc("10.0.0.0/16")
	cluster.Spec["cidr_blocks"] = []any{"10.0.0.0/16", "10.2.0.0/16"}

	det := NewDetector().Detect("f1", "op1", prodRef(), repo, registry, cluster)
	require.NotNil(t, det.Conflict)

	resolution, _, err := NewResolver().Resolve(det.Conflict, StrategyMerge, nil, nil, "operator")
	require.NoError(t, err)

	got := resolution.Document.Spec["cidr_blocks"].([]any)
	assert.Equal(t, []any{"10.0.0.0/16", "10.1.0.0/16", "10.2.0.0/16"}, got)
}

func TestResolveSourceWins(t *testing.T) {
	conflict := detectProdConflict(t)

	resolution, _, err := NewResolver().Resolve(conflict, StrategySourceWins, nil, nil, "operator")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/16", resolution.Document.Spec["subnet"])
}

func TestResolveTargetWins(t *testing.T) {
	conflict := detectProdConflict(t)

	resolution, _, err := NewResolver().Resolve(conflict, StrategyTargetWins, nil, nil, "operator")
	require.NoError(t, err)
	assert.Equal(t, "10.0.1.0/16", resolution.Document.Spec["subnet"])
}

func TestResolveSourceWinsPropagatesDeletion(t *testing.T) {
	det := NewDetector().Detect("f1", "op1", prodRef(),
		nil, vpcDoc("10.0.0.0/16"), vpcDoc("10.0.1.0/16"))
	require.NotNil(t, det.Conflict)
	require.Equal(t, TypeDeleteVsModify, det.Conflict.Type)

	resolution, entry, err := NewResolver().Resolve(det.Conflict, StrategySourceWins, nil, nil, "operator")
	require.NoError(t, err)
	assert.True(t, resolution.Deleted)
	assert.Nil(t, resolution.Document)
	assert.True(t, entry.Deleted)
	assert.Empty(t, entry.OutputHash)
}

func TestResolveManualValidatesDocument(t *testing.T) {
	conflict := detectProdConflict(t)
	r := NewResolver()

	_, _, err := r.Resolve(conflict, StrategyManual, nil, nil, "operator")
	require.Error(t, err)

	wrongIdentity := vpcDoc("10.3.0.0/16")
	wrongIdentity.Name = "staging"
	_, _, err = r.Resolve(conflict, StrategyManual, nil, wrongIdentity, "operator")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	final := vpcDoc("10.3.0.0/16")
	resolution, _, err := r.Resolve(conflict, StrategyManual, nil, final, "operator")
	require.NoError(t, err)
	assert.Equal(t, "10.3.0.0/16", resolution.Document.Spec["subnet"])
}

func TestResolveRejectsSecondResolution(t *testing.T) {
	conflict := detectProdConflict(t)
	r := NewResolver()

	_, _, err := r.Resolve(conflict, StrategyMerge, nil, nil, "operator")
	require.NoError(t, err)
	require.True(t, conflict.Resolved())

	_, _, err = r.Resolve(conflict, StrategyTargetWins, nil, nil, "operator")
	require.Error(t, err, "a resolved conflict is immutable")
}

func TestResolveRejectsUnknownStrategy(t *testing.T) {
	conflict := detectProdConflict(t)

	_, _, err := NewResolver().Resolve(conflict, Strategy("coin_flip"), nil, nil, "operator")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestResolveSchemaViolationTargetWins(t *testing.T) {
	cause := errors.NewClusterError("apply", "fabric/prod/vpc/vpc-main", 422, "cidr out of range", false)
	conflict := NewSchemaViolation("f1", "op1", prodRef(),
		vpcDoc("10.0.999.0/16"), vpcDoc("10.0.1.0/16"), cause)

	assert.Equal(t, TypeSchemaViolation, conflict.Type)
	assert.Equal(t, SeverityCritical, conflict.Severity)
	assert.Contains(t, conflict.Detail, "cidr out of range")

	// Keeping the cluster's surviving object discards the rejected edit.
	resolution, entry, err := NewResolver().Resolve(conflict, StrategyTargetWins, nil, nil, "operator")
	require.NoError(t, err)
	require.NotNil(t, resolution.Document)
	assert.Equal(t, "10.0.1.0/16", resolution.Document.Spec["subnet"])
	assert.Equal(t, conflict.ID, entry.ConflictID)
}
