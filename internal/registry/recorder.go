package registry

import (
	"context"

	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/resources"
)

// IngestRecorder adapts a Registry to the ingestion pipeline: every
// document landing under managed/ gets a tracked row with its hashes
// and the appropriate lifecycle transition.
type IngestRecorder struct {
	reg Registry
}

// NewIngestRecorder wraps reg for ingestion callbacks.
func NewIngestRecorder(reg Registry) *IngestRecorder {
	return &IngestRecorder{reg: reg}
}

// RecordIngested upserts the tracked row for an ingested document. A
// new resource enters Committed (written and committed by the batch);
// a previously Synced resource whose content changed becomes Drifted so
// the next sync re-evaluates it.
func (r *IngestRecorder) RecordIngested(ctx context.Context, fabricID string, doc *resources.Document, repoHash string) error {
	existing, err := r.reg.GetResource(ctx, fabricID, doc.Ref())
	if err != nil && !errors.IsNotFound(err) {
		return err
	}

	if existing == nil {
		return r.reg.UpsertResource(ctx, &resources.Tracked{
			FabricID: fabricID,
			Ref:      doc.Ref(),
			FilePath: doc.Path(),
			RepoHash: repoHash,
			State:    resources.StateCommitted,
			Document: doc.Copy(),
		})
	}

	existing.FilePath = doc.Path()
	existing.RepoHash = repoHash
	existing.Document = doc.Copy()
	if existing.State == resources.StateSynced && existing.ClusterHash != repoHash {
		if err := existing.Transition(resources.StateDrifted); err != nil {
			return err
		}
	}
	return r.reg.UpsertResource(ctx, existing)
}
