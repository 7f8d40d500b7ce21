package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/netfabric/fabsync/pkg/resources"
)

// AuditEntry is the immutable record of one conflict resolution:
// strategy, input hashes, output hash, actor and timestamp. Exactly one
// entry is produced per resolved conflict, and its recorded output must
// match what is subsequently written back.
type AuditEntry struct {
	ID          string        `json:"id" yaml:"id"`
	ConflictID  string        `json:"conflict_id" yaml:"conflict_id"`
	OperationID string        `json:"operation_id" yaml:"operation_id"`
	FabricID    string        `json:"fabric_id" yaml:"fabric_id"`
	Resource    resources.Ref `json:"resource" yaml:"resource"`

	Strategy Strategy `json:"strategy" yaml:"strategy"`

	// Input hashes capture the three candidate documents at resolution time.
	InputRepoHash     string `json:"input_repo_hash,omitempty" yaml:"input_repo_hash,omitempty"`
	InputRegistryHash string `json:"input_registry_hash,omitempty" yaml:"input_registry_hash,omitempty"`
	InputClusterHash  string `json:"input_cluster_hash,omitempty" yaml:"input_cluster_hash,omitempty"`

	// OutputHash is the normalized hash of the resolved document, empty
	// when the resolution is a deletion.
	OutputHash string `json:"output_hash,omitempty" yaml:"output_hash,omitempty"`
	Deleted    bool   `json:"deleted,omitempty" yaml:"deleted,omitempty"`

	Actor     string    `json:"actor" yaml:"actor"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// newAuditEntry snapshots a resolution before it is handed back for
// write-back.
func newAuditEntry(conflict *Conflict, resolution *Resolution, actor string) *AuditEntry {
	return &AuditEntry{
		ID:                uuid.NewString(),
		ConflictID:        conflict.ID,
		OperationID:       conflict.OperationID,
		FabricID:          conflict.FabricID,
		Resource:          conflict.Resource,
		Strategy:          resolution.Strategy,
		InputRepoHash:     resources.Hash(conflict.RepoDoc),
		InputRegistryHash: resources.Hash(conflict.RegistryDoc),
		InputClusterHash:  resources.Hash(conflict.ClusterDoc),
		OutputHash:        resources.Hash(resolution.Document),
		Deleted:           resolution.Deleted,
		Actor:             actor,
		Timestamp:         resolution.ResolvedAt,
	}
}
