// Package reconcile detects divergence between the three stores of a
// tracked resource (repository file, registry record, cluster object)
// and resolves it with a configurable strategy, producing an immutable
// audit record per resolution.
package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/netfabric/fabsync/pkg/resources"
)

// Source names one of the three stores of truth.
type Source string

// The three stores compared for every tracked resource.
const (
	SourceRepository Source = "repository"
	SourceRegistry   Source = "registry"
	SourceCluster    Source = "cluster"
)

// String returns the string representation of a source name.
func (s Source) String() string {
	return string(s)
}

// Type classifies a detected conflict.
type Type string

const (
	// TypeConcurrentModification: repository and cluster changed the same
	// merge-key field to different values.
	TypeConcurrentModification Type = "concurrent_modification"

	// TypeDeleteVsModify: one store reports deletion while another
	// reports modification.
	TypeDeleteVsModify Type = "delete_vs_modify"

	// TypeSchemaViolation: the cluster rejected a document the detector
	// considered clean, surfaced during write-back.
	TypeSchemaViolation Type = "schema_violation"
)

// Severity grades how urgently a conflict needs operator attention.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// severityFor maps conflict types to their default severity. Deletions
// and schema rejections can destroy state, so they grade critical.
func severityFor(t Type) Severity {
	switch t {
	case TypeDeleteVsModify, TypeSchemaViolation:
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

// FieldDiff records one merge-key field holding different values across
// the stores.
type FieldDiff struct {
	Path     string `json:"path" yaml:"path"`
	Repo     any    `json:"repo,omitempty" yaml:"repo,omitempty"`
	Registry any    `json:"registry,omitempty" yaml:"registry,omitempty"`
	Cluster  any    `json:"cluster,omitempty" yaml:"cluster,omitempty"`

	// RepoChanged / ClusterChanged report which live store moved away
	// from the registry baseline, which is what decides the last writer
	// under merge resolution.
	RepoChanged    bool `json:"repo_changed" yaml:"repo_changed"`
	ClusterChanged bool `json:"cluster_changed" yaml:"cluster_changed"`
}

// Conflict references exactly one tracked resource and one sync
// operation, and holds the three candidate documents. It is archived
// only after its resolution has been committed to all three stores.
type Conflict struct {
	ID          string        `json:"id" yaml:"id"`
	OperationID string        `json:"operation_id" yaml:"operation_id"`
	FabricID    string        `json:"fabric_id" yaml:"fabric_id"`
	Resource    resources.Ref `json:"resource" yaml:"resource"`

	Type     Type     `json:"type" yaml:"type"`
	Severity Severity `json:"severity" yaml:"severity"`

	// Candidate field-sets from each store. A nil document means the
	// store reports the resource as absent.
	RepoDoc     *resources.Document `json:"repo_doc,omitempty" yaml:"repo_doc,omitempty"`
	RegistryDoc *resources.Document `json:"registry_doc,omitempty" yaml:"registry_doc,omitempty"`
	ClusterDoc  *resources.Document `json:"cluster_doc,omitempty" yaml:"cluster_doc,omitempty"`

	Fields []FieldDiff `json:"fields,omitempty" yaml:"fields,omitempty"`

	// Detail carries free-form context; schema violations record the
	// cluster's rejection message here.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`

	DetectedAt time.Time `json:"detected_at" yaml:"detected_at"`

	// Resolution is set exactly once; a resolved conflict is immutable.
	Resolution *Resolution `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

// Resolved reports whether a resolution decision has been recorded.
func (c *Conflict) Resolved() bool {
	return c.Resolution != nil
}

// newConflict builds a conflict with identity and defaults filled in.
func newConflict(fabricID, operationID string, ref resources.Ref, t Type) *Conflict {
	return &Conflict{
		ID:          uuid.NewString(),
		OperationID: operationID,
		FabricID:    fabricID,
		Resource:    ref,
		Type:        t,
		Severity:    severityFor(t),
		DetectedAt:  time.Now().UTC(),
	}
}

// NewSchemaViolation records a write-back rejection: the cluster
// refused a document the detector considered clean. The rejected
// candidate goes in RepoDoc and the cluster's surviving object, if
// any, in ClusterDoc, so a resolution can pick either side.
func NewSchemaViolation(fabricID, operationID string, ref resources.Ref, rejected, clusterDoc *resources.Document, cause error) *Conflict {
	c := newConflict(fabricID, operationID, ref, TypeSchemaViolation)
	if rejected != nil {
		c.RepoDoc = rejected.Copy()
	}
	if clusterDoc != nil {
		c.ClusterDoc = clusterDoc.Copy()
	}
	if cause != nil {
		c.Detail = cause.Error()
	}
	return c
}

// Strategy selects how a conflict is resolved.
type Strategy string

const (
	// StrategySourceWins: the repository document replaces the others.
	StrategySourceWins Strategy = "source_wins"

	// StrategyTargetWins: the cluster document replaces the others.
	StrategyTargetWins Strategy = "target_wins"

	// StrategyMerge: per-field winner; union for list-valued fields,
	// last-writer for scalars, user decisions override specific fields.
	StrategyMerge Strategy = "merge"

	// StrategyManual: the caller supplies the complete final document.
	StrategyManual Strategy = "manual"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySourceWins, StrategyTargetWins, StrategyMerge, StrategyManual:
		return true
	}
	return false
}

// Resolution is the outcome of resolving one conflict: the chosen
// strategy, the resulting document, and the resolver identity.
type Resolution struct {
	Strategy   Strategy            `json:"strategy" yaml:"strategy"`
	Document   *resources.Document `json:"document,omitempty" yaml:"document,omitempty"`
	Deleted    bool                `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	ResolvedBy string              `json:"resolved_by" yaml:"resolved_by"`
	ResolvedAt time.Time           `json:"resolved_at" yaml:"resolved_at"`
}
