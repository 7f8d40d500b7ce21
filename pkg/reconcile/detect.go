package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/netfabric/fabsync/pkg/resources"
)

// DefaultMergeKeys is the declared merge-key set: fields inside these
// paths participate in conflict detection and field-level merge. Fields
// outside them never block a merge.
var DefaultMergeKeys = []string{"spec", "metadata.labels"}

// Detection is the detector's verdict for one resource. Either Conflict
// is set (manual or strategy-driven resolution required) or the
// divergence auto-reconciles: Resolved carries the document to
// propagate and ChangedSource names the store it came from. A nil
// Resolved with Deleted set propagates a deletion.
type Detection struct {
	Ref resources.Ref

	// InSync: all three stores agree on normalized content.
	InSync bool

	// Conflict is non-nil when the two live stores disagree on a
	// merge-key field, or on deletion-vs-modification.
	Conflict *Conflict

	// Auto-reconcile outcome.
	ChangedSource Source
	Resolved      *resources.Document
	Deleted       bool

	// Orphaned: the resource survives in fewer than two of the three stores.
	Orphaned bool
}

// AutoReconciled reports whether the divergence resolved without a conflict.
func (d Detection) AutoReconciled() bool {
	return !d.InSync && d.Conflict == nil
}

// Detector compares the three stores for a resource and classifies
// divergence.
type Detector struct {
	mergeKeys []string
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithMergeKeys overrides the default merge-key set.
func WithMergeKeys(keys ...string) DetectorOption {
	return func(d *Detector) {
		d.mergeKeys = keys
	}
}

// NewDetector creates a Detector with options applied.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{mergeKeys: DefaultMergeKeys}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect compares the repository file, registry record and cluster
// object for one resource.
//
// The registry record is the baseline from the last successful sync,
// not an independent assertion: when the two live stores agree and only
// the registry lags, or when live divergence is confined to fields
// outside the merge-key set, the change propagates without a conflict.
// A conflict is raised only when repository and cluster disagree with
// each other on a merge-key field, or when one of them reports deletion
// while the other reports modification.
func (d *Detector) Detect(fabricID, operationID string, ref resources.Ref, repoDoc, registryDoc, clusterDoc *resources.Document) Detection {
	det := Detection{Ref: ref}

	repoPresent := repoDoc != nil
	clusterPresent := clusterDoc != nil
	registryPresent := registryDoc != nil

	// Fully absent everywhere: nothing to reconcile.
	if !repoPresent && !clusterPresent && !registryPresent {
		det.InSync = true
		return det
	}

	// Both live stores gone while the registry still tracks it.
	if !repoPresent && !clusterPresent {
		det.Orphaned = true
		det.Deleted = true
		return det
	}

	fullRepo := resources.Hash(repoDoc)
	fullRegistry := resources.Hash(registryDoc)
	fullCluster := resources.Hash(clusterDoc)

	if fullRepo == fullRegistry && fullRegistry == fullCluster {
		det.InSync = true
		return det
	}

	projRepo := d.projectionHash(repoDoc)
	projRegistry := d.projectionHash(registryDoc)
	projCluster := d.projectionHash(clusterDoc)

	// One live store reports deletion.
	if repoPresent != clusterPresent {
		present, presentProj, src := clusterDoc, projCluster, SourceCluster
		deletedSrc := SourceRepository
		if repoPresent {
			present, presentProj, src = repoDoc, projRepo, SourceRepository
			deletedSrc = SourceCluster
		}

		if !registryPresent {
			// Brand new on one side: adopt it.
			det.ChangedSource = src
			det.Resolved = present.Copy()
			return det
		}

		if presentProj != projRegistry {
			// Deleted on one side, modified on the other.
			c := newConflict(fabricID, operationID, ref, TypeDeleteVsModify)
			c.RepoDoc = repoDoc
			c.RegistryDoc = registryDoc
			c.ClusterDoc = clusterDoc
			c.Fields = d.fieldDiffs(repoDoc, registryDoc, clusterDoc)
			det.Conflict = c
			return det
		}

		// The surviving side is unmodified: the deletion is the change.
		det.ChangedSource = deletedSrc
		det.Deleted = true
		return det
	}

	// Both live stores present.
	if projRepo == projCluster {
		// Live stores agree on everything that matters. Either the
		// registry lags or the divergence sits outside the merge keys;
		// both propagate without a conflict.
		det.ChangedSource = SourceRepository
		if fullCluster != fullRegistry && fullRepo == fullRegistry {
			det.ChangedSource = SourceCluster
			det.Resolved = clusterDoc.Copy()
			return det
		}
		det.Resolved = repoDoc.Copy()
		return det
	}

	// Live stores disagree on merge-key content.
	c := newConflict(fabricID, operationID, ref, TypeConcurrentModification)
	c.RepoDoc = repoDoc
	c.RegistryDoc = registryDoc
	c.ClusterDoc = clusterDoc
	c.Fields = d.fieldDiffs(repoDoc, registryDoc, clusterDoc)
	det.Conflict = c
	return det
}

// projectionHash hashes the document restricted to the merge-key set
// plus identity.
func (d *Detector) projectionHash(doc *resources.Document) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "kind=%s\nname=%s\n", doc.Kind, doc.Name)
	for _, key := range d.mergeKeys {
		fmt.Fprintf(&b, "%s=", key)
		writeCanonicalValue(&b, mergeKeyValue(doc, key))
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// mergeKeyValue extracts the value a merge key addresses.
func mergeKeyValue(doc *resources.Document, key string) any {
	if doc == nil {
		return nil
	}
	switch key {
	case "spec":
		if doc.Spec == nil {
			return nil
		}
		return map[string]any(doc.Spec)
	case "metadata.labels":
		if len(doc.Metadata.Labels) == 0 {
			return nil
		}
		out := make(map[string]any, len(doc.Metadata.Labels))
		for k, v := range doc.Metadata.Labels {
			out[k] = v
		}
		return out
	default:
		// Unknown keys address nested spec paths: spec.<dotted.path>.
		if strings.HasPrefix(key, "spec.") {
			return lookupPath(map[string]any(doc.Spec), strings.Split(strings.TrimPrefix(key, "spec."), "."))
		}
		return nil
	}
}

// lookupPath walks nested maps along path segments.
func lookupPath(m map[string]any, path []string) any {
	var cur any = m
	for _, seg := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = node[seg]
	}
	return cur
}

// fieldDiffs computes per-field divergence inside the merge-key set,
// with the registry record as the change baseline.
func (d *Detector) fieldDiffs(repoDoc, registryDoc, clusterDoc *resources.Document) []FieldDiff {
	var diffs []FieldDiff
	for _, key := range d.mergeKeys {
		rv := mergeKeyValue(repoDoc, key)
		gv := mergeKeyValue(registryDoc, key)
		cv := mergeKeyValue(clusterDoc, key)
		diffs = append(diffs, diffValues(key, rv, gv, cv)...)
	}
	return diffs
}

// diffValues recursively compares three value trees, emitting one
// FieldDiff per divergent leaf.
func diffValues(path string, repo, registry, cluster any) []FieldDiff {
	rm, rOK := repo.(map[string]any)
	cm, cOK := cluster.(map[string]any)
	gm, _ := registry.(map[string]any)

	if rOK && cOK {
		keys := map[string]struct{}{}
		for k := range rm {
			keys[k] = struct{}{}
		}
		for k := range cm {
			keys[k] = struct{}{}
		}
		if gm != nil {
			for k := range gm {
				keys[k] = struct{}{}
			}
		}
		sorted := make([]string, 0, len(keys))
		for k := range keys {
			sorted = append(sorted, k)
		}
		sort.Strings(sorted)

		var diffs []FieldDiff
		for _, k := range sorted {
			var gv any
			if gm != nil {
				gv = gm[k]
			}
			diffs = append(diffs, diffValues(path+"."+k, rm[k], gv, cm[k])...)
		}
		return diffs
	}

	if canonical(repo) == canonical(cluster) {
		return nil
	}

	return []FieldDiff{{
		Path:           path,
		Repo:           repo,
		Registry:       registry,
		Cluster:        cluster,
		RepoChanged:    canonical(repo) != canonical(registry),
		ClusterChanged: canonical(cluster) != canonical(registry),
	}}
}

// canonical renders any value tree deterministically for comparison.
func canonical(v any) string {
	var b strings.Builder
	writeCanonicalValue(&b, v)
	return b.String()
}

// writeCanonicalValue mirrors the normalization used for content
// hashing: sorted map keys, preserved list order.
func writeCanonicalValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			writeCanonicalValue(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalValue(b, e)
		}
		b.WriteByte(']')
	case nil:
		b.WriteString("null")
	default:
		fmt.Fprintf(b, "%v", t)
	}
}
