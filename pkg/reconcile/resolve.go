package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/resources"
)

// Decisions maps field paths (as reported in Conflict.Fields) to the
// value the caller wants for that field, overriding the merge rules.
type Decisions map[string]any

// Resolver applies a resolution strategy to a conflict. It never writes
// to any store: write-back is a separate, explicit orchestrator step so
// a failed write-back cannot lose the resolution decision.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve produces the resolved document for a conflict and records the
// decision on the conflict together with an immutable audit entry.
// For StrategyManual the caller supplies the complete final document in
// manualDoc; for every other strategy manualDoc is ignored.
func (r *Resolver) Resolve(conflict *Conflict, strategy Strategy, decisions Decisions, manualDoc *resources.Document, actor string) (*Resolution, *AuditEntry, error) {
	if conflict == nil {
		return nil, nil, errors.NewValidationError("conflict", nil, "required")
	}
	if conflict.Resolved() {
		return nil, nil, errors.NewValidationError("conflict", conflict.ID, "already resolved")
	}
	if !strategy.Valid() {
		return nil, nil, errors.NewValidationError("strategy", string(strategy), "unknown resolution strategy")
	}

	resolution := &Resolution{
		Strategy:   strategy,
		ResolvedBy: actor,
		ResolvedAt: time.Now().UTC(),
	}

	switch strategy {
	case StrategySourceWins:
		if conflict.RepoDoc == nil {
			resolution.Deleted = true
		} else {
			resolution.Document = conflict.RepoDoc.Copy()
		}

	case StrategyTargetWins:
		if conflict.ClusterDoc == nil {
			resolution.Deleted = true
		} else {
			resolution.Document = conflict.ClusterDoc.Copy()
		}

	case StrategyMerge:
		doc, err := r.merge(conflict, decisions)
		if err != nil {
			return nil, nil, err
		}
		resolution.Document = doc

	case StrategyManual:
		if manualDoc == nil {
			return nil, nil, errors.NewValidationError("document", nil, "manual strategy requires the complete final document")
		}
		if err := manualDoc.Validate(); err != nil {
			return nil, nil, err
		}
		if manualDoc.Ref() != conflict.Resource {
			return nil, nil, errors.NewValidationError("document", manualDoc.Ref().String(),
				"identity does not match conflicted resource "+conflict.Resource.String())
		}
		resolution.Document = manualDoc.Copy()
	}

	// The audit record is produced before the resolution is handed back.
	entry := newAuditEntry(conflict, resolution, actor)
	conflict.Resolution = resolution

	return resolution, entry, nil
}

// merge builds a per-field merged document. List-valued fields take the
// non-overlapping union of both sides; scalar fields take the last
// writer, where the writer set comes from comparing each live store
// against the registry baseline; caller decisions override any field.
func (r *Resolver) merge(conflict *Conflict, decisions Decisions) (*resources.Document, error) {
	// With one side deleted there is nothing to field-merge: the
	// surviving modified document wins.
	if conflict.RepoDoc == nil && conflict.ClusterDoc == nil {
		return nil, errors.NewValidationError("conflict", conflict.ID, "no candidate documents to merge")
	}
	if conflict.RepoDoc == nil {
		return conflict.ClusterDoc.Copy(), nil
	}
	if conflict.ClusterDoc == nil {
		return conflict.RepoDoc.Copy(), nil
	}

	merged := conflict.RepoDoc.Copy()

	for _, diff := range conflict.Fields {
		if decided, ok := decisions[diff.Path]; ok {
			if err := setFieldValue(merged, diff.Path, decided); err != nil {
				return nil, err
			}
			continue
		}

		value := mergeField(diff)
		if err := setFieldValue(merged, diff.Path, value); err != nil {
			return nil, err
		}
	}

	return merged, nil
}

// mergeField picks the winning value for one divergent field.
func mergeField(diff FieldDiff) any {
	repoList, repoIsList := diff.Repo.([]any)
	clusterList, clusterIsList := diff.Cluster.([]any)

	// List-valued fields merge as a non-overlapping union, repository
	// order first.
	if repoIsList || clusterIsList {
		return unionLists(repoList, clusterList)
	}

	// Scalars take the last writer. A store that moved away from the
	// registry baseline wrote the field; when both wrote, the cluster
	// wins as the most recently observed runtime state.
	switch {
	case diff.ClusterChanged && !diff.RepoChanged:
		return diff.Cluster
	case diff.RepoChanged && !diff.ClusterChanged:
		return diff.Repo
	default:
		return diff.Cluster
	}
}

// unionLists returns a's elements followed by b's elements not already
// present, comparing by canonical rendering.
func unionLists(a, b []any) []any {
	out := make([]any, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, e := range a {
		key := canonical(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	prefix := len(out)
	for _, e := range b {
		key := canonical(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	sortStableByCanonical(out[prefix:])
	return out
}

// sortStableByCanonical keeps appended elements deterministic when the
// source map iteration order would otherwise leak through.
func sortStableByCanonical(s []any) {
	sort.SliceStable(s, func(i, j int) bool {
		return canonical(s[i]) < canonical(s[j])
	})
}

// setFieldValue writes a value at a dotted field path rooted at the
// document (spec.* or metadata.labels.*).
func setFieldValue(doc *resources.Document, path string, value any) error {
	segs := strings.Split(path, ".")
	switch {
	case segs[0] == "spec":
		if len(segs) == 1 {
			m, ok := value.(map[string]any)
			if !ok && value != nil {
				return errors.NewValidationError(path, value, "spec must be a mapping")
			}
			doc.Spec = m
			return nil
		}
		if doc.Spec == nil {
			doc.Spec = map[string]any{}
		}
		return setMapPath(doc.Spec, segs[1:], value)

	case len(segs) >= 2 && segs[0] == "metadata" && segs[1] == "labels":
		if len(segs) == 2 {
			return errors.NewValidationError(path, value, "label merges address individual keys")
		}
		if doc.Metadata.Labels == nil {
			doc.Metadata.Labels = map[string]string{}
		}
		key := strings.Join(segs[2:], ".")
		if value == nil {
			delete(doc.Metadata.Labels, key)
			return nil
		}
		s, ok := value.(string)
		if !ok {
			return errors.NewValidationError(path, value, "label values must be strings")
		}
		doc.Metadata.Labels[key] = s
		return nil

	default:
		return errors.NewValidationError(path, value, "field path outside merge-key set")
	}
}

// setMapPath writes value into nested maps, creating intermediates.
func setMapPath(m map[string]any, segs []string, value any) error {
	for i, seg := range segs[:len(segs)-1] {
		next, ok := m[seg]
		if !ok || next == nil {
			child := map[string]any{}
			m[seg] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return errors.NewValidationError(strings.Join(segs[:i+1], "."), value, "path crosses a scalar field")
		}
		m = child
	}
	last := segs[len(segs)-1]
	if value == nil {
		delete(m, last)
		return nil
	}
	m[last] = value
	return nil
}
