// Package resources defines the document model for tracked
// network-fabric resources: identity, canonical file placement,
// normalized content hashing, and the six-state lifecycle shared by the
// repository, the registry, and the cluster.
package resources

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/netfabric/fabsync/pkg/errors"
)

// Kind identifies a fabric resource type (VPC, Subnet, FirewallRule...).
type Kind string

// String returns the string representation of a kind.
func (k Kind) String() string {
	return string(k)
}

// Dir returns the managed/ subdirectory for this kind.
func (k Kind) Dir() string {
	return strings.ToLower(string(k)) + "s"
}

// Kinds shipped with the fabric plugin. Additional kinds are accepted at
// ingestion time; these only seed the managed/ directory topology.
const (
	KindVPC          Kind = "VPC"
	KindSubnet       Kind = "Subnet"
	KindFirewallRule Kind = "FirewallRule"
	KindRouteTable   Kind = "RouteTable"
	KindGateway      Kind = "Gateway"
)

// DefaultKinds lists the kinds whose directories are created by
// directory initialization.
func DefaultKinds() []Kind {
	return []Kind{KindVPC, KindSubnet, KindFirewallRule, KindRouteTable, KindGateway}
}

// Ref is the identity of a tracked resource, unique within a fabric.
type Ref struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
}

// String returns the kind/name form used in logs and API payloads.
func (r Ref) String() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.Name)
}

// ParseRef parses a kind/name pair back into a Ref.
func ParseRef(s string) (Ref, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, errors.NewValidationError("ref", s, "expected kind/name")
	}
	return Ref{Kind: Kind(parts[0]), Name: parts[1]}, nil
}

// Metadata carries the labeled portion of a resource document. Labels
// participate in field-level merges; annotations do not.
type Metadata struct {
	Labels      map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Document is one fabric resource as written to managed/<kind>/<name>.yaml,
// stored in the registry, and applied to the cluster.
type Document struct {
	Kind     Kind           `json:"kind" yaml:"kind"`
	Name     string         `json:"name" yaml:"name"`
	Metadata Metadata       `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Spec     map[string]any `json:"spec,omitempty" yaml:"spec,omitempty"`
}

// Ref returns the document's identity.
func (d *Document) Ref() Ref {
	return Ref{Kind: d.Kind, Name: d.Name}
}

// Validate checks the required identity fields.
func (d *Document) Validate() error {
	if d.Kind == "" {
		return errors.NewValidationError("kind", nil, "required field missing")
	}
	if d.Name == "" {
		return errors.NewValidationError("name", nil, "required field missing")
	}
	if strings.ContainsAny(d.Name, "/\\") {
		return errors.NewValidationError("name", d.Name, "must not contain path separators")
	}
	return nil
}

// Path returns the canonical repository-relative file path for the
// document under managed/.
func (d *Document) Path() string {
	return path.Join("managed", d.Kind.Dir(), d.Name+".yaml")
}

// Copy returns a deep copy of the document.
func (d *Document) Copy() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Kind: d.Kind,
		Name: d.Name,
	}
	if d.Metadata.Labels != nil {
		out.Metadata.Labels = make(map[string]string, len(d.Metadata.Labels))
		for k, v := range d.Metadata.Labels {
			out.Metadata.Labels[k] = v
		}
	}
	if d.Metadata.Annotations != nil {
		out.Metadata.Annotations = make(map[string]string, len(d.Metadata.Annotations))
		for k, v := range d.Metadata.Annotations {
			out.Metadata.Annotations[k] = v
		}
	}
	if d.Spec != nil {
		out.Spec = copyValue(d.Spec).(map[string]any)
	}
	return out
}

// copyValue deep-copies the generic YAML value tree.
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return t
	}
}

// Marshal renders the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, errors.WrapParse("yaml", d.Ref().String(), err)
	}
	return data, nil
}

// Unmarshal parses one YAML document.
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapParse("yaml", "", err)
	}
	return &doc, nil
}

// UnmarshalAll parses a possibly multi-document YAML stream. Empty
// documents are skipped.
func UnmarshalAll(data []byte) ([]*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var docs []*Document
	for i := 0; ; i++ {
		var doc Document
		err := dec.Decode(&doc)
		if stderrors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, errors.WrapParse("yaml", fmt.Sprintf("document %d", i), err)
		}
		if doc.Kind == "" && doc.Name == "" && doc.Spec == nil {
			continue
		}
		docs = append(docs, &doc)
	}
}

// Tracked is the registry's record of one reconciled resource: its file
// mapping, the last-known hash from each of the three stores, and its
// lifecycle state. At most one Tracked row exists per (fabric, kind, name).
type Tracked struct {
	FabricID string `json:"fabric_id" yaml:"fabric_id"`
	Ref      Ref    `json:"ref" yaml:"ref"`

	// FilePath is repository-relative and must sit under exactly one of
	// raw/, unmanaged/ or managed/ at any time.
	FilePath string `json:"file_path" yaml:"file_path"`

	RepoHash     string `json:"repo_hash,omitempty" yaml:"repo_hash,omitempty"`
	RegistryHash string `json:"registry_hash,omitempty" yaml:"registry_hash,omitempty"`
	ClusterHash  string `json:"cluster_hash,omitempty" yaml:"cluster_hash,omitempty"`

	State State `json:"state" yaml:"state"`

	// Document is the registry's copy of the resource content, the
	// baseline for three-way comparison.
	Document *Document `json:"document,omitempty" yaml:"document,omitempty"`

	LastSyncedAt      time.Time `json:"last_synced_at,omitempty" yaml:"last_synced_at,omitempty"`
	PendingConflictID string    `json:"pending_conflict_id,omitempty" yaml:"pending_conflict_id,omitempty"`
}

// Transition validates and applies a lifecycle state change.
func (t *Tracked) Transition(to State) error {
	if !t.State.CanTransition(to) {
		return &errors.TransitionError{
			Resource: t.Ref.String(),
			From:     t.State.String(),
			To:       to.String(),
		}
	}
	t.State = to
	return nil
}
