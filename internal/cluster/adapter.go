// Package cluster talks to the live fabric cluster API: fetch the
// current resource objects, apply documents, delete objects. The
// adapter keeps no cross-call state; every call is independently
// retryable. Errors are classified transient (network, timeout, 429,
// 5xx) or permanent (the cluster rejected the document).
package cluster

import (
	"context"

	"github.com/netfabric/fabsync/pkg/resources"
)

// Adapter is the cluster access layer for one fabric.
type Adapter interface {
	// Fetch returns every resource object the cluster currently holds,
	// keyed by ref.
	Fetch(ctx context.Context) (map[resources.Ref]*resources.Document, error)

	// Apply creates or updates one resource object.
	Apply(ctx context.Context, doc *resources.Document) error

	// Delete removes one resource object. Deleting an absent resource
	// is not an error.
	Delete(ctx context.Context, ref resources.Ref) error
}
