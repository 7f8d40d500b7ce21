package cluster

import (
	"context"
	"sync"

	"github.com/netfabric/fabsync/pkg/resources"
)

// Fake is an in-memory Adapter for tests. Objects live in a map;
// injectable errors simulate transient and permanent failures.
type Fake struct {
	mu      sync.Mutex
	objects map[resources.Ref]*resources.Document

	// FetchErr fails the next Fetch calls while set.
	FetchErr error
	// ApplyErr fails Apply for the listed refs.
	ApplyErr map[resources.Ref]error
	// DeleteErr fails Delete for the listed refs.
	DeleteErr map[resources.Ref]error

	applies int
	deletes int
}

// NewFake returns an empty fake cluster.
func NewFake() *Fake {
	return &Fake{
		objects:   make(map[resources.Ref]*resources.Document),
		ApplyErr:  make(map[resources.Ref]error),
		DeleteErr: make(map[resources.Ref]error),
	}
}

// Seed preloads an object without counting as an apply.
func (f *Fake) Seed(doc *resources.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[doc.Ref()] = doc.Copy()
}

func (f *Fake) Fetch(_ context.Context) (map[resources.Ref]*resources.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	out := make(map[resources.Ref]*resources.Document, len(f.objects))
	for ref, doc := range f.objects {
		out[ref] = doc.Copy()
	}
	return out, nil
}

func (f *Fake) Apply(_ context.Context, doc *resources.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ApplyErr[doc.Ref()]; err != nil {
		return err
	}
	f.objects[doc.Ref()] = doc.Copy()
	f.applies++
	return nil
}

func (f *Fake) Delete(_ context.Context, ref resources.Ref) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.DeleteErr[ref]; err != nil {
		return err
	}
	delete(f.objects, ref)
	f.deletes++
	return nil
}

// Get returns the stored object for ref, or nil.
func (f *Fake) Get(ref resources.Ref) *resources.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[ref].Copy()
}

// Applies returns how many Apply calls succeeded.
func (f *Fake) Applies() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applies
}

// Deletes returns how many Delete calls succeeded.
func (f *Fake) Deletes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes
}
