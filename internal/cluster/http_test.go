package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/logging"
	"github.com/netfabric/fabsync/pkg/resources"
)

func newHTTPAdapter(t *testing.T, handler http.Handler) Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := &fabrics.Fabric{
		ID:           "fab-1",
		RepoURL:      "https://git.example.com/x.git",
		ClusterURL:   srv.URL,
		ClusterToken: "cluster-token",
	}
	return NewHTTP(f, &logging.Nop, WithRetries(2), WithBackoff(1))
}

func TestFetchParsesResourceList(t *testing.T) {
	adapter := newHTTPAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer cluster-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v1/resources", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"kind": "VPC", "name": "prod", "spec": map[string]any{"cidr": "10.0.0.0/16"}},
				{"kind": "Subnet", "name": "web", "spec": map[string]any{"cidr": "10.0.1.0/24"}},
			},
		})
	}))

	objects, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 2)

	vpc := objects[resources.Ref{Kind: resources.KindVPC, Name: "prod"}]
	require.NotNil(t, vpc)
	assert.Equal(t, "10.0.0.0/16", vpc.Spec["cidr"])
}

func TestApplyPermanentRejection(t *testing.T) {
	adapter := newHTTPAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "cidr overlaps existing vpc"})
	}))

	err := adapter.Apply(context.Background(), &resources.Document{
		Kind: resources.KindVPC,
		Name: "prod",
		Spec: map[string]any{"cidr": "10.0.0.0/16"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsClusterRejection(err))
	assert.False(t, errors.IsTransient(err))
	assert.Contains(t, err.Error(), "cidr overlaps existing vpc")
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	adapter := newHTTPAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	err := adapter.Apply(context.Background(), &resources.Document{
		Kind: resources.KindVPC,
		Name: "prod",
		Spec: map[string]any{"cidr": "10.0.0.0/16"},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRateLimitSurfacesAfterRetries(t *testing.T) {
	adapter := newHTTPAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := adapter.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsRateLimited(err))
	assert.True(t, errors.IsTransient(err))
}

func TestDeleteAbsentResourceIsNoError(t *testing.T) {
	adapter := newHTTPAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/resources/vpc/gone", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))

	err := adapter.Delete(context.Background(), resources.Ref{Kind: resources.KindVPC, Name: "gone"})
	require.NoError(t, err)
}

func TestFakeAdapter(t *testing.T) {
	ctx := context.Background()
	fake := NewFake()
	doc := &resources.Document{Kind: resources.KindVPC, Name: "prod", Spec: map[string]any{"cidr": "10.0.0.0/16"}}

	require.NoError(t, fake.Apply(ctx, doc))
	objects, err := fake.Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, objects, 1)

	// Mutating the fetched copy does not leak into the fake.
	objects[doc.Ref()].Spec["cidr"] = "changed"
	assert.Equal(t, "10.0.0.0/16", fake.Get(doc.Ref()).Spec["cidr"])

	require.NoError(t, fake.Delete(ctx, doc.Ref()))
	objects, err = fake.Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, objects)
}
