package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfabric/fabsync/pkg/logging"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

type sink struct {
	mu       sync.Mutex
	bodies   [][]byte
	headers  []http.Header
	statuses []int
}

func (s *sink) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.bodies = append(s.bodies, body)
		s.headers = append(s.headers, r.Header.Clone())
		status := http.StatusOK
		if len(s.statuses) > 0 {
			status = s.statuses[0]
			s.statuses = s.statuses[1:]
		}
		s.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bodies)
}

func (s *sink) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d deliveries, got %d", n, s.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatcherDeliversMatchingEvents(t *testing.T) {
	recv := &sink{}
	srv := httptest.NewServer(recv.handler())
	defer srv.Close()

	d := NewDispatcher(&logging.Nop, WithBackoff(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	reg, err := NewRegistration(srv.URL, "s3cret", []EventType{SyncCompleted})
	require.NoError(t, err)
	d.Register(reg)

	d.SyncStarted(syncop.Snapshot{ID: "op-1", FabricID: "fab-1"})
	d.SyncCompleted(syncop.Snapshot{ID: "op-1", FabricID: "fab-1"})

	recv.waitFor(t, 1)
	require.Equal(t, 1, recv.count())

	var ev Event
	require.NoError(t, json.Unmarshal(recv.bodies[0], &ev))
	assert.Equal(t, SyncCompleted, ev.Type)
	assert.Equal(t, "fab-1", ev.FabricID)
	assert.Equal(t, string(SyncCompleted), recv.headers[0].Get("X-Fabsync-Event"))
	assert.Equal(t, sign("s3cret", recv.bodies[0]), recv.headers[0].Get("X-Fabsync-Signature"))
}

func TestDispatcherRetriesOnNon2xx(t *testing.T) {
	recv := &sink{statuses: []int{http.StatusBadGateway, http.StatusOK}}
	srv := httptest.NewServer(recv.handler())
	defer srv.Close()

	d := NewDispatcher(&logging.Nop, WithBackoff(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	reg, err := NewRegistration(srv.URL, "", nil)
	require.NoError(t, err)
	d.Register(reg)

	d.SyncFailed(syncop.Snapshot{ID: "op-2", FabricID: "fab-1"})

	recv.waitFor(t, 2)
}

func TestRegistrationValidation(t *testing.T) {
	_, err := NewRegistration("", "", nil)
	require.Error(t, err)

	_, err = NewRegistration("http://example.com/hook", "", []EventType{"bogus"})
	require.Error(t, err)

	reg, err := NewRegistration("http://example.com/hook", "", []EventType{ConflictDetected})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.ID)
	assert.True(t, reg.matches(ConflictDetected))
	assert.False(t, reg.matches(SyncStarted))
}

func TestUnregister(t *testing.T) {
	d := NewDispatcher(&logging.Nop)
	reg, err := NewRegistration("http://example.com/hook", "", nil)
	require.NoError(t, err)
	d.Register(reg)
	require.Len(t, d.List(), 1)

	require.NoError(t, d.Unregister(reg.ID))
	assert.Empty(t, d.List())
	assert.Error(t, d.Unregister(reg.ID))
}
