// Package webhook delivers sync and conflict events to registered HTTP
// endpoints. Deliveries are asynchronous: events are queued on a
// buffered channel and a dispatch loop posts them to every matching
// registration, retrying with bounded backoff on non-2xx responses.
package webhook

import (
	"time"

	"github.com/google/uuid"

	"github.com/netfabric/fabsync/pkg/errors"
)

// EventType identifies an event a registration can subscribe to.
type EventType string

const (
	SyncStarted      EventType = "sync_started"
	SyncCompleted    EventType = "sync_completed"
	SyncFailed       EventType = "sync_failed"
	ConflictDetected EventType = "conflict_detected"
	ConflictResolved EventType = "conflict_resolved"
)

// Valid reports whether the event type is one a caller may subscribe to.
func (t EventType) Valid() bool {
	switch t {
	case SyncStarted, SyncCompleted, SyncFailed, ConflictDetected, ConflictResolved:
		return true
	}
	return false
}

// Event is the delivery payload. Data carries the operation or conflict
// snapshot that triggered it.
type Event struct {
	Type      EventType `json:"type"`
	FabricID  string    `json:"fabric_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Registration is one subscribed endpoint. Events is the filter: empty
// means all event types.
type Registration struct {
	ID        string      `json:"id"`
	URL       string      `json:"url"`
	Secret    string      `json:"-"`
	Events    []EventType `json:"events,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewRegistration validates and builds a registration.
func NewRegistration(url, secret string, events []EventType) (*Registration, error) {
	if url == "" {
		return nil, errors.NewValidationError("url", url, "webhook URL is required")
	}
	for _, e := range events {
		if !e.Valid() {
			return nil, errors.NewValidationError("events", string(e), "unknown event type")
		}
	}
	return &Registration{
		ID:        uuid.NewString(),
		URL:       url,
		Secret:    secret,
		Events:    events,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// matches reports whether the registration's filter admits the event.
func (r *Registration) matches(t EventType) bool {
	if len(r.Events) == 0 {
		return true
	}
	for _, e := range r.Events {
		if e == t {
			return true
		}
	}
	return false
}
