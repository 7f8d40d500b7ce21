package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/reconcile"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

const (
	defaultRetries = 3
	defaultBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
	queueSize      = 256
)

// Dispatcher holds webhook registrations and fans events out to them.
// It implements the orchestrator's event sink, so wiring it into an
// orchestrator is enough to make every sync and conflict event
// deliverable.
type Dispatcher struct {
	mu     sync.RWMutex
	regs   map[string]*Registration
	queue  chan Event
	client *http.Client
	logger *zerolog.Logger

	retries int
	backoff time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClient overrides the HTTP client used for deliveries.
func WithClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		d.client = c
	}
}

// WithRetries sets how many delivery attempts are made per endpoint.
func WithRetries(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.retries = n
	}
}

// WithBackoff sets the initial retry backoff.
func WithBackoff(b time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.backoff = b
	}
}

// NewDispatcher creates a Dispatcher. Run must be started for queued
// events to be delivered.
func NewDispatcher(logger *zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		regs:    make(map[string]*Registration),
		queue:   make(chan Event, queueSize),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		retries: defaultRetries,
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a registration.
func (d *Dispatcher) Register(reg *Registration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[reg.ID] = reg
	d.logger.Info().
		Str("webhook", reg.ID).
		Str("url", reg.URL).
		Msg("webhook registered")
}

// Unregister removes a registration. Unknown ids return an error.
func (d *Dispatcher) Unregister(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.regs[id]; !ok {
		return errors.NewNotFoundError("webhook", id)
	}
	delete(d.regs, id)
	return nil
}

// List returns all registrations sorted by creation time.
func (d *Dispatcher) List() []*Registration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Registration, 0, len(d.regs))
	for _, r := range d.regs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Run consumes the queue until the context is cancelled. Should be
// called in a goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("webhook dispatcher shut down")
			return
		case ev := <-d.queue:
			d.mu.RLock()
			targets := make([]*Registration, 0, len(d.regs))
			for _, r := range d.regs {
				if r.matches(ev.Type) {
					targets = append(targets, r)
				}
			}
			d.mu.RUnlock()

			for _, reg := range targets {
				go d.deliver(ctx, reg, ev)
			}
		}
	}
}

// publish queues an event, dropping it when the queue is full.
func (d *Dispatcher) publish(t EventType, fabricID string, data any) {
	ev := Event{
		Type:      t,
		FabricID:  fabricID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn().
			Str("event", string(t)).
			Msg("webhook queue full, event dropped")
	}
}

// deliver posts one event to one endpoint, retrying with bounded
// exponential backoff on transport errors and non-2xx responses.
func (d *Dispatcher) deliver(ctx context.Context, reg *Registration, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error().Err(err).Str("webhook", reg.ID).Msg("could not encode webhook payload")
		return
	}

	backoff := d.backoff
	for attempt := 1; attempt <= d.retries; attempt++ {
		if d.attempt(ctx, reg, ev, body) {
			return
		}
		if attempt == d.retries {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	d.logger.Warn().
		Str("webhook", reg.ID).
		Str("event", string(ev.Type)).
		Int("attempts", d.retries).
		Msg("webhook delivery gave up")
}

func (d *Dispatcher) attempt(ctx context.Context, reg *Registration, ev Event, body []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.URL, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fabsync-Event", string(ev.Type))
	if reg.Secret != "" {
		req.Header.Set("X-Fabsync-Signature", sign(reg.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debug().Err(err).Str("webhook", reg.ID).Msg("webhook delivery attempt failed")
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// sign computes the hex HMAC-SHA256 of the payload.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SyncStarted implements the orchestrator event sink.
func (d *Dispatcher) SyncStarted(snap syncop.Snapshot) {
	d.publish(SyncStarted, snap.FabricID, snap)
}

// SyncCompleted implements the orchestrator event sink.
func (d *Dispatcher) SyncCompleted(snap syncop.Snapshot) {
	d.publish(SyncCompleted, snap.FabricID, snap)
}

// SyncFailed implements the orchestrator event sink.
func (d *Dispatcher) SyncFailed(snap syncop.Snapshot) {
	d.publish(SyncFailed, snap.FabricID, snap)
}

// ConflictDetected implements the orchestrator event sink.
func (d *Dispatcher) ConflictDetected(c *reconcile.Conflict) {
	d.publish(ConflictDetected, c.FabricID, c)
}

// ConflictResolved implements the orchestrator event sink.
func (d *Dispatcher) ConflictResolved(c *reconcile.Conflict) {
	d.publish(ConflictResolved, c.FabricID, c)
}
