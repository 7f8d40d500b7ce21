package fabsync

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/netfabric/fabsync/pkg/errors"
)

// ScheduledSyncOn begins periodic reconciliation of every registered
// fabric at the configured interval. Fabrics with an operation already
// running are skipped; the single-active rule is never violated.
func (c *client) ScheduledSyncOn() error {
	if c.syncTicker != nil {
		return nil // already running
	}

	// Recreate the stop channel in case syncs were previously stopped.
	select {
	case <-c.stopCh:
		c.stopCh = make(chan struct{})
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.syncCancel = cancel
	c.syncTicker = time.NewTicker(c.options.syncInterval)

	ticker := c.syncTicker
	stop := c.stopCh
	go func() {
		for {
			select {
			case <-ticker.C:
				c.syncAll(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	c.logger.Info().
		Dur("interval", c.options.syncInterval).
		Msg("scheduled sync enabled")
	return nil
}

// ScheduledSyncOff stops periodic reconciliation. Operations already
// running are left to finish.
func (c *client) ScheduledSyncOff() error {
	if c.syncTicker == nil {
		return nil // not running
	}

	c.syncTicker.Stop()
	c.syncTicker = nil
	if c.syncCancel != nil {
		c.syncCancel()
		c.syncCancel = nil
	}
	close(c.stopCh)

	c.logger.Info().Msg("scheduled sync disabled")
	return nil
}

// syncAll starts a bidirectional sync on every fabric in the registry.
func (c *client) syncAll(ctx context.Context) {
	fabs, err := c.reg.ListFabrics(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("scheduled sync: listing fabrics failed")
		return
	}

	for _, f := range fabs {
		snap, err := c.orch.Start(ctx, f.ID, nil)
		switch {
		case stderrors.Is(err, errors.ErrSyncInProgress):
			c.logger.Debug().
				Str("fabric", f.ID).
				Msg("scheduled sync: operation already running, skipping")
		case err != nil:
			c.logger.Error().
				Err(err).
				Str("fabric", f.ID).
				Msg("scheduled sync: start failed")
		default:
			c.logger.Info().
				Str("fabric", f.ID).
				Str("operation", snap.ID).
				Msg("scheduled sync started")
		}
	}
}
