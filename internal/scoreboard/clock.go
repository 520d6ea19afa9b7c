// SPDX-License-Identifier: MIT

package scoreboard

import (
	"context"
	"time"

	"github.com/scorecast/scorecast/internal/log"
)

// Clock advances the game timer by one second per tick while the
// timer-running flag is set. It is the only writer of the timer field
// besides explicit updates from the control surface.
type Clock struct {
	store    *Store
	interval time.Duration
}

// NewClock builds a clock driving the given store. interval <= 0
// defaults to one second.
func NewClock(store *Store, interval time.Duration) *Clock {
	if interval <= 0 {
		interval = time.Second
	}
	return &Clock{store: store, interval: interval}
}

// Run ticks until ctx is cancelled. Each tick reads the current state
// and, when the timer is running, applies timer+1 through the store so
// the increment is clamped, serialised and broadcast like any other
// mutation.
func (c *Clock) Run(ctx context.Context) error {
	logger := log.WithComponent("clock")
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	logger.Debug().Str(log.FieldEvent, "clock.start").Msg("game clock started")
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Str(log.FieldEvent, "clock.stop").Msg("game clock stopped")
			return ctx.Err()
		case <-ticker.C:
			cur := c.store.Current()
			if !cur.TimerRunning {
				continue
			}
			next := cur.Timer + 1
			c.store.Apply(Update{Timer: &next})
		}
	}
}
