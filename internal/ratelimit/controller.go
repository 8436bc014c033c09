// Package ratelimit implements the process-wide pause barrier used when the
// inference backend signals throttling. A single 429 anywhere backs off every
// in-flight worker until the pause window passes, without each worker
// independently re-triggering the full timer.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Controller is a shared pause barrier. The pause deadline may only move
// forward; TriggerPause never shortens an existing pause.
type Controller struct {
	mu         sync.Mutex
	pauseUntil time.Time
	pause      time.Duration

	now func() time.Time
}

// New creates a Controller that pauses for the given duration on throttling.
func New(pause time.Duration) *Controller {
	return &Controller{pause: pause, now: time.Now}
}

// TriggerPause extends the pause deadline to now + the configured pause
// duration, unless an equal or later deadline is already set.
func (c *Controller) TriggerPause(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidate := c.now().Add(c.pause)
	if candidate.After(c.pauseUntil) {
		c.pauseUntil = candidate
		log.Warn().
			Str("label", label).
			Dur("pause", c.pause).
			Time("pause_until", c.pauseUntil).
			Msg("Rate limit hit, pausing all inference workers")
		return
	}
	log.Debug().Str("label", label).Msg("Rate limit hit during an active pause, deadline unchanged")
}

// WaitIfPaused blocks until the pause deadline has passed or ctx is done.
// Concurrent waiters each sleep out the same shared deadline; none of them
// re-arm it.
func (c *Controller) WaitIfPaused(ctx context.Context) error {
	for {
		c.mu.Lock()
		remaining := c.pauseUntil.Sub(c.now())
		c.mu.Unlock()

		if remaining <= 0 {
			return nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check: the deadline may have been extended while sleeping.
		}
	}
}

// PausedUntil returns the current pause deadline (zero when unpaused).
func (c *Controller) PausedUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseUntil
}
