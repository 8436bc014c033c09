package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitIfPaused_NoPause(t *testing.T) {
	c := New(5 * time.Minute)

	done := make(chan error, 1)
	go func() { done <- c.WaitIfPaused(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused blocked with no active pause")
	}
}

func TestTriggerPause_NeverShortens(t *testing.T) {
	c := New(5 * time.Minute)

	c.TriggerPause("first")
	first := c.PausedUntil()

	// A second trigger during the window re-arms to a later deadline at most.
	c.TriggerPause("second")
	assert.False(t, c.PausedUntil().Before(first))
}

func TestTriggerPause_ForwardOnly(t *testing.T) {
	c := New(time.Hour)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.TriggerPause("a")
	want := base.Add(time.Hour)
	assert.Equal(t, want, c.PausedUntil())

	// Simulated earlier clock must not move the deadline backwards.
	c.now = func() time.Time { return base.Add(-time.Minute) }
	c.TriggerPause("b")
	assert.Equal(t, want, c.PausedUntil())
}

func TestWaitIfPaused_MultipleWaitersShareOnePause(t *testing.T) {
	c := New(50 * time.Millisecond)
	c.TriggerPause("burst")

	const workers = 8
	var wg sync.WaitGroup
	start := time.Now()
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.WaitIfPaused(context.Background())
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	for _, err := range errs {
		require.NoError(t, err)
	}
	// All workers resume once the single pause expires, not N pauses later.
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestWaitIfPaused_ContextCancelled(t *testing.T) {
	c := New(time.Hour)
	c.TriggerPause("long")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.WaitIfPaused(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
