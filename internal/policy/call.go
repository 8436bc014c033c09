// Package policy executes single inference requests under the worker's
// timeout, retry, and skip rules. A hard cap on wall time per call and a
// two-strike rule for throttling keep one bad analysis window from stalling
// the whole job, while still permitting one cooperative global pause.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/childlens/behavior-worker/internal/ratelimit"
)

// SkipError signals that a single pipeline unit (one detection segment or one
// validation span) exhausted its policy budget. The stage decides whether
// skipping the unit is fatal; for detection and validation it is not.
type SkipError struct {
	Label  string
	Reason string
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("skipping %s: %s: %v", e.Label, e.Reason, e.Err)
	}
	return fmt.Sprintf("skipping %s: %s", e.Label, e.Reason)
}

func (e *SkipError) Unwrap() error { return e.Err }

// IsSkip reports whether err is (or wraps) a SkipError.
func IsSkip(err error) bool {
	var s *SkipError
	return errors.As(err, &s)
}

// errorKind classifies a backend error for retry handling.
type errorKind int

const (
	kindFatal errorKind = iota
	kindRateLimit
	kindTransient
)

// classify inspects the backend error. The genai SDK surfaces HTTP status in
// APIError.Code; string matching covers transports that only carry a message.
func classify(err error) errorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return kindTransient
	}

	code := 0
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}
	msg := strings.ToLower(err.Error())

	switch {
	case code == 429,
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "429"):
		return kindRateLimit
	case code >= 500,
		strings.Contains(msg, "internal"),
		strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "timeout"):
		return kindTransient
	default:
		return kindFatal
	}
}

// Caller runs thunks under the policy rules. Each call owns its own strike
// and retry counters; the worker pool never re-enqueues a failed unit.
type Caller struct {
	Limiter             *ratelimit.Controller
	Timeout             time.Duration
	RetryInterval       time.Duration
	MaxTransientRetries int

	sleep func(context.Context, time.Duration) error
}

// NewCaller wires a Caller to the shared rate-limit controller.
func NewCaller(limiter *ratelimit.Controller, timeout, retryInterval time.Duration, maxRetries int) *Caller {
	return &Caller{
		Limiter:             limiter,
		Timeout:             timeout,
		RetryInterval:       retryInterval,
		MaxTransientRetries: maxRetries,
		sleep:               sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes one remote inference under the policy contract:
//
//  1. Before each attempt, wait on the shared rate-limit barrier.
//  2. Run the thunk under the hard per-attempt timeout.
//  3. Rate-limit errors: trigger the global pause once and retry; a second
//     strike yields a SkipError.
//  4. Transient errors: wait the fixed retry interval and retry, up to the
//     transient budget; then yield a SkipError with the last error.
//  5. Any other error yields a SkipError immediately.
func (c *Caller) Do(ctx context.Context, label string, thunk func(context.Context) (string, error)) (string, error) {
	rateLimitStrikes := 0
	transientRetries := 0

	for {
		if err := c.Limiter.WaitIfPaused(ctx); err != nil {
			return "", fmt.Errorf("waiting on rate-limit barrier: %w", err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		out, err := thunk(attemptCtx)
		cancel()

		if err == nil {
			return out, nil
		}

		switch classify(err) {
		case kindRateLimit:
			rateLimitStrikes++
			if rateLimitStrikes >= 2 {
				log.Warn().Str("label", label).Err(err).Msg("Second rate-limit strike, skipping unit")
				return "", &SkipError{Label: label, Reason: "rate limited twice", Err: err}
			}
			c.Limiter.TriggerPause(label)

		case kindTransient:
			transientRetries++
			if transientRetries > c.MaxTransientRetries {
				log.Warn().
					Str("label", label).
					Int("retries", transientRetries-1).
					Err(err).
					Msg("Transient retry budget exhausted, skipping unit")
				return "", &SkipError{Label: label, Reason: "transient retries exhausted", Err: err}
			}
			log.Debug().
				Str("label", label).
				Int("attempt", transientRetries).
				Dur("retry_in", c.RetryInterval).
				Err(err).
				Msg("Transient backend error, retrying")
			if serr := c.sleep(ctx, c.RetryInterval); serr != nil {
				return "", fmt.Errorf("waiting for retry: %w", serr)
			}

		default:
			return "", &SkipError{Label: label, Reason: "non-retryable backend error", Err: err}
		}
	}
}
