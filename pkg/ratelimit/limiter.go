// Package ratelimit gates login and password-recovery traffic with a
// sliding window over the persisted attempt log. The window is recomputed
// per request from the store, so it survives restarts and is shared across
// replicas; no background sweep is needed. Counts may be approximate under
// concurrency, which is acceptable for a defense-in-depth control.
package ratelimit

import (
	"context"
	"time"
)

// AttemptCounter counts failed attempts newer than since for an identifier
// or an origin address. The auth repository satisfies this interface.
type AttemptCounter interface {
	CountRecentFailedAttempts(ctx context.Context, identifier, ipAddress string, since time.Time) (int64, error)
}

// Limiter blocks a key once its recent failures reach the threshold.
// Successful attempts never reset the window; failures simply age out.
// A reset-on-success would give probes a way to detect valid credentials.
type Limiter struct {
	counter     AttemptCounter
	maxAttempts int64
	window      time.Duration
}

// NewLimiter creates a limiter allowing maxAttempts-1 failures per window
func NewLimiter(counter AttemptCounter, maxAttempts int, window time.Duration) *Limiter {
	return &Limiter{
		counter:     counter,
		maxAttempts: int64(maxAttempts),
		window:      window,
	}
}

// Allowed reports whether a request for identifier from ipAddress may
// proceed. A store failure is returned as an error so the caller can fail
// the request rather than silently skipping the gate.
func (l *Limiter) Allowed(ctx context.Context, identifier, ipAddress string) (bool, error) {
	windowStart := time.Now().Add(-l.window)

	failures, err := l.counter.CountRecentFailedAttempts(ctx, identifier, ipAddress, windowStart)
	if err != nil {
		return false, err
	}
	return failures < l.maxAttempts, nil
}
