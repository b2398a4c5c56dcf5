package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedAttempt struct {
	identifier string
	ipAddress  string
	success    bool
	at         time.Time
}

// fakeCounter implements AttemptCounter over a fixed slice of attempts
type fakeCounter struct {
	attempts []recordedAttempt
	err      error
}

func (f *fakeCounter) CountRecentFailedAttempts(ctx context.Context, identifier, ipAddress string, since time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var count int64
	for _, a := range f.attempts {
		if a.success || !a.at.After(since) {
			continue
		}
		if a.identifier == identifier || a.ipAddress == ipAddress {
			count++
		}
	}
	return count, nil
}

func TestLimiterAllowed(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("AllowsBelowThreshold", func(t *testing.T) {
		counter := &fakeCounter{}
		for i := 0; i < 4; i++ {
			counter.attempts = append(counter.attempts, recordedAttempt{
				identifier: "alice@example.com", ipAddress: "10.0.0.1", at: now,
			})
		}

		limiter := NewLimiter(counter, 5, 15*time.Minute)
		allowed, err := limiter.Allowed(ctx, "alice@example.com", "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("BlocksAtThreshold", func(t *testing.T) {
		counter := &fakeCounter{}
		for i := 0; i < 5; i++ {
			counter.attempts = append(counter.attempts, recordedAttempt{
				identifier: "alice@example.com", ipAddress: "10.0.0.1", at: now,
			})
		}

		limiter := NewLimiter(counter, 5, 15*time.Minute)
		allowed, err := limiter.Allowed(ctx, "alice@example.com", "10.0.0.1")
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("BlocksByOriginAddressAlone", func(t *testing.T) {
		counter := &fakeCounter{}
		for i := 0; i < 5; i++ {
			counter.attempts = append(counter.attempts, recordedAttempt{
				identifier: "someone-else", ipAddress: "10.0.0.1", at: now,
			})
		}

		limiter := NewLimiter(counter, 5, 15*time.Minute)
		allowed, err := limiter.Allowed(ctx, "alice@example.com", "10.0.0.1")
		require.NoError(t, err)
		assert.False(t, allowed, "failures from the same address count against any identifier")
	})

	t.Run("SuccessesDoNotCount", func(t *testing.T) {
		counter := &fakeCounter{}
		for i := 0; i < 10; i++ {
			counter.attempts = append(counter.attempts, recordedAttempt{
				identifier: "alice@example.com", ipAddress: "10.0.0.1", success: true, at: now,
			})
		}

		limiter := NewLimiter(counter, 5, 15*time.Minute)
		allowed, err := limiter.Allowed(ctx, "alice@example.com", "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("FailuresAgeOutOfWindow", func(t *testing.T) {
		counter := &fakeCounter{}
		// Four old failures outside the window, one recent inside it.
		for i := 0; i < 4; i++ {
			counter.attempts = append(counter.attempts, recordedAttempt{
				identifier: "alice@example.com", ipAddress: "10.0.0.1", at: now.Add(-20 * time.Minute),
			})
		}
		counter.attempts = append(counter.attempts, recordedAttempt{
			identifier: "alice@example.com", ipAddress: "10.0.0.1", at: now,
		})

		limiter := NewLimiter(counter, 5, 15*time.Minute)
		allowed, err := limiter.Allowed(ctx, "alice@example.com", "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "aged-out failures must not block")
	})

	t.Run("StoreErrorPropagates", func(t *testing.T) {
		counter := &fakeCounter{err: assert.AnError}

		limiter := NewLimiter(counter, 5, 15*time.Minute)
		allowed, err := limiter.Allowed(ctx, "alice@example.com", "10.0.0.1")
		assert.Error(t, err)
		assert.False(t, allowed)
	})
}
