package services

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSuggestionRateLimiter_DefaultBurstThenDefer(t *testing.T) {
	clock := newFakeClock()
	rl := newSuggestionRateLimiterAt(2, 1.0/60, clock.Now)

	assert.True(t, rl.Acquire(1), "first acquire at t=0")
	clock.Advance(time.Second)
	assert.True(t, rl.Acquire(1), "second acquire at t=1s")
	clock.Advance(time.Second)
	assert.False(t, rl.Acquire(1), "third acquire at t=2s is deferred")

	wait := rl.WaitTime()
	assert.InDelta(t, 58, wait.Seconds(), 0.01)

	status := rl.Status()
	assert.True(t, status.IsRateLimited)
	assert.Equal(t, 0, status.TokensAvailable)
	assert.Equal(t, 2, status.Capacity)
	assert.InDelta(t, 58, status.WaitTimeSeconds, 0.01)

	clock.Advance(59 * time.Second) // t=61s
	assert.True(t, rl.Acquire(1), "acquire after refill at t=61s")
}

func TestSuggestionRateLimiter_AcquireAfterExactWait(t *testing.T) {
	rates := []float64{1.0 / 60, 1.0 / 7, 0.3, 3}

	for _, r := range rates {
		clock := newFakeClock()
		rl := newSuggestionRateLimiterAt(2, r, clock.Now)
		require.True(t, rl.Acquire(2))

		clock.Advance(123 * time.Millisecond)
		wait := rl.WaitTime()
		require.Greater(t, wait, time.Duration(0))

		clock.Advance(wait)
		assert.True(t, rl.Acquire(1), "refill rate %v: acquire after waiting %v", r, wait)
	}
}

func TestSuggestionRateLimiter_TokenBounds(t *testing.T) {
	clock := newFakeClock()
	rl := newSuggestionRateLimiterAt(3, 0.5, clock.Now)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		switch rng.Intn(3) {
		case 0:
			rl.Acquire(1 + rng.Intn(3))
		case 1:
			clock.Advance(time.Duration(rng.Intn(5000)) * time.Millisecond)
		case 2:
			if rng.Intn(20) == 0 {
				rl.Reset()
			}
		}

		status := rl.Status()
		assert.GreaterOrEqual(t, status.TokensAvailable, 0)
		assert.LessOrEqual(t, status.TokensAvailable, 3)
		if status.TokensAvailable >= 1 {
			assert.Zero(t, rl.WaitTime())
		}
	}
}

func TestSuggestionRateLimiter_ResetAndEdgeCases(t *testing.T) {
	clock := newFakeClock()
	rl := newSuggestionRateLimiterAt(2, 1.0/60, clock.Now)

	assert.True(t, rl.Acquire(0), "zero tokens always succeeds")
	assert.False(t, rl.Acquire(3), "more than capacity never succeeds")
	assert.True(t, rl.Acquire(2))
	assert.False(t, rl.Acquire(1))

	rl.Reset()
	status := rl.Status()
	assert.Equal(t, 2, status.TokensAvailable)
	assert.False(t, status.IsRateLimited)
	assert.Zero(t, status.WaitTimeSeconds)
	assert.Equal(t, clock.Now(), status.NextRefillAt)
}

func TestSuggestionRateLimiter_NextRefillAt(t *testing.T) {
	clock := newFakeClock()
	rl := newSuggestionRateLimiterAt(2, 1.0/60, clock.Now)
	require.True(t, rl.Acquire(1))

	status := rl.Status()
	assert.Equal(t, 1, status.TokensAvailable)
	assert.False(t, status.IsRateLimited)
	assert.InDelta(t, 60, status.NextRefillAt.Sub(clock.Now()).Seconds(), 0.01)
}

func TestSuggestionRateLimiter_InvalidConfigFallsBack(t *testing.T) {
	rl := NewSuggestionRateLimiter(0, -1)
	status := rl.Status()
	assert.Equal(t, 2, status.Capacity)
	assert.InDelta(t, 1.0/60, status.RefillRatePerSecond, 1e-12)
}

func TestSuggestionRateLimiter_ConcurrentAcquire(t *testing.T) {
	clock := newFakeClock()
	rl := newSuggestionRateLimiterAt(2, 1.0/60, clock.Now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Acquire(1) {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, granted)
}
