package services

import (
	"log"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gumbo/internal/models"
)

const (
	defaultSuggestionCapacity        = 2
	defaultSuggestionRefillPerSecond = 1.0 / 60 // one token per minute
)

// SuggestionRateLimiter is the token bucket gating suggestion batches.
// Refill is computed lazily from elapsed time on every call; there is no background ticker.
type SuggestionRateLimiter struct {
	mu              sync.Mutex
	limiter         *rate.Limiter
	capacity        int
	refillPerSecond float64
	now             func() time.Time
}

// NewSuggestionRateLimiter creates a full bucket. Non-positive values fall back to
// capacity 2 and one token per 60 seconds.
func NewSuggestionRateLimiter(capacity int, refillPerSecond float64) *SuggestionRateLimiter {
	return newSuggestionRateLimiterAt(capacity, refillPerSecond, time.Now)
}

func newSuggestionRateLimiterAt(capacity int, refillPerSecond float64, now func() time.Time) *SuggestionRateLimiter {
	if capacity <= 0 {
		capacity = defaultSuggestionCapacity
	}
	if refillPerSecond <= 0 || math.IsNaN(refillPerSecond) || math.IsInf(refillPerSecond, 0) {
		refillPerSecond = defaultSuggestionRefillPerSecond
	}

	rl := &SuggestionRateLimiter{
		capacity:        capacity,
		refillPerSecond: refillPerSecond,
		now:             now,
	}
	rl.limiter = rl.newFullLimiter()

	log.Printf("🛡️  [RATE-LIMIT] Suggestion bucket: capacity=%d, refill=%.4f tokens/s", capacity, refillPerSecond)
	return rl
}

func (rl *SuggestionRateLimiter) newFullLimiter() *rate.Limiter {
	l := rate.NewLimiter(rate.Limit(rl.refillPerSecond), rl.capacity)
	// Anchor the bucket to the injected clock so lazy refill is computed from it
	l.SetBurstAt(rl.now(), rl.capacity)
	return l
}

// Acquire takes n tokens if available. It never blocks.
func (rl *SuggestionRateLimiter) Acquire(n int) bool {
	if n <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.limiter.AllowN(rl.now(), n)
}

// WaitTime returns how long until at least one token is available (zero when one is)
func (rl *SuggestionRateLimiter) WaitTime() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.waitForTokensLocked(1, rl.now())
}

// Status returns a snapshot of the bucket
func (rl *SuggestionRateLimiter) Status() models.RateLimitStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	tokens := rl.tokensLocked(now)

	status := models.RateLimitStatus{
		TokensAvailable:     int(math.Floor(tokens)),
		Capacity:            rl.capacity,
		IsRateLimited:       tokens < 1,
		RefillRatePerSecond: rl.refillPerSecond,
		NextRefillAt:        now,
	}

	wait := rl.waitForTokensLocked(1, now)
	status.WaitTimeSeconds = wait.Seconds()

	if tokens < float64(rl.capacity) {
		// Time until the next whole token lands in the bucket
		next := math.Floor(tokens) + 1
		status.NextRefillAt = now.Add(rl.waitForTokensLocked(next, now))
	}

	return status
}

// Reset refills the bucket to capacity
func (rl *SuggestionRateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.limiter = rl.newFullLimiter()
	log.Printf("🔄 [RATE-LIMIT] Suggestion bucket reset to %d tokens", rl.capacity)
}

// tokensLocked returns the clamped token count at now
func (rl *SuggestionRateLimiter) tokensLocked(now time.Time) float64 {
	tokens := rl.limiter.TokensAt(now)
	return math.Max(0, math.Min(tokens, float64(rl.capacity)))
}

// waitForTokensLocked returns the time until the bucket holds target tokens,
// rounded up to the millisecond so that acquiring after the wait always succeeds.
func (rl *SuggestionRateLimiter) waitForTokensLocked(target float64, now time.Time) time.Duration {
	tokens := rl.tokensLocked(now)
	if tokens >= target {
		return 0
	}
	seconds := (target - tokens) / rl.refillPerSecond
	wait := time.Duration(math.Ceil(seconds*1000)) * time.Millisecond
	// Absorb float rounding in the limiter's own refill arithmetic
	for rl.limiter.TokensAt(now.Add(wait)) < target {
		wait += time.Millisecond
	}
	return wait
}
