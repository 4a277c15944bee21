package health

import (
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Completion API bodies that mean "stop calling for a while" rather than "broken"
var quotaPatterns = []string{
	"quota exceeded",
	"quota_exceeded",
	"insufficient_quota",
	"rate limit",
	"rate_limit_exceeded",
	"too many requests",
	"tokens per minute",
	"requests per minute",
	"daily limit",
	"billing",
	"overloaded",
}

// "Please try again in 6.5s", "retry after 2m0s"
var retryHintPattern = regexp.MustCompile(`(?:try again in|retry after)\s+((?:\d+(?:\.\d+)?(?:ms|s|m|h))+)`)

const (
	longCooldown      = 24 * time.Hour
	perMinuteCooldown = 5 * time.Minute
	overloadCooldown  = time.Minute
	defaultCooldown   = time.Hour
)

// IsQuotaError reports whether a completion failure is quota exhaustion,
// rate limiting, or provider overload
func IsQuotaError(statusCode int, responseBody string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}

	lowerBody := strings.ToLower(responseBody)
	for _, pattern := range quotaPatterns {
		if strings.Contains(lowerBody, pattern) {
			return true
		}
	}
	return false
}

// ParseCooldownDuration picks how long to stop calling a component after a quota error.
// An explicit retry hint in the body wins, capped at the per-minute cooldown.
func ParseCooldownDuration(statusCode int, responseBody string) time.Duration {
	lowerBody := strings.ToLower(responseBody)

	if strings.Contains(lowerBody, "daily limit") ||
		strings.Contains(lowerBody, "billing") ||
		strings.Contains(lowerBody, "insufficient_quota") {
		return longCooldown
	}

	if match := retryHintPattern.FindStringSubmatch(lowerBody); match != nil {
		if hint, err := time.ParseDuration(match[1]); err == nil && hint > 0 {
			return min(hint, perMinuteCooldown)
		}
	}

	if strings.Contains(lowerBody, "overloaded") {
		return overloadCooldown
	}

	if statusCode == http.StatusTooManyRequests ||
		strings.Contains(lowerBody, "tokens per minute") ||
		strings.Contains(lowerBody, "requests per minute") {
		return perMinuteCooldown
	}

	return defaultCooldown
}
