package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port        string
	DatabaseURL string // path to the proposition SQLite database
	MongoURI    string // optional suggestion archive; SQLite is used when empty
	RedisURL    string // optional delivery channel; batches stop at Persisted when empty

	SuggestionChannel string
	UserName          string // how bundle prompts refer to the user

	// Completion service (OpenAI-compatible)
	CompletionBaseURL   string
	CompletionAPIKey    string
	CompletionModel     string
	CompletionTimeout   time.Duration
	CompletionMaxTokens int

	// Rate limiting
	RateLimitCapacity     int
	RateLimitRefillPeriod time.Duration // time to earn one token

	// Scoring strategy for the trigger path: "expected_utility" or "priority"
	ScoringStrategy    string
	BundleAwareTrigger bool

	// Bundle sweep schedule (cron expression, empty disables)
	SweepCron string

	// Suggestion batches older than SuggestionRetention are pruned on RetentionCron
	SuggestionRetention time.Duration
	RetentionCron       string

	// Optional YAML tuning file, hot-reloaded
	TuningFile string

	HealthFailureThreshold int
	HealthCooldown         time.Duration

	// Admin endpoints (rate-limit reset) are only mounted when enabled
	AdminEndpoints bool
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3001"),
		DatabaseURL: getEnv("DATABASE_URL", "gumbo.db"),
		MongoURI:    getEnv("MONGODB_URI", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		SuggestionChannel: getEnv("SUGGESTION_CHANNEL", "gumbo:suggestions"),
		UserName:          getEnv("GUMBO_USER_NAME", "User"),

		CompletionBaseURL:   strings.TrimRight(getEnv("COMPLETION_BASE_URL", "https://api.openai.com/v1"), "/"),
		CompletionAPIKey:    getEnv("COMPLETION_API_KEY", ""),
		CompletionModel:     getEnv("COMPLETION_MODEL", "gpt-4o-mini"),
		CompletionTimeout:   getDurationEnv("COMPLETION_TIMEOUT", 30*time.Second),
		CompletionMaxTokens: getIntEnv("COMPLETION_MAX_TOKENS", 1000),

		RateLimitCapacity:     getIntEnv("SUGGESTION_RATE_CAPACITY", 2),
		RateLimitRefillPeriod: getDurationEnv("SUGGESTION_RATE_REFILL_PERIOD", 60*time.Second),

		ScoringStrategy:    strings.ToLower(getEnv("SUGGESTION_SCORING_STRATEGY", "expected_utility")),
		BundleAwareTrigger: getBoolEnv("SUGGESTION_BUNDLE_AWARE_TRIGGER", false),

		SweepCron:  getEnv("SUGGESTION_SWEEP_CRON", "*/30 * * * *"),
		TuningFile: getEnv("SUGGESTION_TUNING_FILE", "suggestions.yaml"),

		SuggestionRetention: getDurationEnv("SUGGESTION_RETENTION", 720*time.Hour),
		RetentionCron:       getEnv("SUGGESTION_RETENTION_CRON", "0 3 * * *"),

		HealthFailureThreshold: getIntEnv("HEALTH_FAILURE_THRESHOLD", 3),
		HealthCooldown:         getDurationEnv("HEALTH_COOLDOWN", 5*time.Minute),

		AdminEndpoints: getBoolEnv("SUGGESTION_ADMIN_ENDPOINTS", true),
	}
}

// RefillPerSecond converts the refill period into a token rate
func (c *Config) RefillPerSecond() float64 {
	if c.RateLimitRefillPeriod <= 0 {
		return 0
	}
	return 1 / c.RateLimitRefillPeriod.Seconds()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("45s") or a bare number of seconds
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}
