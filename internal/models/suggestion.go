package models

import (
	"sort"
	"time"
)

// Field limits enforced on every persisted suggestion
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MaxRationaleLength   = 500
	MaxCategoryLength    = 100
)

// Suggestion urgency levels
const (
	UrgencyNow      = "now"
	UrgencyToday    = "today"
	UrgencyThisWeek = "this_week"
)

// SuggestionCandidate is a suggestion produced by the completion service before scoring
type SuggestionCandidate struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Rationale    string   `json:"rationale"`
	PriorityHint string   `json:"priority"`               // "high", "medium", "low"
	Urgency      string   `json:"urgency,omitempty"`      // bundle path only
	ActionItems  []string `json:"action_items,omitempty"` // bundle path only
	Evidence     string   `json:"evidence,omitempty"`     // bundle path only
	IsFallback   bool     `json:"is_fallback,omitempty"`  // produced locally after a generation failure
}

// UtilityScores are the per-dimension ratings behind a candidate's utility
type UtilityScores struct {
	Benefit                  float64 `json:"benefit"`             // 0-10
	FalsePositiveCost        float64 `json:"false_positive_cost"` // 0-10
	FalseNegativeCost        float64 `json:"false_negative_cost"` // 0-10
	Decay                    float64 `json:"decay"`               // 0-10
	ProbabilityUseful        float64 `json:"probability_useful"`  // 0-1
	ProbabilityFalsePositive float64 `json:"probability_false_positive"`
	ProbabilityFalseNegative float64 `json:"probability_false_negative"`
	Novelty                  float64 `json:"novelty,omitempty"` // 0-10, priority strategy only
}

// ScoredCandidate is a candidate with its scores. Utility is the value used
// for ranking by the strategy that produced it.
type ScoredCandidate struct {
	Candidate   SuggestionCandidate `json:"candidate"`
	Scores      UtilityScores       `json:"utility_scores"`
	Utility     float64             `json:"expected_utility"`
	Strategy    string              `json:"strategy"`
	Explanation string              `json:"explanation,omitempty"`
	Urgency     string              `json:"urgency,omitempty"`
}

// Suggestion is a persisted, user-facing suggestion
type Suggestion struct {
	ID                   string   `json:"id,omitempty"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Category             string   `json:"category"`
	Rationale            string   `json:"rationale"`
	ExpectedUtility      float64  `json:"expected_utility"`
	ProbabilityUseful    float64  `json:"probability_useful"`
	Urgency              string   `json:"urgency,omitempty"`
	ActionItems          []string `json:"action_items,omitempty"`
	TriggerPropositionID *int64   `json:"trigger_proposition_id,omitempty"`
	BatchID              string   `json:"batch_id"`
	Delivered            bool     `json:"delivered"`
}

// SuggestionBatch is the result of one generation cycle
type SuggestionBatch struct {
	BatchID                 string       `json:"batch_id"`
	Suggestions             []Suggestion `json:"suggestions"`
	TriggerPropositionID    *int64       `json:"trigger_proposition_id"`
	GeneratedAt             time.Time    `json:"generated_at"`
	ProcessingTimeSeconds   float64      `json:"processing_time_seconds"`
	ContextPropositionsUsed int          `json:"context_propositions_used"`
	BundlesUsed             int          `json:"bundles_used,omitempty"`
	ScoringStrategy         string       `json:"scoring_strategy"`
}

// SuggestionIDs returns the ids assigned at persistence time
func (b *SuggestionBatch) SuggestionIDs() []string {
	ids := make([]string, 0, len(b.Suggestions))
	for _, s := range b.Suggestions {
		if s.ID != "" {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// RateLimitStatus is a snapshot of the token bucket
type RateLimitStatus struct {
	TokensAvailable     int       `json:"tokens_available"`
	Capacity            int       `json:"capacity"`
	IsRateLimited       bool      `json:"is_rate_limited"`
	WaitTimeSeconds     float64   `json:"wait_time_seconds"`
	NextRefillAt        time.Time `json:"next_refill_at"`
	RefillRatePerSecond float64   `json:"refill_rate_per_second"`
}

// Engine health states
const (
	EngineHealthy  = "healthy"
	EngineDegraded = "degraded"
	EngineStopped  = "stopped"
)

// EngineMetrics are the running counters reported by the engine
type EngineMetrics struct {
	TotalSuggestions    int64      `json:"total_suggestions"`
	TotalBatches        int64      `json:"total_batches"`
	AvgProcessingTime   float64    `json:"avg_processing_time"`
	RateLimitHits       int64      `json:"rate_limit_hits"`
	PersistenceFailures int64      `json:"persistence_failures"`
	LastBatchAt         *time.Time `json:"last_batch_at,omitempty"`
}

// EngineHealth is the engine health report
type EngineHealth struct {
	Status            string            `json:"status"`
	Metrics           EngineMetrics     `json:"metrics"`
	RateLimitStatus   RateLimitStatus   `json:"rate_limit_status"`
	CompletionHealthy bool              `json:"completion_healthy"`
	UptimeSeconds     float64           `json:"uptime_seconds"`
	LastError         string            `json:"last_error,omitempty"`
	Components        map[string]string `json:"components,omitempty"`
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
