package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SuggestionMetrics holds the Prometheus metrics for the suggestion engine
type SuggestionMetrics struct {
	Batches          *prometheus.CounterVec
	Suggestions      prometheus.Counter
	RateLimitHits    prometheus.Counter
	StepFailures     *prometheus.CounterVec
	BatchLatency     prometheus.Histogram
	CandidatesScored *prometheus.CounterVec
}

// NewSuggestionMetrics registers the metrics with reg. tokens reports the bucket's
// available tokens; it may be nil.
func NewSuggestionMetrics(reg prometheus.Registerer, tokens func() float64) *SuggestionMetrics {
	factory := promauto.With(reg)

	metrics := &SuggestionMetrics{
		// Batches by outcome: persisted, delivered, failed, deferred
		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gumbo_suggestion_batches_total",
			Help: "Total number of suggestion cycles by outcome",
		}, []string{"outcome"}),

		Suggestions: factory.NewCounter(prometheus.CounterOpts{
			Name: "gumbo_suggestions_total",
			Help: "Total number of suggestions produced",
		}),

		RateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "gumbo_rate_limit_hits_total",
			Help: "Total number of suggestion cycles deferred by the rate limiter",
		}),

		// Step failures include those recovered with fallbacks
		StepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gumbo_step_failures_total",
			Help: "Total number of pipeline step failures by step",
		}, []string{"step"}),

		BatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gumbo_batch_duration_seconds",
			Help:    "Suggestion cycle latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}, // up to 2 minutes for LLM calls
		}),

		CandidatesScored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gumbo_candidates_scored_total",
			Help: "Total number of candidates scored by strategy",
		}, []string{"strategy"}),
	}

	if tokens != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "gumbo_rate_limit_tokens_available",
			Help: "Tokens currently available in the suggestion bucket",
		}, tokens)
	}

	return metrics
}

// RecordBatch records a finished cycle
func (m *SuggestionMetrics) RecordBatch(outcome string, suggestions int, seconds float64) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(outcome).Inc()
	m.Suggestions.Add(float64(suggestions))
	m.BatchLatency.Observe(seconds)
}

// RecordRateLimited records a deferred cycle
func (m *SuggestionMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitHits.Inc()
	m.Batches.WithLabelValues("deferred").Inc()
}

// RecordStepFailure records a failed or degraded step
func (m *SuggestionMetrics) RecordStepFailure(step string) {
	if m == nil {
		return
	}
	m.StepFailures.WithLabelValues(step).Inc()
}

// RecordScored records candidates scored by a strategy
func (m *SuggestionMetrics) RecordScored(strategy string, n int) {
	if m == nil {
		return
	}
	m.CandidatesScored.WithLabelValues(strategy).Add(float64(n))
}
