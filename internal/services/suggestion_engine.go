package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"gumbo/internal/config"
	"gumbo/internal/health"
	"gumbo/internal/logging"
	"gumbo/internal/models"
)

// EngineState is a state of one suggestion cycle
type EngineState string

const (
	StateIdle                EngineState = "idle"
	StateRateChecked         EngineState = "rate_checked"
	StateContextRetrieved    EngineState = "context_retrieved"
	StateCandidatesGenerated EngineState = "candidates_generated"
	StateScored              EngineState = "scored"
	StateDeduplicated        EngineState = "deduplicated"
	StatePersisted           EngineState = "persisted"
	StateDelivered           EngineState = "delivered"
	StateDeferred            EngineState = "deferred"
	StateFailed              EngineState = "failed"
)

// Pipeline steps, used for FailedStep and the step failure metric
const (
	StepLifecycle     = "lifecycle"
	StepTriggerLookup = "trigger_lookup"
	StepRetrieval     = "retrieval"
	StepBundling      = "bundling"
	StepGeneration    = "generation"
	StepScoring       = "scoring"
	StepPersistence   = "persistence"
	StepDelivery      = "delivery"
)

// Batch outcomes for the batches metric
const (
	outcomeDelivered = "delivered"
	outcomePersisted = "persisted"
	outcomeFailed    = "failed"
)

// TriggerResult is the terminal outcome of a cycle. Batch is set whenever one was
// assembled, including when persistence failed.
type TriggerResult struct {
	State       EngineState             `json:"state"`
	FailedStep  string                  `json:"failed_step,omitempty"`
	WaitTime    time.Duration           `json:"wait_time,omitempty"`
	Batch       *models.SuggestionBatch `json:"batch,omitempty"`
	Err         error                   `json:"-"`
	Transitions []EngineState           `json:"transitions"`
}

// Deferred reports whether the rate limiter denied the cycle
func (r TriggerResult) Deferred() bool { return r.State == StateDeferred }

// Failed reports whether the cycle ended in a failure state
func (r TriggerResult) Failed() bool { return r.State == StateFailed }

// EngineDeps are the collaborators of a SuggestionEngine. Store and Sink are
// required; the pipeline components are built from Completion when left nil.
// Publisher, Metrics and Health are optional.
type EngineDeps struct {
	Store      PropositionStore
	Sink       SuggestionSink
	Completion CompletionService

	Limiter      *SuggestionRateLimiter
	Retriever    ContextRetriever
	Generator    CandidateGenerator
	Scorer       CandidateScorer // trigger path
	BundleScorer CandidateScorer // bundle sweep
	Extractor    *EntityExtractor

	// Bundles builds bundles for both paths. Pass the same creator to a
	// caller-built PriorityScorer so ApplyTuning reaches it.
	Bundles *BundleCreator

	Publisher SuggestionPublisher
	Metrics   *SuggestionMetrics
	Health    *health.Service

	// SinkComponent names the health entry persistence failures are reported on
	SinkComponent health.ComponentType

	CompletionTimeout   time.Duration
	CompletionMaxTokens int
	UserName            string

	// BundleAwareTrigger scores trigger candidates against a bundle built from
	// the retrieved context
	BundleAwareTrigger bool
}

type engineStats struct {
	totalSuggestions      int64
	totalBatches          int64
	totalProcessing       float64
	rateLimitHits         int64
	persistenceFailures   int64
	lastBatchAt           *time.Time
	lastError             string
	lastPersistenceFailed bool
}

// SuggestionEngine runs suggestion cycles: rate check, context retrieval,
// candidate generation, scoring, dedupe and diversity, persistence, delivery
type SuggestionEngine struct {
	store         PropositionStore
	sink          SuggestionSink
	limiter       *SuggestionRateLimiter
	retriever     ContextRetriever
	generator     CandidateGenerator
	scorer        CandidateScorer
	bundleScorer  CandidateScorer
	bundles       *BundleCreator
	publisher     SuggestionPublisher
	metrics       *SuggestionMetrics
	health        *health.Service
	sinkComponent health.ComponentType
	bundleAware   bool

	now   func() time.Time
	newID func() string

	mu        sync.RWMutex
	tuning    config.Tuning
	running   bool
	startedAt time.Time
	stats     engineStats
}

// NewSuggestionEngine wires an engine. The engine is stopped until Start is called.
func NewSuggestionEngine(deps EngineDeps, tuning config.Tuning) (*SuggestionEngine, error) {
	if deps.Store == nil {
		return nil, errors.New("suggestion engine requires a proposition store")
	}
	if deps.Sink == nil {
		return nil, errors.New("suggestion engine requires a suggestion sink")
	}
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}

	needsCompletion := deps.Retriever == nil || deps.Generator == nil || deps.Scorer == nil
	if needsCompletion && deps.Completion == nil {
		return nil, errors.New("suggestion engine requires a completion service for the default pipeline")
	}

	if deps.Limiter == nil {
		deps.Limiter = NewSuggestionRateLimiter(defaultSuggestionCapacity, defaultSuggestionRefillPerSecond)
	}
	if deps.Extractor == nil {
		deps.Extractor = NewEntityExtractor()
	}
	bundles := deps.Bundles
	if bundles == nil {
		bundles = NewBundleCreator(deps.Extractor, tuning.InferencesPerBundle)
	} else {
		bundles.SetMaxInferences(tuning.InferencesPerBundle)
	}

	if deps.Retriever == nil {
		deps.Retriever = NewContextRetrievalService(deps.Completion, deps.Store, deps.CompletionTimeout)
	}
	if deps.Generator == nil {
		generator := NewCandidateGenerationService(deps.Completion, deps.CompletionTimeout, deps.CompletionMaxTokens)
		if deps.UserName != "" {
			generator.SetUserName(deps.UserName)
		}
		deps.Generator = generator
	}
	if deps.Scorer == nil {
		deps.Scorer = NewExpectedUtilityScorer(deps.Completion, deps.CompletionTimeout)
	}
	if deps.BundleScorer == nil {
		deps.BundleScorer = NewPriorityScorer(bundles)
	}
	if deps.SinkComponent == "" {
		deps.SinkComponent = health.ComponentStore
	}

	deps.Health.Register(deps.SinkComponent, "suggestion sink")
	if deps.Publisher != nil {
		deps.Health.Register(health.ComponentPublisher, "suggestion publisher")
	}

	e := &SuggestionEngine{
		store:         deps.Store,
		sink:          deps.Sink,
		limiter:       deps.Limiter,
		retriever:     deps.Retriever,
		generator:     deps.Generator,
		scorer:        deps.Scorer,
		bundleScorer:  deps.BundleScorer,
		bundles:       bundles,
		publisher:     deps.Publisher,
		metrics:       deps.Metrics,
		health:        deps.Health,
		sinkComponent: deps.SinkComponent,
		bundleAware:   deps.BundleAwareTrigger,
		now:           time.Now,
		newID:         uuid.NewString,
		tuning:        tuning,
	}
	e.applyLimits(tuning)

	log.Printf("✅ [SUGGESTION-ENGINE] Initialized (trigger scoring: %s, sweep scoring: %s)",
		e.scorer.Name(), e.bundleScorer.Name())
	return e, nil
}

// Start allows cycles to run
func (e *SuggestionEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}
	e.running = true
	e.startedAt = e.now()
	log.Printf("🚀 [SUGGESTION-ENGINE] Started")
}

// Stop rejects new cycles. Cycles already running finish normally.
func (e *SuggestionEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.running = false
	log.Printf("🛑 [SUGGESTION-ENGINE] Stopped")
}

// IsRunning reports whether the engine accepts cycles
func (e *SuggestionEngine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Tuning returns the active tuning
func (e *SuggestionEngine) Tuning() config.Tuning {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tuning
}

// ApplyTuning swaps the engine knobs. Cycles already running keep the values
// they started with.
func (e *SuggestionEngine) ApplyTuning(tuning config.Tuning) error {
	if err := tuning.Validate(); err != nil {
		return fmt.Errorf("invalid tuning: %w", err)
	}

	e.mu.Lock()
	e.tuning = tuning
	e.mu.Unlock()

	e.bundles.SetMaxInferences(tuning.InferencesPerBundle)

	e.applyLimits(tuning)
	log.Printf("🔄 [SUGGESTION-ENGINE] Tuning applied (max=%d, sweep max=%d, threshold=%.2f, lambda=%.2f)",
		tuning.MaxSuggestions, tuning.SweepMaxSuggestions, tuning.SimilarityThreshold, tuning.MMRLambda)
	return nil
}

// applyLimits pushes limits into components that support them
func (e *SuggestionEngine) applyLimits(tuning config.Tuning) {
	if r, ok := e.retriever.(interface{ SetLimits(int, int) }); ok {
		r.SetLimits(tuning.SearchLimit, tuning.ContextLimit)
	}
	if g, ok := e.generator.(interface{ SetCounts(int, int) }); ok {
		g.SetCounts(tuning.CandidateCount, tuning.MaxCandidates)
	}
}

// AddProposition stores a new proposition
func (e *SuggestionEngine) AddProposition(ctx context.Context, p models.Proposition) (int64, error) {
	return e.store.AddProposition(ctx, p)
}

// RateLimitStatus returns the bucket snapshot
func (e *SuggestionEngine) RateLimitStatus() models.RateLimitStatus {
	return e.limiter.Status()
}

// ResetRateLimit refills the bucket
func (e *SuggestionEngine) ResetRateLimit() {
	e.limiter.Reset()
}

// RecentSuggestions lists persisted suggestions when the sink can read them back
func (e *SuggestionEngine) RecentSuggestions(ctx context.Context, limit int) ([]models.Suggestion, error) {
	reader, ok := e.sink.(SuggestionReader)
	if !ok {
		return nil, errors.New("suggestion sink does not support listing")
	}
	return reader.RecentSuggestions(ctx, limit)
}

// cycle tracks one run through the state machine
type cycle struct {
	engine      *SuggestionEngine
	start       time.Time
	batchID     string
	triggerID   *int64
	tuning      config.Tuning
	logger      logger
	transitions []EngineState
}

// logger is the slice of *slog.Logger the engine uses
type logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func (e *SuggestionEngine) newCycle(triggerID *int64) *cycle {
	e.mu.RLock()
	tuning := e.tuning
	e.mu.RUnlock()

	batchID := e.newID()
	return &cycle{
		engine:      e,
		start:       e.now(),
		batchID:     batchID,
		triggerID:   triggerID,
		tuning:      tuning,
		logger:      logging.WithBatch(batchID, triggerID),
		transitions: []EngineState{StateIdle},
	}
}

func (c *cycle) advance(state EngineState) {
	c.transitions = append(c.transitions, state)
}

func (c *cycle) result(state EngineState) TriggerResult {
	if state != c.transitions[len(c.transitions)-1] {
		c.transitions = append(c.transitions, state)
	}
	return TriggerResult{State: state, Transitions: c.transitions}
}

// degrade records a step that failed but was recovered with a fallback
func (c *cycle) degrade(step string, err error) {
	c.engine.metrics.RecordStepFailure(step)
	c.logger.Warn("step degraded", "step", step, "error", err)
}

func (c *cycle) fail(ctx context.Context, step string, err error) TriggerResult {
	e := c.engine
	e.metrics.RecordStepFailure(step)
	e.metrics.RecordBatch(outcomeFailed, 0, e.now().Sub(c.start).Seconds())

	e.mu.Lock()
	e.stats.lastError = fmt.Sprintf("%s: %v", step, err)
	e.mu.Unlock()

	e.publishError(ctx, step, err)
	c.logger.Error("suggestion cycle failed", "step", step, "error", err)

	res := c.result(StateFailed)
	res.FailedStep = step
	res.Err = err
	return res
}

// begin runs the lifecycle and rate checks shared by both paths. A non-nil result
// is terminal.
func (c *cycle) begin(ctx context.Context) *TriggerResult {
	e := c.engine
	if !e.IsRunning() {
		res := c.fail(ctx, StepLifecycle, ErrEngineStopped)
		return &res
	}

	if !e.limiter.Acquire(1) {
		wait := e.limiter.WaitTime()
		e.mu.Lock()
		e.stats.rateLimitHits++
		e.mu.Unlock()
		e.metrics.RecordRateLimited()

		if e.publisher != nil {
			if err := e.publisher.PublishRateLimited(ctx, wait, e.now().Add(wait)); err != nil {
				log.Printf("⚠️ [SUGGESTION-ENGINE] Failed to publish rate limit event: %v", err)
			}
		}
		log.Printf("⏳ [SUGGESTION-ENGINE] Rate limited, next batch in %.1fs", wait.Seconds())

		res := c.result(StateDeferred)
		res.WaitTime = wait
		res.Err = ErrRateLimited
		return &res
	}

	c.advance(StateRateChecked)
	return nil
}

// Trigger runs a cycle for a newly observed proposition
func (e *SuggestionEngine) Trigger(ctx context.Context, propositionID int64) TriggerResult {
	c := e.newCycle(&propositionID)
	if res := c.begin(ctx); res != nil {
		return *res
	}

	trigger, err := e.store.GetProposition(ctx, propositionID)
	if err != nil {
		return c.fail(ctx, StepTriggerLookup, err)
	}

	related := e.retriever.Retrieve(ctx, *trigger)
	if related.Degraded {
		c.degrade(StepRetrieval, ErrRetrievalFailed)
	}
	c.advance(StateContextRetrieved)

	candidates, err := e.generator.Generate(ctx, *trigger, related)
	if err != nil {
		c.degrade(StepGeneration, err)
	}
	if len(candidates) == 0 {
		candidates = []models.SuggestionCandidate{FallbackCandidate()}
	}
	if len(candidates) > c.tuning.MaxCandidates {
		candidates = candidates[:c.tuning.MaxCandidates]
	}
	c.advance(StateCandidatesGenerated)

	input := ScoringInput{Trigger: trigger, Context: related}
	if e.bundleAware {
		bundle := e.bundles.BundleFromContext(*trigger, related.RelatedPropositions)
		input.Bundle = &bundle
	}

	scored, err := e.scorer.Score(ctx, input, candidates)
	if err != nil {
		c.degrade(StepScoring, err)
	}
	e.metrics.RecordScored(e.scorer.Name(), len(scored))
	c.advance(StateScored)

	final := c.diversify(scored, c.tuning.MaxSuggestions)
	c.advance(StateDeduplicated)

	batch := c.assemble(final, e.scorer.Name(), len(related.RelatedPropositions), 0)
	return c.finish(ctx, batch)
}

// GenerateFromBundles runs a cycle over fact/inference bundles instead of a single trigger
func (e *SuggestionEngine) GenerateFromBundles(ctx context.Context) TriggerResult {
	c := e.newCycle(nil)
	if res := c.begin(ctx); res != nil {
		return *res
	}

	facts, err := e.store.QueryByConfidence(ctx, models.FactMinConfidence, models.MaxConfidence, c.tuning.FactLimit, models.OrderConfidenceDesc)
	if err != nil {
		c.degrade(StepRetrieval, err)
		facts = nil
	}
	inferences, err := e.store.QueryByConfidence(ctx, models.InferenceMinConfidence, models.InferenceMaxConfidence, c.tuning.InferenceLimit, models.OrderCreatedDesc)
	if err != nil {
		c.degrade(StepRetrieval, err)
		inferences = nil
	}
	c.advance(StateContextRetrieved)

	bundles := e.bundles.CreateBundles(facts, inferences, c.tuning.MaxBundles)
	if len(bundles) == 0 {
		return c.fail(ctx, StepBundling, fmt.Errorf("%w: %d facts, %d inferences", ErrNoBundles, len(facts), len(inferences)))
	}

	type bundleCandidate struct {
		bundle    models.Bundle
		candidate models.SuggestionCandidate
	}
	var generated []bundleCandidate
	for _, bundle := range bundles {
		candidate, err := e.generator.GenerateFromBundle(ctx, bundle)
		if err != nil {
			c.degrade(StepGeneration, fmt.Errorf("bundle anchored on %d: %w", bundle.AnchorFact.ID, err))
			continue
		}
		generated = append(generated, bundleCandidate{bundle: bundle, candidate: candidate})
	}
	if len(generated) == 0 {
		generated = append(generated, bundleCandidate{bundle: bundles[0], candidate: FallbackCandidate()})
	}
	c.advance(StateCandidatesGenerated)

	// Each candidate is scored against the bundle it came from
	var scored []models.ScoredCandidate
	for _, g := range generated {
		bundle := g.bundle
		result, err := e.bundleScorer.Score(ctx, ScoringInput{Bundle: &bundle}, []models.SuggestionCandidate{g.candidate})
		if err != nil {
			c.degrade(StepScoring, err)
		}
		scored = append(scored, result...)
	}
	sortScored(scored)
	e.metrics.RecordScored(e.bundleScorer.Name(), len(scored))
	c.advance(StateScored)

	final := c.diversify(scored, c.tuning.SweepMaxSuggestions)
	c.advance(StateDeduplicated)

	batch := c.assemble(final, e.bundleScorer.Name(), bundlePropositionCount(bundles), len(bundles))
	return c.finish(ctx, batch)
}

func (c *cycle) diversify(scored []models.ScoredCandidate, maxTotal int) []models.ScoredCandidate {
	deduped := Dedupe(scored, c.tuning.SimilarityThreshold)
	return SelectDiverse(deduped, DiversityOptions{
		MaxTotal:       maxTotal,
		MaxPerCategory: c.tuning.MaxPerCategory,
		Lambda:         c.tuning.MMRLambda,
	})
}

func (c *cycle) assemble(final []models.ScoredCandidate, strategy string, contextUsed, bundlesUsed int) *models.SuggestionBatch {
	now := c.engine.now()
	batch := &models.SuggestionBatch{
		BatchID:                 c.batchID,
		Suggestions:             make([]models.Suggestion, len(final)),
		TriggerPropositionID:    c.triggerID,
		GeneratedAt:             now.UTC(),
		ProcessingTimeSeconds:   now.Sub(c.start).Seconds(),
		ContextPropositionsUsed: contextUsed,
		BundlesUsed:             bundlesUsed,
		ScoringStrategy:         strategy,
	}
	for i, sc := range final {
		batch.Suggestions[i] = toSuggestion(sc, c.batchID, c.triggerID)
	}
	return batch
}

// finish persists and delivers an assembled batch
func (c *cycle) finish(ctx context.Context, batch *models.SuggestionBatch) TriggerResult {
	e := c.engine

	ids, err := e.sink.SaveSuggestions(ctx, batch)
	if err != nil {
		if !errors.Is(err, ErrPersistenceFailed) {
			err = fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
		}
		e.health.MarkUnhealthy(e.sinkComponent, err.Error(), 0)
		e.mu.Lock()
		e.stats.persistenceFailures++
		e.stats.lastPersistenceFailed = true
		e.mu.Unlock()

		log.Printf("❌ [SUGGESTION-ENGINE] Batch %s not persisted, %d suggestions at risk of loss: %v",
			batch.BatchID, len(batch.Suggestions), err)

		res := c.fail(ctx, StepPersistence, err)
		res.Batch = batch
		return res
	}
	e.health.MarkHealthy(e.sinkComponent)

	for i := range batch.Suggestions {
		if i < len(ids) {
			batch.Suggestions[i].ID = ids[i]
		}
	}
	c.advance(StatePersisted)
	e.recordBatch(batch)

	outcome := outcomePersisted
	if e.publisher != nil {
		if c.deliver(ctx, batch) {
			outcome = outcomeDelivered
			c.advance(StateDelivered)
		}
	}

	e.metrics.RecordBatch(outcome, len(batch.Suggestions), batch.ProcessingTimeSeconds)
	c.logger.Info("suggestion batch complete",
		"state", c.transitions[len(c.transitions)-1],
		"suggestions", len(batch.Suggestions),
		"strategy", batch.ScoringStrategy,
		"categories", categoryCountsOf(batch.Suggestions),
		"processing_seconds", batch.ProcessingTimeSeconds)

	res := c.result(c.transitions[len(c.transitions)-1])
	res.Batch = batch
	return res
}

// deliver publishes the batch and marks it delivered. Delivery problems never fail
// a persisted batch.
func (c *cycle) deliver(ctx context.Context, batch *models.SuggestionBatch) bool {
	e := c.engine

	if err := e.publisher.PublishBatch(ctx, batch); err != nil {
		e.health.MarkUnhealthy(health.ComponentPublisher, err.Error(), 0)
		c.degrade(StepDelivery, err)
		return false
	}
	e.health.MarkHealthy(health.ComponentPublisher)

	if err := e.sink.MarkDelivered(ctx, batch.SuggestionIDs()); err != nil {
		log.Printf("⚠️ [SUGGESTION-ENGINE] Batch %s published but not marked delivered: %v", batch.BatchID, err)
		return true
	}
	for i := range batch.Suggestions {
		batch.Suggestions[i].Delivered = true
	}
	return true
}

func (e *SuggestionEngine) publishError(ctx context.Context, step string, cause error) {
	if e.publisher == nil || step == StepLifecycle {
		return
	}
	if err := e.publisher.PublishError(ctx, step, cause); err != nil {
		log.Printf("⚠️ [SUGGESTION-ENGINE] Failed to publish error event: %v", err)
	}
}

func (e *SuggestionEngine) recordBatch(batch *models.SuggestionBatch) {
	e.mu.Lock()
	defer e.mu.Unlock()

	generatedAt := batch.GeneratedAt
	e.stats.totalBatches++
	e.stats.totalSuggestions += int64(len(batch.Suggestions))
	e.stats.totalProcessing += batch.ProcessingTimeSeconds
	e.stats.lastBatchAt = &generatedAt
	e.stats.lastPersistenceFailed = false
}

// Health reports engine status. The engine is degraded when the average cycle is
// slow, the last persistence failed, or the completion service is unhealthy.
func (e *SuggestionEngine) Health() models.EngineHealth {
	e.mu.RLock()
	stats := e.stats
	running := e.running
	startedAt := e.startedAt
	slow := e.tuning.SlowBatchSeconds
	e.mu.RUnlock()

	avg := 0.0
	if stats.totalBatches > 0 {
		avg = stats.totalProcessing / float64(stats.totalBatches)
	}
	completionHealthy := e.health.IsHealthy(health.ComponentCompletion)

	status := models.EngineHealthy
	switch {
	case !running:
		status = models.EngineStopped
	case avg > slow, stats.lastPersistenceFailed, !completionHealthy:
		status = models.EngineDegraded
	}

	uptime := 0.0
	if running {
		uptime = e.now().Sub(startedAt).Seconds()
	}

	return models.EngineHealth{
		Status: status,
		Metrics: models.EngineMetrics{
			TotalSuggestions:    stats.totalSuggestions,
			TotalBatches:        stats.totalBatches,
			AvgProcessingTime:   avg,
			RateLimitHits:       stats.rateLimitHits,
			PersistenceFailures: stats.persistenceFailures,
			LastBatchAt:         stats.lastBatchAt,
		},
		RateLimitStatus:   e.limiter.Status(),
		CompletionHealthy: completionHealthy,
		UptimeSeconds:     uptime,
		LastError:         stats.lastError,
		Components:        e.health.GetStatus(),
	}
}

func toSuggestion(sc models.ScoredCandidate, batchID string, triggerID *int64) models.Suggestion {
	rationale := sc.Candidate.Rationale
	if rationale == "" {
		rationale = sc.Candidate.Evidence
	}
	utility := sc.Utility
	if math.IsNaN(utility) || math.IsInf(utility, 0) {
		utility = 0
	}
	urgency := sc.Urgency
	if urgency == "" {
		urgency = sc.Candidate.Urgency
	}

	return models.Suggestion{
		Title:                sanitizeSuggestionText(sc.Candidate.Title, models.MaxTitleLength),
		Description:          sanitizeSuggestionText(sc.Candidate.Description, models.MaxDescriptionLength),
		Category:             truncateText(sc.Candidate.Category, models.MaxCategoryLength),
		Rationale:            sanitizeSuggestionText(rationale, models.MaxRationaleLength),
		ExpectedUtility:      utility,
		ProbabilityUseful:    clamp01(sc.Scores.ProbabilityUseful),
		Urgency:              urgency,
		ActionItems:          sc.Candidate.ActionItems,
		TriggerPropositionID: triggerID,
		BatchID:              batchID,
	}
}

func bundlePropositionCount(bundles []models.Bundle) int {
	seen := map[int64]bool{}
	for _, b := range bundles {
		seen[b.AnchorFact.ID] = true
		for _, inf := range b.Inferences {
			seen[inf.ID] = true
		}
	}
	return len(seen)
}

func categoryCountsOf(suggestions []models.Suggestion) map[string]int {
	counts := map[string]int{}
	for _, s := range suggestions {
		counts[s.Category]++
	}
	return counts
}
