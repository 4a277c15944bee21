package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"gumbo/internal/models"
)

// Scoring strategy names
const (
	StrategyExpectedUtility = "expected_utility"
	StrategyPriority        = "priority"
)

// Neutral ratings, used for any dimension the model leaves out and for every
// candidate when the scoring call fails
const (
	neutralBenefit                  = 5.0
	neutralFalsePositiveCost        = 3.0
	neutralFalseNegativeCost        = 4.0
	neutralDecay                    = 5.0
	neutralProbabilityUseful        = 0.5
	neutralProbabilityFalsePositive = 0.2
	neutralProbabilityFalseNegative = 0.3

	scoringMaxTokens = 800
)

// ScoringInput is what a scorer may use besides the candidates themselves.
// Trigger is nil on the bundle sweep; Bundle is nil on the plain trigger path.
type ScoringInput struct {
	Trigger *models.Proposition
	Context models.ContextRetrievalResult
	Bundle  *models.Bundle
}

// CandidateScorer ranks candidates. Implementations return one result per candidate,
// sorted by Utility descending. A non-nil error means fallback scores were used;
// the results are still complete.
type CandidateScorer interface {
	Name() string
	Score(ctx context.Context, input ScoringInput, candidates []models.SuggestionCandidate) ([]models.ScoredCandidate, error)
}

// NeutralScores returns the fallback ratings
func NeutralScores() models.UtilityScores {
	return models.UtilityScores{
		Benefit:                  neutralBenefit,
		FalsePositiveCost:        neutralFalsePositiveCost,
		FalseNegativeCost:        neutralFalseNegativeCost,
		Decay:                    neutralDecay,
		ProbabilityUseful:        neutralProbabilityUseful,
		ProbabilityFalsePositive: neutralProbabilityFalsePositive,
		ProbabilityFalseNegative: neutralProbabilityFalseNegative,
	}
}

// ExpectedUtility computes (benefit*p_useful - fp_cost*p_fp - fn_cost*p_fn) * decay/10.
// The result is always finite.
func ExpectedUtility(s models.UtilityScores) float64 {
	eu := (s.Benefit*s.ProbabilityUseful -
		s.FalsePositiveCost*s.ProbabilityFalsePositive -
		s.FalseNegativeCost*s.ProbabilityFalseNegative) * (s.Decay / 10.0)
	if math.IsNaN(eu) || math.IsInf(eu, 0) {
		return 0
	}
	return eu
}

// ExpectedUtilityScorer has the completion service rate every candidate and
// combines the ratings with ExpectedUtility
type ExpectedUtilityScorer struct {
	completion CompletionService
	timeout    time.Duration
}

// NewExpectedUtilityScorer creates the model-rated scorer
func NewExpectedUtilityScorer(completion CompletionService, timeout time.Duration) *ExpectedUtilityScorer {
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}
	return &ExpectedUtilityScorer{completion: completion, timeout: timeout}
}

func (s *ExpectedUtilityScorer) Name() string { return StrategyExpectedUtility }

// Score rates candidates in one completion call
func (s *ExpectedUtilityScorer) Score(ctx context.Context, input ScoringInput, candidates []models.SuggestionCandidate) ([]models.ScoredCandidate, error) {
	if len(candidates) == 0 {
		return []models.ScoredCandidate{}, nil
	}

	ratings, err := s.rate(ctx, input, candidates)
	if err != nil {
		log.Printf("⚠️ [UTILITY] Scoring failed, using neutral utility for %d candidates: %v", len(candidates), err)
		ratings = map[int]models.UtilityScores{}
	}

	scored := make([]models.ScoredCandidate, len(candidates))
	for i, candidate := range candidates {
		scores, ok := ratings[i]
		if !ok {
			scores = NeutralScores()
		}
		utility := ExpectedUtility(scores)
		scored[i] = models.ScoredCandidate{
			Candidate:   candidate,
			Scores:      scores,
			Utility:     utility,
			Strategy:    StrategyExpectedUtility,
			Explanation: fmt.Sprintf("Expected utility %.2f: benefit %.1f, useful %.0f%%", utility, scores.Benefit, scores.ProbabilityUseful*100),
			Urgency:     candidate.Urgency,
		}
	}

	sortScored(scored)
	log.Printf("📊 [UTILITY] Scored %d candidates, top utility: %.2f", len(scored), scored[0].Utility)
	return scored, err
}

type ratedCandidate struct {
	Index                    *int     `json:"index"`
	Benefit                  *float64 `json:"benefit"`
	FalsePositiveCost        *float64 `json:"false_positive_cost"`
	FalseNegativeCost        *float64 `json:"false_negative_cost"`
	Decay                    *float64 `json:"decay"`
	ProbabilityUseful        *float64 `json:"probability_useful"`
	ProbabilityFalsePositive *float64 `json:"probability_false_positive"`
	ProbabilityFalseNegative *float64 `json:"probability_false_negative"`
}

// rate returns scores keyed by candidate index. Missing dimensions take neutral values.
func (s *ExpectedUtilityScorer) rate(ctx context.Context, input ScoringInput, candidates []models.SuggestionCandidate) (map[int]models.UtilityScores, error) {
	if s.completion == nil {
		return nil, fmt.Errorf("%w: no completion service configured", ErrScoringFailed)
	}

	prompt, err := buildScoringPrompt(scoringUserContext(input), candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScoringFailed, err)
	}

	response, err := s.completion.Complete(ctx, prompt, scoringMaxTokens, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScoringFailed, err)
	}

	var payload struct {
		ScoredSuggestions []ratedCandidate `json:"scored_suggestions"`
	}
	if err := ParseLLMJSON(response).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}

	ratings := make(map[int]models.UtilityScores, len(payload.ScoredSuggestions))
	for _, item := range payload.ScoredSuggestions {
		if item.Index == nil || *item.Index < 0 || *item.Index >= len(candidates) {
			continue
		}
		if _, seen := ratings[*item.Index]; seen {
			continue
		}
		ratings[*item.Index] = models.UtilityScores{
			Benefit:                  rating(item.Benefit, neutralBenefit, 10),
			FalsePositiveCost:        rating(item.FalsePositiveCost, neutralFalsePositiveCost, 10),
			FalseNegativeCost:        rating(item.FalseNegativeCost, neutralFalseNegativeCost, 10),
			Decay:                    rating(item.Decay, neutralDecay, 10),
			ProbabilityUseful:        rating(item.ProbabilityUseful, neutralProbabilityUseful, 1),
			ProbabilityFalsePositive: rating(item.ProbabilityFalsePositive, neutralProbabilityFalsePositive, 1),
			ProbabilityFalseNegative: rating(item.ProbabilityFalseNegative, neutralProbabilityFalseNegative, 1),
		}
	}

	if len(ratings) < len(candidates) {
		log.Printf("⚠️ [UTILITY] Model rated %d of %d candidates, the rest get neutral scores", len(ratings), len(candidates))
	}
	return ratings, nil
}

// rating clamps v to [0, upper], substituting fallback when v is missing or not a number
func rating(v *float64, fallback, upper float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return fallback
	}
	return math.Max(0, math.Min(upper, *v))
}

func scoringUserContext(input ScoringInput) string {
	var b strings.Builder
	switch {
	case input.Trigger != nil:
		b.WriteString("Recent behavior: " + input.Trigger.Text)
	case input.Bundle != nil:
		b.WriteString("Verified pattern: " + input.Bundle.AnchorFact.Text)
	default:
		b.WriteString("No trigger context available")
	}
	if n := len(input.Context.RelatedPropositions); n > 0 {
		b.WriteString(fmt.Sprintf("\nRelated patterns: %d behavioral insights", n))
	}
	if input.Bundle != nil && len(input.Bundle.Inferences) > 0 {
		b.WriteString(fmt.Sprintf("\nSupporting inferences: %d", len(input.Bundle.Inferences)))
	}
	return b.String()
}

// Priority heuristic weights and per-category tables
const (
	priorityBenefitWeight = 0.45
	priorityFNCostWeight  = 0.30
	priorityNoveltyWeight = 0.15
	priorityDecayWeight   = 0.10
)

var (
	categoryBenefitBoost = map[string]float64{
		CategoryStrategic:    0.9,
		CategoryOptimization: 0.8,
		CategoryWorkflow:     0.7,
		CategoryLearning:     0.6,
		CategoryCompletion:   0.5,
	}
	categoryMissCost = map[string]float64{
		CategoryStrategic:    0.8,
		CategoryOptimization: 0.6,
		CategoryCompletion:   0.7,
		CategoryWorkflow:     0.5,
		CategoryLearning:     0.3,
	}
	categoryDurability = map[string]float64{
		CategoryStrategic:    0.9,
		CategoryOptimization: 0.7,
		CategoryLearning:     0.8,
		CategoryWorkflow:     0.6,
		CategoryCompletion:   0.3,
	}
	urgencyMissCost = map[string]float64{
		models.UrgencyNow:      0.9,
		models.UrgencyToday:    0.7,
		models.UrgencyThisWeek: 0.4,
	}
)

// PriorityComponents are the heuristic dimensions, each in [0, 1]
type PriorityComponents struct {
	Benefit           float64
	FalseNegativeCost float64
	Novelty           float64
	Decay             float64
	Priority          float64
}

// PriorityScorer ranks candidates with closed-form bundle heuristics. It makes no
// network calls and never fails.
type PriorityScorer struct {
	bundles *BundleCreator
}

// NewPriorityScorer creates the heuristic scorer. bundles builds a bundle from the
// trigger when the input carries none.
func NewPriorityScorer(bundles *BundleCreator) *PriorityScorer {
	if bundles == nil {
		bundles = NewBundleCreator(nil, 0)
	}
	return &PriorityScorer{bundles: bundles}
}

func (s *PriorityScorer) Name() string { return StrategyPriority }

// Score computes priority for every candidate against the input's bundle
func (s *PriorityScorer) Score(_ context.Context, input ScoringInput, candidates []models.SuggestionCandidate) ([]models.ScoredCandidate, error) {
	if len(candidates) == 0 {
		return []models.ScoredCandidate{}, nil
	}

	var bundle models.Bundle
	switch {
	case input.Bundle != nil:
		bundle = *input.Bundle
	case input.Trigger != nil:
		bundle = s.bundles.BundleFromContext(*input.Trigger, input.Context.RelatedPropositions)
	}

	scored := make([]models.ScoredCandidate, len(candidates))
	for i, candidate := range candidates {
		scored[i] = ScoreWithBundle(candidate, bundle)
	}

	sortScored(scored)
	log.Printf("📊 [UTILITY] Priority-scored %d candidates, top priority: %.2f", len(scored), scored[0].Utility)
	return scored, nil
}

// ScoreWithBundle applies the priority heuristic to one candidate
func ScoreWithBundle(candidate models.SuggestionCandidate, bundle models.Bundle) models.ScoredCandidate {
	c := PriorityFor(candidate, bundle)
	return models.ScoredCandidate{
		Candidate: candidate,
		Scores: models.UtilityScores{
			Benefit:           c.Benefit * 10,
			FalseNegativeCost: c.FalseNegativeCost * 10,
			Decay:             c.Decay * 10,
			Novelty:           c.Novelty * 10,
			ProbabilityUseful: clamp01(c.Priority),
		},
		Utility:     c.Priority,
		Strategy:    StrategyPriority,
		Explanation: PriorityExplanation(c),
		Urgency:     UrgencyFromPriority(c.Priority),
	}
}

// PriorityFor computes 0.45*benefit + 0.30*fn_cost + 0.15*novelty + 0.10*decay
func PriorityFor(candidate models.SuggestionCandidate, bundle models.Bundle) PriorityComponents {
	anchorConfidence := float64(bundle.AnchorFact.Confidence) / 10.0
	shared := float64(len(bundle.SharedEntities))
	category := candidate.Category

	// Benefit: anchor confidence scaled by category, action count and entity spread
	actionBoost := math.Min(1, float64(len(candidate.ActionItems))/3.0)
	entityBoost := math.Min(1, shared/5.0)
	benefit := math.Min(1, anchorConfidence*tableValue(categoryBenefitBoost, category, 0.7)*(0.7+0.2*actionBoost+0.1*entityBoost))

	// Miss cost: urgency and category, amplified by inference support
	urgency := candidate.Urgency
	if urgency == "" {
		urgency = models.UrgencyThisWeek
	}
	support := math.Min(1, float64(len(bundle.Inferences))/3.0)
	fnCost := math.Min(1, tableValue(urgencyMissCost, urgency, 0.4)*tableValue(categoryMissCost, category, 0.5)*(0.6+0.4*support))

	// Novelty: weaker supporting inferences and more shared entities mean a less obvious insight
	avgInferenceConfidence := 8.0
	if len(bundle.Inferences) > 0 {
		total := 0
		for _, inf := range bundle.Inferences {
			total += inf.Confidence
		}
		avgInferenceConfidence = float64(total) / float64(len(bundle.Inferences))
	}
	novelty := math.Min(1, math.Max(0, 1-avgInferenceConfidence/10.0)+math.Min(0.3, shared/10.0)+bundle.TimeProximityScore*0.2)

	// Decay: category durability scaled by anchor confidence and entity coverage
	entityFactor := math.Min(1, shared/3.0)
	decay := math.Min(1, tableValue(categoryDurability, category, 0.6)*anchorConfidence*(0.7+0.3*entityFactor))

	priority := priorityBenefitWeight*benefit +
		priorityFNCostWeight*fnCost +
		priorityNoveltyWeight*novelty +
		priorityDecayWeight*decay

	return PriorityComponents{
		Benefit:           benefit,
		FalseNegativeCost: fnCost,
		Novelty:           novelty,
		Decay:             decay,
		Priority:          clamp01(priority),
	}
}

// PriorityExplanation describes which components drove the priority
func PriorityExplanation(c PriorityComponents) string {
	var parts []string

	if c.Benefit > 0.7 {
		parts = append(parts, "high potential benefit")
	} else if c.Benefit > 0.4 {
		parts = append(parts, "moderate benefit")
	}
	if c.FalseNegativeCost > 0.6 {
		parts = append(parts, "significant cost if missed")
	}
	if c.Novelty > 0.6 {
		parts = append(parts, "novel cross-pattern insight")
	} else if c.Novelty > 0.3 {
		parts = append(parts, "some non-obvious connections")
	}
	if c.Decay > 0.7 {
		parts = append(parts, "long-term relevance")
	}

	if len(parts) == 0 {
		return fmt.Sprintf("Priority %.2f: standard suggestion", c.Priority)
	}
	return fmt.Sprintf("Priority %.2f: %s", c.Priority, strings.Join(parts, ", "))
}

// UrgencyFromPriority maps priority to now (>= 0.8), today (>= 0.6) or this_week
func UrgencyFromPriority(priority float64) string {
	switch {
	case priority >= 0.8:
		return models.UrgencyNow
	case priority >= 0.6:
		return models.UrgencyToday
	default:
		return models.UrgencyThisWeek
	}
}

func tableValue(table map[string]float64, key string, fallback float64) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return fallback
}

// sortScored orders by utility descending, keeping input order for ties
func sortScored(scored []models.ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Utility > scored[j].Utility
	})
}
