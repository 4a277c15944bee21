package services

import (
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"gumbo/internal/models"
)

// Bundle relevance parameters
const (
	bundleEntityWeight       = 0.7
	bundleTimeWeight         = 0.3
	bundleRelevanceThreshold = 0.1
	bundleTimeWindowHours    = 24 * 7
	maxInferencesPerBundle   = 5
)

// entityCategoryWeights rank categories by how strongly a shared entity links two propositions
var entityCategoryWeights = map[string]float64{
	EntityApps:           3.0,
	EntityPeople:         2.5,
	EntityOrganizations:  2.0,
	EntityTechTerms:      1.5,
	EntityActions:        1.2,
	EntityTimeIndicators: 1.0,
	EntityKeywords:       0.8,
	EntityEmotions:       0.5,
}

// BundleCreator groups high-confidence facts with the weaker inferences that support them.
// CreateBundles is a pure function of its inputs.
type BundleCreator struct {
	extractor *EntityExtractor

	mu            sync.RWMutex
	maxInferences int
}

// NewBundleCreator creates a bundle creator. maxInferences <= 0 uses 5.
func NewBundleCreator(extractor *EntityExtractor, maxInferences int) *BundleCreator {
	if extractor == nil {
		extractor = NewEntityExtractor()
	}
	b := &BundleCreator{extractor: extractor}
	b.SetMaxInferences(maxInferences)
	return b
}

// SetMaxInferences changes how many inferences a bundle may hold. Values outside
// 1..5 use 5.
func (b *BundleCreator) SetMaxInferences(n int) {
	if n <= 0 || n > maxInferencesPerBundle {
		n = maxInferencesPerBundle
	}
	b.mu.Lock()
	b.maxInferences = n
	b.mu.Unlock()
}

// MaxInferences returns the per-bundle inference limit
func (b *BundleCreator) MaxInferences() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.maxInferences
}

type inferenceMatch struct {
	proposition models.Proposition
	entities    Entities
	relevance   float64
	timeScore   float64
}

// CreateBundles builds up to maxBundles bundles. Facts are taken by confidence
// (then recency); each fact anchors at most one bundle, and a fact with no
// inference above the relevance threshold produces none.
func (b *BundleCreator) CreateBundles(facts, inferences []models.Proposition, maxBundles int) []models.Bundle {
	bundles := []models.Bundle{}
	if maxBundles <= 0 {
		return bundles
	}

	limit := b.MaxInferences()
	anchors := selectFacts(facts)
	candidates := make([]inferenceMatch, 0, len(inferences))
	for _, inf := range inferences {
		if !inf.IsInference() {
			continue
		}
		candidates = append(candidates, inferenceMatch{
			proposition: inf,
			entities:    b.extractor.Extract(propositionText(inf)),
		})
	}

	for _, fact := range anchors {
		if len(bundles) >= maxBundles {
			break
		}

		factEntities := b.extractor.Extract(propositionText(fact))

		var related []inferenceMatch
		for _, candidate := range candidates {
			entitySim := EntitySimilarity(factEntities, candidate.entities)
			timeScore := TimeProximity(fact.CreatedAt, candidate.proposition.CreatedAt)
			relevance := bundleEntityWeight*entitySim + bundleTimeWeight*timeScore
			if relevance <= bundleRelevanceThreshold {
				continue
			}
			match := candidate
			match.relevance = relevance
			match.timeScore = timeScore
			related = append(related, match)
		}

		if len(related) == 0 {
			continue
		}

		sort.SliceStable(related, func(i, j int) bool {
			return related[i].relevance > related[j].relevance
		})
		if len(related) > limit {
			related = related[:limit]
		}

		bundle := models.Bundle{
			AnchorFact:     fact,
			SharedEntities: map[string]bool{},
		}
		timeTotal := 0.0
		for _, match := range related {
			bundle.Inferences = append(bundle.Inferences, match.proposition)
			bundle.InferenceRelevance = append(bundle.InferenceRelevance, match.relevance)
			timeTotal += match.timeScore
			for entity := range sharedEntities(factEntities, match.entities) {
				bundle.SharedEntities[entity] = true
			}
		}
		bundle.TimeProximityScore = timeTotal / float64(len(related))

		bundles = append(bundles, bundle)
	}

	log.Printf("🧩 [BUNDLES] Created %d bundles from %d facts and %d inferences", len(bundles), len(anchors), len(candidates))
	return bundles
}

// BundleFromContext builds a bundle around a trigger using retrieved propositions as
// the supporting set, regardless of their confidence band. It is used when a
// trigger is scored with bundle heuristics.
func (b *BundleCreator) BundleFromContext(trigger models.Proposition, related []models.ContextualProposition) models.Bundle {
	bundle := models.Bundle{
		AnchorFact:     trigger,
		SharedEntities: map[string]bool{},
	}

	limit := b.MaxInferences()
	triggerEntities := b.extractor.Extract(propositionText(trigger))
	timeTotal := 0.0
	for _, prop := range related {
		if len(bundle.Inferences) >= limit {
			break
		}
		if prop.ID == trigger.ID {
			continue
		}
		timeScore := TimeProximity(trigger.CreatedAt, prop.CreatedAt)
		entities := b.extractor.Extract(propositionText(prop.Proposition))

		bundle.Inferences = append(bundle.Inferences, prop.Proposition)
		bundle.InferenceRelevance = append(bundle.InferenceRelevance, prop.SimilarityScore)
		timeTotal += timeScore
		for entity := range sharedEntities(triggerEntities, entities) {
			bundle.SharedEntities[entity] = true
		}
	}

	if len(bundle.Inferences) > 0 {
		bundle.TimeProximityScore = timeTotal / float64(len(bundle.Inferences))
	}
	return bundle
}

// selectFacts keeps distinct facts ordered by confidence desc, then newest first
func selectFacts(facts []models.Proposition) []models.Proposition {
	seen := make(map[int64]bool, len(facts))
	selected := make([]models.Proposition, 0, len(facts))
	for _, fact := range facts {
		if !fact.IsFact() || seen[fact.ID] {
			continue
		}
		seen[fact.ID] = true
		selected = append(selected, fact)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Confidence != selected[j].Confidence {
			return selected[i].Confidence > selected[j].Confidence
		}
		return selected[i].CreatedAt.After(selected[j].CreatedAt)
	})
	return selected
}

// EntitySimilarity is a category-weighted Jaccard over categories populated on both sides.
// It returns 0 when no category is populated on both sides.
func EntitySimilarity(a, b Entities) float64 {
	weighted := 0.0
	totalWeight := 0.0

	for _, category := range EntityCategories {
		setA, setB := a[category], b[category]
		if len(setA) == 0 || len(setB) == 0 {
			continue
		}

		intersection := 0
		for entity := range setA {
			if setB[entity] {
				intersection++
			}
		}
		union := len(setA) + len(setB) - intersection

		weight := entityCategoryWeights[category]
		weighted += weight * float64(intersection) / float64(union)
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}

// TimeProximity decays linearly from 1 (same instant) to 0 at one week apart
func TimeProximity(a, b time.Time) float64 {
	hours := math.Abs(a.Sub(b).Hours())
	return math.Max(0, 1-hours/bundleTimeWindowHours)
}

// sharedEntities is the union of per-category intersections
func sharedEntities(a, b Entities) EntitySet {
	shared := EntitySet{}
	for _, category := range EntityCategories {
		for entity := range a[category] {
			if b[category][entity] {
				shared[entity] = true
			}
		}
	}
	return shared
}

func propositionText(p models.Proposition) string {
	if p.Reasoning == "" {
		return p.Text
	}
	return p.Text + " " + p.Reasoning
}
