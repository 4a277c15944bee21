package services

import (
	"log"
	"math"

	"gumbo/internal/models"
)

const (
	DefaultSimilarityThreshold = 0.92
	DefaultMMRLambda           = 0.7
	DefaultMaxPerCategory      = 3
	DefaultMaxTotal            = 8

	// MMR scores closer than this are ties and go to the earlier item
	mmrTieEpsilon = 1e-12
)

// DiversityOptions bounds the final suggestion set
type DiversityOptions struct {
	MaxTotal       int
	MaxPerCategory int
	Lambda         float64 // relevance weight in MMR, 1 ignores diversity
}

func (o DiversityOptions) withDefaults() DiversityOptions {
	if o.MaxTotal <= 0 {
		o.MaxTotal = DefaultMaxTotal
	}
	if o.MaxPerCategory <= 0 {
		o.MaxPerCategory = DefaultMaxPerCategory
	}
	if o.Lambda < 0 || o.Lambda > 1 || math.IsNaN(o.Lambda) {
		o.Lambda = DefaultMMRLambda
	}
	return o
}

func candidateText(sc models.ScoredCandidate) string {
	return sc.Candidate.Title + " " + sc.Candidate.Description
}

// Dedupe drops near-duplicates. For every pair whose title+description similarity
// exceeds threshold, the member with lower utility is removed (the later one on a tie).
// Input order is preserved.
func Dedupe(scored []models.ScoredCandidate, threshold float64) []models.ScoredCandidate {
	if len(scored) <= 1 {
		return scored
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}

	texts := make([]string, len(scored))
	for i, sc := range scored {
		texts[i] = candidateText(sc)
	}
	sim := SimilarityMatrix(texts)

	removed := make([]bool, len(scored))
	for i := range scored {
		if removed[i] {
			continue
		}
		for j := i + 1; j < len(scored); j++ {
			if removed[j] || sim[i][j] <= threshold {
				continue
			}
			if scored[i].Utility >= scored[j].Utility {
				removed[j] = true
			} else {
				removed[i] = true
				break
			}
		}
	}

	kept := make([]models.ScoredCandidate, 0, len(scored))
	for i, sc := range scored {
		if !removed[i] {
			kept = append(kept, sc)
		}
	}

	if len(kept) < len(scored) {
		log.Printf("🧹 [DEDUP] Deduplicated %d -> %d suggestions", len(scored), len(kept))
	}
	return kept
}

// SelectDiverse caps each category at MaxPerCategory (highest utility first) and, if
// more than MaxTotal remain, picks MaxTotal with maximal marginal relevance. When
// fewer than MaxPerCategory distinct categories exist the cap cannot diversify
// anything, so capped items are used to backfill up to MaxTotal.
func SelectDiverse(scored []models.ScoredCandidate, opts DiversityOptions) []models.ScoredCandidate {
	opts = opts.withDefaults()
	if len(scored) == 0 {
		return []models.ScoredCandidate{}
	}

	ranked := make([]models.ScoredCandidate, len(scored))
	copy(ranked, scored)
	sortScored(ranked)

	perCategory := map[string]int{}
	var capped, overflow []models.ScoredCandidate
	for _, sc := range ranked {
		if perCategory[sc.Candidate.Category] < opts.MaxPerCategory {
			perCategory[sc.Candidate.Category]++
			capped = append(capped, sc)
		} else {
			overflow = append(overflow, sc)
		}
	}

	if len(perCategory) < opts.MaxPerCategory && len(overflow) > 0 && len(capped) < opts.MaxTotal {
		room := opts.MaxTotal - len(capped)
		if room > len(overflow) {
			room = len(overflow)
		}
		capped = append(capped, overflow[:room]...)
		sortScored(capped)
	}

	if len(capped) <= opts.MaxTotal {
		return capped
	}
	return selectMMR(capped, opts.MaxTotal, opts.Lambda)
}

// selectMMR greedily picks k items. The first pick is the highest-utility item; each
// following pick maximizes lambda*relevance - (1-lambda)*max similarity to the picks
// so far, where relevance is utility min-max normalized over the pool. Ties go to the
// earlier item. Input must be sorted by utility descending.
func selectMMR(pool []models.ScoredCandidate, k int, lambda float64) []models.ScoredCandidate {
	if k >= len(pool) {
		return pool
	}

	texts := make([]string, len(pool))
	minU, maxU := math.Inf(1), math.Inf(-1)
	for i, sc := range pool {
		texts[i] = candidateText(sc)
		minU = math.Min(minU, sc.Utility)
		maxU = math.Max(maxU, sc.Utility)
	}
	sim := SimilarityMatrix(texts)

	relevance := make([]float64, len(pool))
	for i, sc := range pool {
		if maxU > minU {
			relevance[i] = (sc.Utility - minU) / (maxU - minU)
		} else {
			relevance[i] = 1
		}
	}

	selected := []int{0}
	used := make([]bool, len(pool))
	used[0] = true

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range pool {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, j := range selected {
				maxSim = math.Max(maxSim, sim[i][j])
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim
			if score > bestScore+mmrTieEpsilon {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		selected = append(selected, best)
		used[best] = true
	}

	result := make([]models.ScoredCandidate, len(selected))
	for i, idx := range selected {
		result[i] = pool[idx]
	}
	log.Printf("🎯 [DEDUP] MMR selected %d of %d suggestions", len(result), len(pool))
	return result
}
