package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gumbo/internal/models"
)

func TestDedupe_IdenticalTextsCollapseToBest(t *testing.T) {
	utilities := []float64{0.3, 0.9, 0.1, 0.7, 1.4, 0.2, 0.8, 0.5, 0.6, 0.4}
	var scored []models.ScoredCandidate
	for _, u := range utilities {
		scored = append(scored, scoredWith("Review your budget", CategoryDirectSolution, u))
	}

	kept := Dedupe(scored, DefaultSimilarityThreshold)
	require.Len(t, kept, 1)
	assert.Equal(t, 1.4, kept[0].Utility)
}

func TestDedupe_TieKeepsEarlier(t *testing.T) {
	first := scoredWith("Review your budget", CategoryDirectSolution, 0.5)
	second := scoredWith("review  your BUDGET", CategoryWorkflowImprovement, 0.5)
	second.Candidate.Description = first.Candidate.Description

	kept := Dedupe([]models.ScoredCandidate{first, second}, DefaultSimilarityThreshold)
	require.Len(t, kept, 1)
	assert.Equal(t, CategoryDirectSolution, kept[0].Candidate.Category)
}

func TestDedupe_KeepsDistinctAndPreservesOrder(t *testing.T) {
	scored := []models.ScoredCandidate{
		scoredWith("Excel budget template cleanup", CategoryWorkflowImprovement, 0.2),
		scoredWith("Excel budget template cleanup today", CategoryWorkflowImprovement, 0.9),
		scoredWith("Jazz playlist for focus", CategoryTimingOptimization, 0.5),
	}

	kept := Dedupe(scored, DefaultSimilarityThreshold)
	require.Len(t, kept, 3)
	for i := range scored {
		assert.Equal(t, scored[i].Candidate.Title, kept[i].Candidate.Title)
	}
}

func TestDedupe_InvalidThresholdUsesDefault(t *testing.T) {
	scored := []models.ScoredCandidate{
		scoredWith("Excel budget template cleanup", CategoryWorkflowImprovement, 0.2),
		scoredWith("Excel budget template cleanup today", CategoryWorkflowImprovement, 0.9),
	}

	assert.Len(t, Dedupe(scored, 0), 2)
	assert.Len(t, Dedupe(scored, 1.5), 2)
	assert.Len(t, Dedupe(scored, 0.5), 1)
}

func TestDedupe_SmallInputs(t *testing.T) {
	assert.Empty(t, Dedupe(nil, DefaultSimilarityThreshold))
	one := []models.ScoredCandidate{scoredWith("Only", CategoryDirectSolution, 1)}
	assert.Equal(t, one, Dedupe(one, DefaultSimilarityThreshold))
}

var diverseWords = []string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot",
	"golf", "hotel", "india", "juliet", "kilo", "lima",
}

func diversePool(perCategory map[string]int) []models.ScoredCandidate {
	var pool []models.ScoredCandidate
	word := 0
	utility := 1.0
	for _, category := range []string{CategoryDirectSolution, CategoryWorkflowImprovement, CategoryTimingOptimization} {
		for i := 0; i < perCategory[category]; i++ {
			title := fmt.Sprintf("%s plan", diverseWords[word])
			pool = append(pool, scoredWith(title, category, utility))
			word++
			utility -= 0.05
		}
	}
	return pool
}

func tally(scored []models.ScoredCandidate) map[string]int {
	counts := map[string]int{}
	for _, sc := range scored {
		counts[sc.Candidate.Category]++
	}
	return counts
}

func TestSelectDiverse_CapsCategoriesAndTotal(t *testing.T) {
	pool := diversePool(map[string]int{
		CategoryDirectSolution:      5,
		CategoryWorkflowImprovement: 3,
		CategoryTimingOptimization:  3,
	})

	selected := SelectDiverse(pool, DiversityOptions{MaxTotal: 8, MaxPerCategory: 3, Lambda: 0.7})
	require.Len(t, selected, 8)
	for category, n := range tally(selected) {
		assert.LessOrEqual(t, n, 3, category)
	}
	assert.Equal(t, pool[0].Candidate.Title, selected[0].Candidate.Title, "first pick is the highest utility")
}

func TestSelectDiverse_UnderBudgetReturnsSortedCapped(t *testing.T) {
	pool := diversePool(map[string]int{
		CategoryDirectSolution:      4,
		CategoryWorkflowImprovement: 1,
		CategoryTimingOptimization:  1,
	})
	// Reverse so the output order has to come from sorting
	for i, j := 0, len(pool)-1; i < j; i, j = i+1, j-1 {
		pool[i], pool[j] = pool[j], pool[i]
	}

	selected := SelectDiverse(pool, DiversityOptions{MaxTotal: 8, MaxPerCategory: 3})
	require.Len(t, selected, 5)
	assert.Equal(t, 3, tally(selected)[CategoryDirectSolution])
	for i := 1; i < len(selected); i++ {
		assert.GreaterOrEqual(t, selected[i-1].Utility, selected[i].Utility)
	}
}

func TestSelectDiverse_BackfillsWhenFewCategories(t *testing.T) {
	pool := diversePool(map[string]int{CategoryDirectSolution: 6})

	selected := SelectDiverse(pool, DiversityOptions{MaxTotal: 5, MaxPerCategory: 3})
	assert.Len(t, selected, 5)
}

func TestSelectDiverse_Deterministic(t *testing.T) {
	pool := diversePool(map[string]int{
		CategoryDirectSolution:      5,
		CategoryWorkflowImprovement: 4,
		CategoryTimingOptimization:  3,
	})
	opts := DiversityOptions{MaxTotal: 5, MaxPerCategory: 2}

	first := SelectDiverse(pool, opts)
	assert.Len(t, first, 5)
	for i := 0; i < 200; i++ {
		require.Equal(t, first, SelectDiverse(pool, opts), "run %d", i)
	}
}

func TestSelectMMR_EqualScoresKeepEarlierItems(t *testing.T) {
	var pool []models.ScoredCandidate
	for _, word := range diverseWords[:6] {
		pool = append(pool, scoredWith(word+" plan", CategoryDirectSolution, 0.5))
	}

	for i := 0; i < 50; i++ {
		picked := selectMMR(pool, 3, 0.7)
		require.Len(t, picked, 3)
		assert.Equal(t, "alpha plan", picked[0].Candidate.Title)
		assert.Equal(t, "bravo plan", picked[1].Candidate.Title)
		assert.Equal(t, "charlie plan", picked[2].Candidate.Title)
	}
}

func TestDedupe_PortVariantsSurvive(t *testing.T) {
	var scored []models.ScoredCandidate
	for i := 0; i < 10; i++ {
		sc := scoredWith("Restart the dev server", CategoryDirectSolution, 1-float64(i)*0.01)
		sc.Candidate.Description = fmt.Sprintf("Free port 300%d before restarting the server", i)
		scored = append(scored, sc)
	}

	kept := Dedupe(scored, DefaultSimilarityThreshold)
	assert.Len(t, kept, 10, "a differing port number keeps similarity under the threshold")
}

func TestSelectDiverse_Empty(t *testing.T) {
	selected := SelectDiverse(nil, DiversityOptions{})
	assert.NotNil(t, selected)
	assert.Empty(t, selected)
}

func TestSelectMMR_TradesRelevanceForDiversity(t *testing.T) {
	pool := []models.ScoredCandidate{
		scoredWith("Excel budget template cleanup", CategoryWorkflowImprovement, 0.9),
		scoredWith("Excel budget template cleanup today", CategoryWorkflowImprovement, 0.85),
		scoredWith("Jazz playlist for focus", CategoryTimingOptimization, 0.8),
	}

	diverse := selectMMR(pool, 2, 0.5)
	require.Len(t, diverse, 2)
	assert.Equal(t, "Excel budget template cleanup", diverse[0].Candidate.Title)
	assert.Equal(t, "Jazz playlist for focus", diverse[1].Candidate.Title)

	relevant := selectMMR(pool, 2, 1)
	require.Len(t, relevant, 2)
	assert.Equal(t, "Excel budget template cleanup today", relevant[1].Candidate.Title)
}

func TestSimilarityMatrix(t *testing.T) {
	matrix := SimilarityMatrix([]string{
		"Review your budget",
		"review   YOUR budget",
		"Jazz playlist for focus",
		"!!!",
		"???",
	})

	require.Len(t, matrix, 5)
	for i := range matrix {
		assert.Equal(t, 1.0, matrix[i][i])
		for j := range matrix {
			assert.Equal(t, matrix[i][j], matrix[j][i])
			assert.GreaterOrEqual(t, matrix[i][j], 0.0)
			assert.LessOrEqual(t, matrix[i][j], 1.0)
		}
	}
	assert.Equal(t, 1.0, matrix[0][1], "texts equal after normalization")
	assert.Zero(t, matrix[0][2])
	assert.Zero(t, matrix[3][4], "different texts without terms share nothing")
}

func TestSimilarityMatrix_StableAcrossCalls(t *testing.T) {
	texts := make([]string, 0, len(diverseWords))
	for _, word := range diverseWords {
		texts = append(texts, "Details about "+word+" plan and the weekly budget review")
	}

	first := SimilarityMatrix(texts)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, SimilarityMatrix(texts), "run %d", i)
	}
}

func TestSimilarityMatrix_BigramsSeparateWordOrder(t *testing.T) {
	matrix := SimilarityMatrix([]string{
		"budget review weekly",
		"weekly review budget",
		"garden party invite",
	})
	assert.Less(t, matrix[0][1], 1.0)
	assert.Greater(t, matrix[0][1], 0.3)
}
