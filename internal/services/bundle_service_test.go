package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gumbo/internal/models"
)

var bundleBase = time.Date(2026, 2, 10, 14, 0, 0, 0, time.UTC)

func prop(id int64, confidence int, text string, age time.Duration) models.Proposition {
	return models.Proposition{
		ID:         id,
		Text:       text,
		Confidence: confidence,
		Decay:      5,
		CreatedAt:  bundleBase.Add(-age),
		UpdatedAt:  bundleBase.Add(-age),
	}
}

func TestCreateBundles_FactWithSupportingInference(t *testing.T) {
	creator := NewBundleCreator(nil, 0)

	fact := prop(1, 9, "User edits Excel quarterly reports", 0)
	related := prop(2, 5, "User automates Excel formulas", time.Hour)
	unrelated := prop(3, 4, "Enjoys hiking on weekends", 21*24*time.Hour)

	bundles := creator.CreateBundles(
		[]models.Proposition{fact},
		[]models.Proposition{related, unrelated},
		15,
	)

	require.Len(t, bundles, 1)
	bundle := bundles[0]
	assert.Equal(t, int64(1), bundle.AnchorFact.ID)
	require.Len(t, bundle.Inferences, 1)
	assert.Equal(t, int64(2), bundle.Inferences[0].ID)
	assert.True(t, bundle.SharedEntities["excel"])
	assert.Greater(t, bundle.InferenceRelevance[0], bundleRelevanceThreshold)
	assert.InDelta(t, TimeProximity(fact.CreatedAt, related.CreatedAt), bundle.TimeProximityScore, 1e-9)

	// Shared entities are always a subset of the anchor's own entities
	anchorEntities := NewEntityExtractor().Extract(propositionText(fact)).All()
	for entity := range bundle.SharedEntities {
		assert.True(t, anchorEntities[entity], "shared entity %q not in anchor", entity)
	}
}

func TestCreateBundles_NoRelatedInference(t *testing.T) {
	creator := NewBundleCreator(nil, 0)

	fact := prop(1, 9, "User edits Excel quarterly reports", 0)
	distant := prop(2, 5, "Enjoys hiking on weekends", 30*24*time.Hour)

	bundles := creator.CreateBundles([]models.Proposition{fact}, []models.Proposition{distant}, 15)
	assert.Empty(t, bundles)
	assert.NotNil(t, bundles)
}

func TestCreateBundles_FiltersConfidenceBands(t *testing.T) {
	creator := NewBundleCreator(nil, 0)

	weakFact := prop(1, 7, "User edits Excel quarterly reports", 0)
	strongInference := prop(2, 8, "User automates Excel formulas", 0)
	lowInference := prop(3, 2, "User opens Excel daily", 0)

	bundles := creator.CreateBundles(
		[]models.Proposition{weakFact},
		[]models.Proposition{strongInference, lowInference},
		15,
	)
	assert.Empty(t, bundles, "facts below 8 never anchor and inferences outside 3-7 never attach")
}

func TestCreateBundles_OrderingLimitsAndReuse(t *testing.T) {
	creator := NewBundleCreator(nil, 0)

	facts := []models.Proposition{
		prop(10, 8, "User writes Python scripts for the backend", 2*time.Hour),
		prop(11, 10, "User writes Python tests for the backend", 3*time.Hour),
		prop(11, 10, "User writes Python tests for the backend", 3*time.Hour), // duplicate
		prop(12, 9, "User reviews Python pull requests", time.Hour),
	}

	var inferences []models.Proposition
	for i := 0; i < 8; i++ {
		inferences = append(inferences, prop(int64(100+i), 5, fmt.Sprintf("User debugging Python backend issue %d", i), time.Duration(i)*time.Hour))
	}

	bundles := creator.CreateBundles(facts, inferences, 2)
	require.Len(t, bundles, 2, "creation stops at maxBundles")
	assert.Equal(t, int64(11), bundles[0].AnchorFact.ID, "highest confidence first")
	assert.Equal(t, int64(12), bundles[1].AnchorFact.ID)

	for _, bundle := range bundles {
		assert.LessOrEqual(t, len(bundle.Inferences), maxInferencesPerBundle)
		for i := 1; i < len(bundle.InferenceRelevance); i++ {
			assert.GreaterOrEqual(t, bundle.InferenceRelevance[i-1], bundle.InferenceRelevance[i])
		}
	}

	all := creator.CreateBundles(facts, inferences, 15)
	assert.Len(t, all, 3, "each distinct fact anchors at most one bundle")
}

func TestCreateBundles_ZeroMax(t *testing.T) {
	creator := NewBundleCreator(nil, 0)
	bundles := creator.CreateBundles(
		[]models.Proposition{prop(1, 9, "User edits Excel", 0)},
		[]models.Proposition{prop(2, 5, "User automates Excel", 0)},
		0,
	)
	assert.Empty(t, bundles)
}

func TestEntitySimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Entities
		expected float64
	}{
		{
			name:     "no shared populated category",
			a:        Entities{EntityApps: {"excel": true}},
			b:        Entities{EntityPeople: {"sarah chen": true}},
			expected: 0,
		},
		{
			name:     "identical single category",
			a:        Entities{EntityApps: {"excel": true}},
			b:        Entities{EntityApps: {"excel": true}},
			expected: 1,
		},
		{
			name:     "weighted across two categories",
			a:        Entities{EntityApps: {"excel": true}, EntityEmotions: {"stressed": true}},
			b:        Entities{EntityApps: {"excel": true}, EntityEmotions: {"excited": true}},
			expected: 3.0 / 3.5,
		},
		{
			name:     "partial overlap",
			a:        Entities{EntityKeywords: {"report": true, "budget": true}},
			b:        Entities{EntityKeywords: {"report": true, "forecast": true}},
			expected: 1.0 / 3.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, EntitySimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTimeProximity(t *testing.T) {
	assert.Equal(t, 1.0, TimeProximity(bundleBase, bundleBase))
	assert.InDelta(t, 0.5, TimeProximity(bundleBase, bundleBase.Add(84*time.Hour)), 1e-9)
	assert.InDelta(t, 0.5, TimeProximity(bundleBase.Add(84*time.Hour), bundleBase), 1e-9)
	assert.Equal(t, 0.0, TimeProximity(bundleBase, bundleBase.Add(200*time.Hour)))
}
