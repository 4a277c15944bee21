package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gumbo/internal/database"
	"gumbo/internal/models"
)

var storeNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLitePropositionStore {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "propositions.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })

	store := NewSQLitePropositionStore(db)
	store.now = func() time.Time { return storeNow }
	return store
}

func addProp(t *testing.T, store *SQLitePropositionStore, text string, confidence, decay int, age time.Duration) int64 {
	t.Helper()
	id, err := store.AddProposition(context.Background(), models.Proposition{
		Text:       text,
		Reasoning:  "observed on screen",
		Confidence: confidence,
		Decay:      decay,
		CreatedAt:  storeNow.Add(-age),
	})
	require.NoError(t, err)
	return id
}

// addFiller adds unrelated rows so BM25 term weights stay positive in small corpora
func addFiller(t *testing.T, store *SQLitePropositionStore) {
	t.Helper()
	for _, text := range []string{
		"User goes running in the park",
		"User listens to jazz playlists",
		"User waters the garden plants",
		"User books a dentist appointment",
		"User cooks pasta for dinner",
		"User reads a mystery novel",
	} {
		addProp(t, store, text, 5, 5, 2*time.Hour)
	}
}

func TestSQLitePropositionStore_GetProposition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := addProp(t, store, "User drafts investor updates in Notion", 8, 6, time.Hour)

	p, err := store.GetProposition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "User drafts investor updates in Notion", p.Text)
	assert.Equal(t, 8, p.Confidence)
	assert.Equal(t, 6, p.Decay)
	assert.True(t, p.CreatedAt.Equal(storeNow.Add(-time.Hour)))

	_, err = store.GetProposition(ctx, 9999)
	assert.True(t, errors.Is(err, ErrPropositionNotFound))
}

func TestSQLitePropositionStore_AddPropositionValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddProposition(ctx, models.Proposition{Text: "x", Confidence: 11})
	assert.Error(t, err)
	_, err = store.AddProposition(ctx, models.Proposition{Text: "x", Confidence: 5, Decay: 12})
	assert.Error(t, err)
}

func TestSQLitePropositionStore_QueryByConfidence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	oldFact := addProp(t, store, "old fact", 9, 5, 48*time.Hour)
	newFact := addProp(t, store, "new fact", 9, 5, time.Hour)
	topFact := addProp(t, store, "top fact", 10, 5, 72*time.Hour)
	inference := addProp(t, store, "an inference", 5, 5, 30*time.Minute)
	addProp(t, store, "too weak", 2, 5, time.Minute)

	facts, err := store.QueryByConfidence(ctx, 8, 10, 30, models.OrderConfidenceDesc)
	require.NoError(t, err)
	require.Len(t, facts, 3)
	assert.Equal(t, []int64{topFact, newFact, oldFact}, []int64{facts[0].ID, facts[1].ID, facts[2].ID})

	inferences, err := store.QueryByConfidence(ctx, 3, 7, 200, models.OrderCreatedDesc)
	require.NoError(t, err)
	require.Len(t, inferences, 1)
	assert.Equal(t, inference, inferences[0].ID)

	limited, err := store.QueryByConfidence(ctx, 1, 10, 2, models.OrderCreatedDesc)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLitePropositionStore_Search(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	addFiller(t, store)
	both := addProp(t, store, "User builds an Excel budget model", 7, 5, time.Hour)
	excelOnly := addProp(t, store, "User formats Excel charts", 6, 5, time.Hour)

	orHits, err := store.Search(ctx, "excel budget", models.SearchOptions{Mode: models.SearchModeOR, Limit: 20})
	require.NoError(t, err)
	require.Len(t, orHits, 2)
	assert.Equal(t, both, orHits[0].Proposition.ID, "matching both terms ranks first")
	assert.Equal(t, excelOnly, orHits[1].Proposition.ID)
	for _, hit := range orHits {
		assert.GreaterOrEqual(t, hit.Score, 0.0)
		assert.LessOrEqual(t, hit.Score, 1.0)
	}
	assert.Equal(t, 1.0, orHits[0].Score)

	andHits, err := store.Search(ctx, "excel budget", models.SearchOptions{Mode: models.SearchModeAND, Limit: 20})
	require.NoError(t, err)
	require.Len(t, andHits, 1)
	assert.Equal(t, both, andHits[0].Proposition.ID)

	empty, err := store.Search(ctx, "the and of", models.SearchOptions{Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, empty)

	// Quotes and FTS operators in the query are neutralized
	odd, err := store.Search(ctx, `excel" OR NEAR(`, models.SearchOptions{Limit: 20})
	require.NoError(t, err)
	assert.NotEmpty(t, odd)
}

func TestSQLitePropositionStore_SearchDecayAware(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	addFiller(t, store)
	stale := addProp(t, store, "User prepares the Excel budget", 6, 1, 90*24*time.Hour)
	fresh := addProp(t, store, "User prepares the Excel budget", 6, 1, time.Hour)

	hits, err := store.Search(ctx, "excel budget", models.SearchOptions{Limit: 10, DecayAware: true})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, fresh, hits[0].Proposition.ID)
	assert.Equal(t, stale, hits[1].Proposition.ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSQLitePropositionStore_SearchDiversityAware(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	addFiller(t, store)
	for i := 0; i < 4; i++ {
		addProp(t, store, "User edits the Excel budget spreadsheet", 6, 5, time.Hour)
	}
	distinct := addProp(t, store, "User checks Excel budget totals", 6, 5, time.Hour)

	hits, err := store.Search(ctx, "excel budget", models.SearchOptions{Limit: 2, DiversityAware: true})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	ids := []int64{hits[0].Proposition.ID, hits[1].Proposition.ID}
	assert.Contains(t, ids, distinct, "the diverse hit displaces a duplicate")
}

func TestSQLitePropositionStore_SaveAndDeliver(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	trigger := int64(7)
	batch := &models.SuggestionBatch{
		BatchID:              "batch-1",
		TriggerPropositionID: &trigger,
		GeneratedAt:          storeNow,
		ScoringStrategy:      "expected_utility",
		Suggestions: []models.Suggestion{
			{Title: "First", Description: "d1", Category: "workflow_improvement", ExpectedUtility: 3.2, ProbabilityUseful: 0.8, TriggerPropositionID: &trigger, BatchID: "batch-1"},
			{Title: "Second", Description: "d2", Category: "direct_solution", ExpectedUtility: 1.1, ProbabilityUseful: 0.6, ActionItems: []string{"open file"}, BatchID: "batch-1"},
		},
	}

	ids, err := store.SaveSuggestions(ctx, batch)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	recent, err := store.RecentSuggestions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.False(t, recent[0].Delivered)

	require.NoError(t, store.MarkDelivered(ctx, ids))
	recent, err = store.RecentSuggestions(ctx, 10)
	require.NoError(t, err)
	for _, s := range recent {
		assert.True(t, s.Delivered)
	}

	assert.Error(t, store.MarkDelivered(ctx, []string{"not-a-number"}))
	assert.NoError(t, store.MarkDelivered(ctx, nil))
}

func TestSQLitePropositionStore_SaveIsAllOrNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch := &models.SuggestionBatch{
		BatchID:     "dup",
		GeneratedAt: storeNow,
		Suggestions: []models.Suggestion{{Title: "One", Description: "d", Category: "c", BatchID: "dup"}},
	}
	_, err := store.SaveSuggestions(ctx, batch)
	require.NoError(t, err)

	// Same batch id violates the primary key; nothing from the second attempt may persist
	batch.Suggestions = append(batch.Suggestions, models.Suggestion{Title: "Two", Description: "d", Category: "c", BatchID: "dup"})
	_, err = store.SaveSuggestions(ctx, batch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistenceFailed))

	recent, err := store.RecentSuggestions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestSQLitePropositionStore_PruneSuggestions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, age := range []time.Duration{40 * 24 * time.Hour, time.Hour} {
		batchID := []string{"old", "new"}[i]
		_, err := store.SaveSuggestions(ctx, &models.SuggestionBatch{
			BatchID:         batchID,
			GeneratedAt:     storeNow.Add(-age),
			ScoringStrategy: "priority",
			Suggestions: []models.Suggestion{
				{Title: "A " + batchID, Description: "d", Category: "workflow", BatchID: batchID},
				{Title: "B " + batchID, Description: "d", Category: "learning", BatchID: batchID},
			},
		})
		require.NoError(t, err)
	}

	deleted, err := store.PruneSuggestions(ctx, storeNow.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	recent, err := store.RecentSuggestions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	for _, s := range recent {
		assert.Equal(t, "new", s.BatchID)
	}

	deleted, err = store.PruneSuggestions(ctx, storeNow.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestBuildFTSQuery(t *testing.T) {
	assert.Equal(t, `"excel" OR "budget"`, buildFTSQuery("Excel budget excel", models.SearchModeOR))
	assert.Equal(t, `"excel" "budget"`, buildFTSQuery("excel budget", models.SearchModeAND))
	assert.Equal(t, "", buildFTSQuery(`"" the`, models.SearchModeOR))
}
