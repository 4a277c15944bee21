package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"gumbo/internal/models"
)

const (
	// FallbackQuery is reported as the query used when retrieval degrades
	FallbackQuery = "fallback_query"

	searchQueryMaxTokens = 50
	defaultSearchLimit   = 20
	defaultContextLimit  = 10
)

// ContextRetriever finds historical propositions related to a trigger
type ContextRetriever interface {
	Retrieve(ctx context.Context, trigger models.Proposition) models.ContextRetrievalResult
}

// ContextRetrievalService asks the completion service for a short search query and
// runs a decay-aware ranked search with it. It never returns an error: any failure
// yields an empty, degraded result.
type ContextRetrievalService struct {
	completion CompletionService
	store      PropositionStore
	timeout    time.Duration
	queryCache *cache.Cache

	mu           sync.RWMutex
	searchLimit  int
	contextLimit int
}

// NewContextRetrievalService creates a retriever. Generated queries are cached per
// trigger text so repeated triggers skip the completion call.
func NewContextRetrievalService(completion CompletionService, store PropositionStore, timeout time.Duration) *ContextRetrievalService {
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}
	return &ContextRetrievalService{
		completion:   completion,
		store:        store,
		timeout:      timeout,
		queryCache:   cache.New(30*time.Minute, 10*time.Minute),
		searchLimit:  defaultSearchLimit,
		contextLimit: defaultContextLimit,
	}
}

// SetLimits changes the search pool size and the number of propositions kept
func (s *ContextRetrievalService) SetLimits(searchLimit, contextLimit int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if searchLimit > 0 {
		s.searchLimit = searchLimit
	}
	if contextLimit > 0 {
		s.contextLimit = contextLimit
	}
}

func (s *ContextRetrievalService) limits() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searchLimit, s.contextLimit
}

// Retrieve returns up to contextLimit propositions related to trigger, excluding trigger itself
func (s *ContextRetrievalService) Retrieve(ctx context.Context, trigger models.Proposition) models.ContextRetrievalResult {
	start := time.Now()
	searchLimit, contextLimit := s.limits()

	result, err := s.retrieve(ctx, trigger, searchLimit, contextLimit)
	if err != nil {
		log.Printf("⚠️ [CONTEXT-RETRIEVAL] Retrieval for proposition %d degraded: %v", trigger.ID, err)
		return models.ContextRetrievalResult{
			RelatedPropositions: []models.ContextualProposition{},
			QueryUsed:           FallbackQuery,
			RetrievalTime:       time.Since(start),
			Degraded:            true,
		}
	}

	result.RetrievalTime = time.Since(start)
	log.Printf("📋 [CONTEXT-RETRIEVAL] Retrieved %d related propositions (of %d) in %.2fs",
		len(result.RelatedPropositions), result.TotalFound, result.RetrievalTime.Seconds())
	return result
}

func (s *ContextRetrievalService) retrieve(ctx context.Context, trigger models.Proposition, searchLimit, contextLimit int) (models.ContextRetrievalResult, error) {
	query, err := s.searchQuery(ctx, trigger)
	if err != nil {
		return models.ContextRetrievalResult{}, err
	}

	hits, err := s.store.Search(ctx, query, models.SearchOptions{
		Mode:           models.SearchModeOR,
		Limit:          searchLimit,
		DecayAware:     true,
		DiversityAware: true,
	})
	if err != nil {
		return models.ContextRetrievalResult{}, fmt.Errorf("%w: search: %v", ErrRetrievalFailed, err)
	}

	related := make([]models.ContextualProposition, 0, contextLimit)
	for _, hit := range hits {
		if hit.Proposition.ID == trigger.ID {
			continue
		}
		related = append(related, models.ContextualProposition{
			Proposition:     hit.Proposition,
			SimilarityScore: clamp01(hit.Score),
		})
	}

	sort.SliceStable(related, func(i, j int) bool {
		return related[i].SimilarityScore > related[j].SimilarityScore
	})
	if len(related) > contextLimit {
		related = related[:contextLimit]
	}

	return models.ContextRetrievalResult{
		RelatedPropositions: related,
		TotalFound:          len(hits),
		QueryUsed:           query,
	}, nil
}

// searchQuery returns the cached or freshly generated query for trigger
func (s *ContextRetrievalService) searchQuery(ctx context.Context, trigger models.Proposition) (string, error) {
	cacheKey := trigger.Text + "\x00" + trigger.Reasoning
	if cached, found := s.queryCache.Get(cacheKey); found {
		return cached.(string), nil
	}

	if s.completion == nil {
		return "", fmt.Errorf("%w: no completion service configured", ErrRetrievalFailed)
	}

	response, err := s.completion.Complete(ctx, buildSearchQueryPrompt(trigger), searchQueryMaxTokens, s.timeout)
	if err != nil {
		return "", fmt.Errorf("%w: query generation: %v", ErrRetrievalFailed, err)
	}

	query := cleanSearchQuery(response)
	if query == "" {
		return "", fmt.Errorf("%w: empty search query", ErrRetrievalFailed)
	}

	log.Printf("🔍 [CONTEXT-RETRIEVAL] Generated search query: '%s'", query)
	s.queryCache.Set(cacheKey, query, cache.DefaultExpiration)
	return query, nil
}

// cleanSearchQuery keeps the first non-empty line without surrounding quotes
func cleanSearchQuery(response string) string {
	for _, line := range strings.Split(response, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "\"'`")
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
