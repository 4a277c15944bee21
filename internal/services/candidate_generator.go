package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gumbo/internal/models"
)

const (
	defaultCandidateCount     = 5
	defaultMaxCandidates      = 8
	defaultGenerationTokens   = 1000
	bundleGenerationMaxTokens = 800
	defaultUserName           = "the user"
)

// CandidateGenerator produces raw suggestion candidates from a trigger or a bundle
type CandidateGenerator interface {
	Generate(ctx context.Context, trigger models.Proposition, related models.ContextRetrievalResult) ([]models.SuggestionCandidate, error)
	GenerateFromBundle(ctx context.Context, bundle models.Bundle) (models.SuggestionCandidate, error)
}

// CandidateGenerationService prompts the completion service for suggestion candidates.
// Generate never returns an empty slice: on failure it returns the fallback candidate
// together with an error wrapping ErrGenerationFailed.
type CandidateGenerationService struct {
	completion CompletionService
	timeout    time.Duration
	maxTokens  int
	userName   string

	mu            sync.RWMutex
	count         int
	maxCandidates int
}

// NewCandidateGenerationService creates a generator. maxTokens <= 0 uses 1000.
func NewCandidateGenerationService(completion CompletionService, timeout time.Duration, maxTokens int) *CandidateGenerationService {
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}
	if maxTokens <= 0 {
		maxTokens = defaultGenerationTokens
	}
	return &CandidateGenerationService{
		completion:    completion,
		timeout:       timeout,
		maxTokens:     maxTokens,
		userName:      defaultUserName,
		count:         defaultCandidateCount,
		maxCandidates: defaultMaxCandidates,
	}
}

// SetUserName sets the name used in bundle prompts
func (g *CandidateGenerationService) SetUserName(name string) {
	if name = strings.TrimSpace(name); name != "" {
		g.userName = name
	}
}

// SetCounts changes the requested candidate count and the hard cap on parsed candidates
func (g *CandidateGenerationService) SetCounts(count, maxCandidates int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if count > 0 {
		g.count = count
	}
	if maxCandidates > 0 {
		g.maxCandidates = maxCandidates
	}
	if g.count > g.maxCandidates {
		g.count = g.maxCandidates
	}
}

func (g *CandidateGenerationService) counts() (int, int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.count, g.maxCandidates
}

// Generate asks for candidates for trigger using the retrieved context
func (g *CandidateGenerationService) Generate(ctx context.Context, trigger models.Proposition, related models.ContextRetrievalResult) ([]models.SuggestionCandidate, error) {
	count, maxCandidates := g.counts()

	if g.completion == nil {
		return []models.SuggestionCandidate{FallbackCandidate()}, fmt.Errorf("%w: no completion service configured", ErrGenerationFailed)
	}

	prompt := buildCandidatePrompt(trigger, related.RelatedPropositions, count)
	response, err := g.completion.Complete(ctx, prompt, g.maxTokens, g.timeout)
	if err != nil {
		log.Printf("⚠️ [CANDIDATES] Generation failed for proposition %d: %v", trigger.ID, err)
		return []models.SuggestionCandidate{FallbackCandidate()}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	candidates, err := parseCandidateList(response)
	if err != nil {
		log.Printf("⚠️ [CANDIDATES] Unusable model output (length: %d): %v", len(response), err)
		return []models.SuggestionCandidate{FallbackCandidate()}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	if len(candidates) != count {
		log.Printf("⚠️ [CANDIDATES] Expected %d candidates, got %d", count, len(candidates))
	}
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	log.Printf("💡 [CANDIDATES] Generated %d candidates for proposition %d", len(candidates), trigger.ID)
	return candidates, nil
}

// GenerateFromBundle asks for a single candidate connecting the bundle's fact and inferences
func (g *CandidateGenerationService) GenerateFromBundle(ctx context.Context, bundle models.Bundle) (models.SuggestionCandidate, error) {
	if g.completion == nil {
		return models.SuggestionCandidate{}, fmt.Errorf("%w: no completion service configured", ErrGenerationFailed)
	}

	response, err := g.completion.Complete(ctx, buildBundlePrompt(g.userName, bundle), bundleGenerationMaxTokens, g.timeout)
	if err != nil {
		return models.SuggestionCandidate{}, fmt.Errorf("%w: bundle %d: %v", ErrGenerationFailed, bundle.AnchorFact.ID, err)
	}

	candidate, err := parseBundleCandidate(response)
	if err != nil {
		return models.SuggestionCandidate{}, fmt.Errorf("%w: bundle %d: %w", ErrGenerationFailed, bundle.AnchorFact.ID, err)
	}
	return candidate, nil
}

// FallbackCandidate is the safe suggestion returned when generation produces nothing
func FallbackCandidate() models.SuggestionCandidate {
	return models.SuggestionCandidate{
		Title:        fallbackTitle,
		Description:  fallbackDescription,
		Category:     fallbackCategory,
		Rationale:    fallbackRationale,
		PriorityHint: "medium",
		IsFallback:   true,
	}
}

// rawCandidate tolerates the shapes models actually return (action_items as a string, etc.)
type rawCandidate struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Rationale   string          `json:"rationale"`
	Priority    string          `json:"priority"`
	Urgency     string          `json:"urgency"`
	Evidence    string          `json:"evidence"`
	ActionItems json.RawMessage `json:"action_items"`
}

func parseCandidateList(response string) ([]models.SuggestionCandidate, error) {
	parsed := ParseLLMJSON(response)

	var payload struct {
		Suggestions []rawCandidate `json:"suggestions"`
	}
	if err := parsed.Decode(&payload); err != nil {
		return nil, err
	}

	candidates := make([]models.SuggestionCandidate, 0, len(payload.Suggestions))
	for _, raw := range payload.Suggestions {
		if candidate, ok := normalizeCandidate(raw); ok {
			candidates = append(candidates, candidate)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no usable suggestions", ErrMalformedModelOutput)
	}
	return candidates, nil
}

// parseBundleCandidate accepts a bare suggestion object or {"suggestions": [...]}
func parseBundleCandidate(response string) (models.SuggestionCandidate, error) {
	parsed := ParseLLMJSON(response)
	if !parsed.Parsed() {
		return models.SuggestionCandidate{}, parsed.Decode(nil)
	}

	if _, wrapped := parsed.Value["suggestions"]; wrapped {
		candidates, err := parseCandidateList(response)
		if err != nil {
			return models.SuggestionCandidate{}, err
		}
		return candidates[0], nil
	}

	var raw rawCandidate
	if err := parsed.Decode(&raw); err != nil {
		return models.SuggestionCandidate{}, err
	}
	candidate, ok := normalizeCandidate(raw)
	if !ok {
		return models.SuggestionCandidate{}, fmt.Errorf("%w: suggestion has no title or description", ErrMalformedModelOutput)
	}
	return candidate, nil
}

// normalizeCandidate sanitizes and bounds every field. Candidates with neither
// title nor description are rejected.
func normalizeCandidate(raw rawCandidate) (models.SuggestionCandidate, bool) {
	title := sanitizeSuggestionText(raw.Title, models.MaxTitleLength)
	description := sanitizeSuggestionText(raw.Description, models.MaxDescriptionLength)
	if title == "" && description == "" {
		return models.SuggestionCandidate{}, false
	}
	if title == "" {
		title = truncateText(description, 60)
	}
	if description == "" {
		description = title
	}

	category := strings.ToLower(sanitizeSuggestionText(raw.Category, models.MaxCategoryLength))
	if category == "" {
		category = "general"
	}

	evidence := sanitizeSuggestionText(raw.Evidence, models.MaxRationaleLength)
	rationale := sanitizeSuggestionText(raw.Rationale, models.MaxRationaleLength)
	if rationale == "" {
		rationale = evidence
	}

	return models.SuggestionCandidate{
		Title:        title,
		Description:  description,
		Category:     category,
		Rationale:    rationale,
		PriorityHint: normalizePriorityHint(raw.Priority),
		Urgency:      normalizeUrgency(raw.Urgency),
		ActionItems:  parseActionItems(raw.ActionItems),
		Evidence:     evidence,
	}, true
}

func normalizePriorityHint(hint string) string {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}

// normalizeUrgency returns "" for unknown values
func normalizeUrgency(urgency string) string {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(urgency), " ", "_")) {
	case models.UrgencyNow:
		return models.UrgencyNow
	case models.UrgencyToday:
		return models.UrgencyToday
	case models.UrgencyThisWeek:
		return models.UrgencyThisWeek
	default:
		return ""
	}
}

// parseActionItems accepts a JSON array of strings or a single string
func parseActionItems(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		items = []string{single}
	}

	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if item = sanitizeSuggestionText(item, models.MaxRationaleLength); item != "" {
			cleaned = append(cleaned, item)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}
