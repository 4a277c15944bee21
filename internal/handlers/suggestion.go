package handlers

import (
	"context"
	"errors"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"gumbo/internal/config"
	"gumbo/internal/models"
	"gumbo/internal/services"
)

// SuggestionEngine is what the HTTP layer needs from the engine
type SuggestionEngine interface {
	Trigger(ctx context.Context, propositionID int64) services.TriggerResult
	GenerateFromBundles(ctx context.Context) services.TriggerResult
	AddProposition(ctx context.Context, p models.Proposition) (int64, error)
	RecentSuggestions(ctx context.Context, limit int) ([]models.Suggestion, error)
	RateLimitStatus() models.RateLimitStatus
	ResetRateLimit()
	Tuning() config.Tuning
}

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// SuggestionHandler handles suggestion generation requests
type SuggestionHandler struct {
	engine         SuggestionEngine
	triggerTimeout time.Duration
}

// NewSuggestionHandler creates a new suggestion handler. triggerTimeout bounds
// cycles started in the background by proposition ingestion.
func NewSuggestionHandler(engine SuggestionEngine, triggerTimeout time.Duration) *SuggestionHandler {
	if triggerTimeout <= 0 {
		triggerTimeout = 2 * time.Minute
	}
	return &SuggestionHandler{engine: engine, triggerTimeout: triggerTimeout}
}

// RegisterRoutes mounts the suggestion API. The rate-limit reset is only
// mounted when admin endpoints are enabled.
func (h *SuggestionHandler) RegisterRoutes(router fiber.Router, adminEndpoints bool) {
	router.Post("/propositions", h.IngestProposition)

	suggestions := router.Group("/suggestions")
	suggestions.Post("/trigger/:id", h.Trigger)
	suggestions.Post("/sweep", h.Sweep)
	suggestions.Get("/recent", h.Recent)
	suggestions.Get("/rate-limit", h.RateLimit)
	if adminEndpoints {
		suggestions.Post("/rate-limit/reset", h.ResetRateLimit)
	}
}

type triggerResponse struct {
	services.TriggerResult
	WaitTimeSeconds float64 `json:"wait_time_seconds,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Trigger runs one suggestion cycle for a stored proposition
// POST /api/suggestions/trigger/:id
func (h *SuggestionHandler) Trigger(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Proposition ID must be a positive integer",
		})
	}

	result := h.engine.Trigger(c.UserContext(), id)
	return h.respond(c, result)
}

// Sweep runs one bundle-driven cycle over the whole proposition store
// POST /api/suggestions/sweep
func (h *SuggestionHandler) Sweep(c *fiber.Ctx) error {
	result := h.engine.GenerateFromBundles(c.UserContext())
	return h.respond(c, result)
}

func (h *SuggestionHandler) respond(c *fiber.Ctx, result services.TriggerResult) error {
	resp := triggerResponse{TriggerResult: result}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}

	switch {
	case result.Deferred():
		resp.WaitTimeSeconds = result.WaitTime.Seconds()
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(result.WaitTime.Seconds()))))
		return c.Status(fiber.StatusTooManyRequests).JSON(resp)
	case result.Failed() && errors.Is(result.Err, services.ErrPropositionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(resp)
	case result.Failed() && result.FailedStep == services.StepLifecycle:
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	case result.Failed() && errors.Is(result.Err, services.ErrNoBundles):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(resp)
	case result.Failed():
		log.Printf("❌ [SUGGESTIONS] Cycle failed at %s: %v", result.FailedStep, result.Err)
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}
	return c.JSON(resp)
}

// IngestPropositionRequest is the body of POST /api/propositions
type IngestPropositionRequest struct {
	Text       string `json:"text"`
	Reasoning  string `json:"reasoning"`
	Confidence int    `json:"confidence"`
	Decay      int    `json:"decay"`
}

// IngestProposition stores a proposition and, when it is confident enough,
// starts a suggestion cycle for it in the background
// POST /api/propositions
func (h *SuggestionHandler) IngestProposition(c *fiber.Ctx) error {
	var req IngestPropositionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}
	if req.Confidence < 1 || req.Confidence > models.MaxConfidence {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "confidence must be between 1 and 10",
		})
	}
	if req.Decay < 0 || req.Decay > 10 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "decay must be between 1 and 10",
		})
	}

	id, err := h.engine.AddProposition(c.UserContext(), models.Proposition{
		Text:       req.Text,
		Reasoning:  req.Reasoning,
		Confidence: req.Confidence,
		Decay:      req.Decay,
	})
	if err != nil {
		log.Printf("❌ [SUGGESTIONS] Failed to store proposition: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store proposition",
		})
	}

	triggered := req.Confidence >= h.engine.Tuning().TriggerConfidence
	if triggered {
		go h.triggerInBackground(id)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":        id,
		"triggered": triggered,
	})
}

func (h *SuggestionHandler) triggerInBackground(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), h.triggerTimeout)
	defer cancel()

	result := h.engine.Trigger(ctx, id)
	switch {
	case result.Deferred():
		log.Printf("⏳ [SUGGESTIONS] Trigger for proposition %d deferred for %v", id, result.WaitTime)
	case result.Failed():
		log.Printf("⚠️  [SUGGESTIONS] Trigger for proposition %d failed at %s: %v", id, result.FailedStep, result.Err)
	}
}

// Recent lists the most recently persisted suggestions
// GET /api/suggestions/recent?limit=N
func (h *SuggestionHandler) Recent(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultRecentLimit)
	if limit < 1 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	suggestions, err := h.engine.RecentSuggestions(c.UserContext(), limit)
	if err != nil {
		log.Printf("❌ [SUGGESTIONS] Failed to list recent suggestions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list suggestions",
		})
	}
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}

	return c.JSON(fiber.Map{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

// RateLimit returns the token bucket status
// GET /api/suggestions/rate-limit
func (h *SuggestionHandler) RateLimit(c *fiber.Ctx) error {
	return c.JSON(h.engine.RateLimitStatus())
}

// ResetRateLimit refills the token bucket
// POST /api/suggestions/rate-limit/reset
func (h *SuggestionHandler) ResetRateLimit(c *fiber.Ctx) error {
	h.engine.ResetRateLimit()
	log.Println("🔄 [SUGGESTIONS] Rate limiter reset")
	return c.JSON(h.engine.RateLimitStatus())
}
