package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"gumbo/internal/jobs"
	"gumbo/internal/models"
)

// HealthReporter reports engine health
type HealthReporter interface {
	Health() models.EngineHealth
}

// JobStatusReporter reports scheduled job status
type JobStatusReporter interface {
	GetStatus() []jobs.JobStatus
}

// Pinger is a backing service the detail report checks on every request
type Pinger interface {
	Ping(ctx context.Context) error
}

const dependencyPingTimeout = 2 * time.Second

// HealthHandler handles health check requests
type HealthHandler struct {
	engine       HealthReporter
	jobs         JobStatusReporter
	dependencies map[string]Pinger
}

// NewHealthHandler creates a new health handler. jobs may be nil.
func NewHealthHandler(engine HealthReporter, jobs JobStatusReporter) *HealthHandler {
	return &HealthHandler{engine: engine, jobs: jobs, dependencies: map[string]Pinger{}}
}

// AddDependency registers a backing service for the detail report
func (h *HealthHandler) AddDependency(name string, p Pinger) *HealthHandler {
	h.dependencies[name] = p
	return h
}

// pingDependencies returns name -> "ok" or the ping error
func (h *HealthHandler) pingDependencies(ctx context.Context) map[string]string {
	names := make([]string, 0, len(h.dependencies))
	for name := range h.dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make(map[string]string, len(names))
	for _, name := range names {
		pingCtx, cancel := context.WithTimeout(ctx, dependencyPingTimeout)
		if err := h.dependencies[name].Ping(pingCtx); err != nil {
			result[name] = err.Error()
		} else {
			result[name] = "ok"
		}
		cancel()
	}
	return result
}

// Handle responds with a liveness summary. Degraded answers 200 and a
// stopped engine answers 503.
// GET /health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	report := h.engine.Health()

	status := fiber.StatusOK
	if report.Status == models.EngineStopped {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"status":    report.Status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Detail responds with the full engine health report
// GET /api/suggestions/health
func (h *HealthHandler) Detail(c *fiber.Ctx) error {
	report := h.engine.Health()

	resp := fiber.Map{
		"engine":    report,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if h.jobs != nil {
		resp["jobs"] = h.jobs.GetStatus()
	}
	if len(h.dependencies) > 0 {
		resp["dependencies"] = h.pingDependencies(c.UserContext())
	}
	return c.JSON(resp)
}
