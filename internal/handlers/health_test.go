package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gumbo/internal/jobs"
	"gumbo/internal/models"
)

type stubJobs struct{}

func (stubJobs) GetStatus() []jobs.JobStatus {
	return []jobs.JobStatus{{Name: "bundle_sweep", Schedule: "*/30 * * * *", NextRunTime: time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)}}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("ping without deadline")
	}
	return p.err
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		status     string
		wantStatus int
	}{
		{models.EngineHealthy, fiber.StatusOK},
		{models.EngineDegraded, fiber.StatusOK},
		{models.EngineStopped, fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			engine := newStubEngine()
			engine.health = models.EngineHealth{Status: tt.status}

			app := fiber.New()
			app.Get("/health", NewHealthHandler(engine, nil).Handle)

			status, body, _ := doJSON(t, app, "GET", "/health", "")
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.status, body["status"])
			assert.NotEmpty(t, body["timestamp"])
		})
	}
}

func TestHealthHandler_Detail(t *testing.T) {
	engine := newStubEngine()
	engine.health = models.EngineHealth{
		Status:     models.EngineDegraded,
		LastError:  "persistence: disk full",
		Components: map[string]string{"completion": "healthy"},
	}

	app := fiber.New()
	app.Get("/detail", NewHealthHandler(engine, stubJobs{}).Detail)
	status, body, _ := doJSON(t, app, "GET", "/detail", "")
	require.Equal(t, fiber.StatusOK, status)

	report, ok := body["engine"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, models.EngineDegraded, report["status"])
	assert.Equal(t, "persistence: disk full", report["last_error"])

	jobList, ok := body["jobs"].([]interface{})
	require.True(t, ok)
	require.Len(t, jobList, 1)
	assert.Equal(t, "bundle_sweep", jobList[0].(map[string]interface{})["name"])

	app = fiber.New()
	app.Get("/detail", NewHealthHandler(engine, nil).Detail)
	_, body, _ = doJSON(t, app, "GET", "/detail", "")
	assert.NotContains(t, body, "jobs")
}

func TestHealthHandler_DetailDependencies(t *testing.T) {
	engine := newStubEngine()
	engine.health = models.EngineHealth{Status: models.EngineHealthy}

	handler := NewHealthHandler(engine, nil).
		AddDependency("mongodb", stubPinger{}).
		AddDependency("redis", stubPinger{err: errors.New("connection refused")})

	app := fiber.New()
	app.Get("/detail", handler.Detail)
	status, body, _ := doJSON(t, app, "GET", "/detail", "")
	require.Equal(t, fiber.StatusOK, status)

	deps, ok := body["dependencies"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{
		"mongodb": "ok",
		"redis":   "connection refused",
	}, deps)

	app = fiber.New()
	app.Get("/detail", NewHealthHandler(engine, nil).Detail)
	_, body, _ = doJSON(t, app, "GET", "/detail", "")
	assert.NotContains(t, body, "dependencies")
}
