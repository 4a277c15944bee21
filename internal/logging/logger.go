package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithBatch returns a logger with generation-cycle fields attached.
// triggerID is nil for bundle sweeps.
func WithBatch(batchID string, triggerID *int64) *slog.Logger {
	if triggerID == nil {
		return slog.With("batch_id", batchID, "path", "bundle_sweep")
	}
	return slog.With("batch_id", batchID, "trigger_proposition_id", *triggerID)
}
