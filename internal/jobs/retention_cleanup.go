package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"gumbo/internal/services"
)

// RetentionCleanupJob deletes suggestion batches older than the retention window
type RetentionCleanupJob struct {
	pruner    services.SuggestionPruner
	retention time.Duration
	now       func() time.Time
}

// NewRetentionCleanupJob creates a new retention cleanup job
func NewRetentionCleanupJob(pruner services.SuggestionPruner, retention time.Duration) *RetentionCleanupJob {
	return &RetentionCleanupJob{
		pruner:    pruner,
		retention: retention,
		now:       time.Now,
	}
}

func (j *RetentionCleanupJob) Name() string { return "suggestion_retention" }

// Run prunes everything generated before now minus the retention window
func (j *RetentionCleanupJob) Run(ctx context.Context) error {
	if j.pruner == nil || j.retention <= 0 {
		log.Println("[RETENTION] Retention cleanup disabled")
		return nil
	}

	log.Println("[RETENTION] Starting suggestion retention cleanup...")
	startTime := j.now()
	cutoff := startTime.Add(-j.retention).UTC()

	deleted, err := j.pruner.PruneSuggestions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune suggestions before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	log.Printf("[RETENTION] Cleanup complete: deleted %d suggestions older than %s in %v",
		deleted, cutoff.Format(time.RFC3339), time.Since(startTime))
	return nil
}
