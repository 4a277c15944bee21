package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gumbo/internal/services"
)

// BundleSweeper is the part of the suggestion engine the sweep job drives
type BundleSweeper interface {
	GenerateFromBundles(ctx context.Context) services.TriggerResult
}

// BundleSweepJob periodically turns high-confidence facts and their related
// inferences into a suggestion batch
type BundleSweepJob struct {
	engine BundleSweeper
}

// NewBundleSweepJob creates a new bundle sweep job
func NewBundleSweepJob(engine BundleSweeper) *BundleSweepJob {
	return &BundleSweepJob{engine: engine}
}

func (j *BundleSweepJob) Name() string { return "bundle_sweep" }

// Run executes one sweep. Deferrals, an empty proposition store, and a stopped
// engine are not errors.
func (j *BundleSweepJob) Run(ctx context.Context) error {
	result := j.engine.GenerateFromBundles(ctx)

	switch {
	case result.Deferred():
		log.Printf("⏳ [SWEEP] Rate limited, next token in %v", result.WaitTime)
		return nil
	case result.Failed() && errors.Is(result.Err, services.ErrNoBundles):
		log.Println("[SWEEP] No bundles to generate from")
		return nil
	case result.Failed() && result.FailedStep == services.StepLifecycle:
		log.Println("[SWEEP] Engine is not running, skipping sweep")
		return nil
	case result.Failed():
		return fmt.Errorf("bundle sweep failed at %s: %w", result.FailedStep, result.Err)
	}

	count := 0
	if result.Batch != nil {
		count = len(result.Batch.Suggestions)
	}
	log.Printf("[SWEEP] Generated %d suggestions (state: %s)", count, result.State)
	return nil
}
