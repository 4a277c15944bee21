package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SUGGESTION_RATE_CAPACITY", "")
	t.Setenv("SUGGESTION_RATE_REFILL_PERIOD", "")

	cfg := Load()
	assert.Equal(t, 2, cfg.RateLimitCapacity)
	assert.Equal(t, 60*time.Second, cfg.RateLimitRefillPeriod)
	assert.InDelta(t, 1.0/60, cfg.RefillPerSecond(), 1e-9)
	assert.Equal(t, 30*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, "expected_utility", cfg.ScoringStrategy)
	assert.Equal(t, 720*time.Hour, cfg.SuggestionRetention)
	assert.Equal(t, "0 3 * * *", cfg.RetentionCron)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SUGGESTION_RATE_CAPACITY", "5")
	t.Setenv("SUGGESTION_RATE_REFILL_PERIOD", "10")
	t.Setenv("COMPLETION_TIMEOUT", "45s")
	t.Setenv("COMPLETION_BASE_URL", "http://localhost:11434/v1/")
	t.Setenv("SUGGESTION_SCORING_STRATEGY", "Priority")
	t.Setenv("SUGGESTION_BUNDLE_AWARE_TRIGGER", "not-a-bool")

	cfg := Load()
	assert.Equal(t, 5, cfg.RateLimitCapacity)
	assert.Equal(t, 10*time.Second, cfg.RateLimitRefillPeriod)
	assert.Equal(t, 45*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, "http://localhost:11434/v1", cfg.CompletionBaseURL)
	assert.Equal(t, "priority", cfg.ScoringStrategy)
	assert.False(t, cfg.BundleAwareTrigger)
}

func TestLoadTuning(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		content   string
		wantErr   bool
		wantValue func(t *testing.T, tuning Tuning)
	}{
		{
			name:    "partial override keeps defaults",
			content: "similarity_threshold: 0.85\nmax_per_category: 2\n",
			wantValue: func(t *testing.T, tuning Tuning) {
				assert.Equal(t, 0.85, tuning.SimilarityThreshold)
				assert.Equal(t, 2, tuning.MaxPerCategory)
				assert.Equal(t, 0.7, tuning.MMRLambda)
				assert.Equal(t, 30, tuning.FactLimit)
			},
		},
		{
			name:    "out of range batch size",
			content: "max_suggestions: 12\n",
			wantErr: true,
		},
		{
			name:    "batch size below five",
			content: "max_suggestions: 4\n",
			wantErr: true,
		},
		{
			name:    "sweep batch size below five",
			content: "sweep_max_suggestions: 1\n",
			wantErr: true,
		},
		{
			name:    "batch sizes at the bounds",
			content: "max_suggestions: 5\nsweep_max_suggestions: 8\n",
			wantValue: func(t *testing.T, tuning Tuning) {
				assert.Equal(t, 5, tuning.MaxSuggestions)
				assert.Equal(t, 8, tuning.SweepMaxSuggestions)
			},
		},
		{
			name:    "invalid yaml",
			content: "similarity_threshold: [oops\n",
			wantErr: true,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "tuning"+string(rune('a'+i))+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			tuning, err := LoadTuning(path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, DefaultTuning(), tuning)
				return
			}
			require.NoError(t, err)
			tt.wantValue(t, tuning)
		})
	}
}

func TestLoadTuning_MissingFile(t *testing.T) {
	tuning, err := LoadTuning(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTuning(), tuning)
	assert.NoError(t, DefaultTuning().Validate())
}
