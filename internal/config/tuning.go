package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Batch size bounds for both suggestion paths
const (
	minBatchSize = 5
	maxBatchSize = 8
)

// Tuning holds the engine knobs that can be changed without a restart
type Tuning struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // dedupe cutoff for TF-IDF cosine
	MMRLambda           float64 `yaml:"mmr_lambda"`
	MaxPerCategory      int     `yaml:"max_per_category"`
	MaxSuggestions      int     `yaml:"max_suggestions"`       // trigger path batch size
	SweepMaxSuggestions int     `yaml:"sweep_max_suggestions"` // bundle sweep batch size
	CandidateCount      int     `yaml:"candidate_count"`
	MaxCandidates       int     `yaml:"max_candidates"`
	ContextLimit        int     `yaml:"context_limit"`
	SearchLimit         int     `yaml:"search_limit"`
	MaxBundles          int     `yaml:"max_bundles"`
	FactLimit           int     `yaml:"fact_limit"`
	InferenceLimit      int     `yaml:"inference_limit"`
	InferencesPerBundle int     `yaml:"inferences_per_bundle"`
	SlowBatchSeconds    float64 `yaml:"slow_batch_seconds"` // avg above this reports degraded
	TriggerConfidence   int     `yaml:"trigger_confidence"` // ingested propositions at or above this trigger a cycle
}

// DefaultTuning returns the production defaults
func DefaultTuning() Tuning {
	return Tuning{
		SimilarityThreshold: 0.92,
		MMRLambda:           0.7,
		MaxPerCategory:      3,
		MaxSuggestions:      5,
		SweepMaxSuggestions: 8,
		CandidateCount:      5,
		MaxCandidates:       8,
		ContextLimit:        10,
		SearchLimit:         20,
		MaxBundles:          8,
		FactLimit:           30,
		InferenceLimit:      200,
		InferencesPerBundle: 5,
		SlowBatchSeconds:    10,
		TriggerConfidence:   8,
	}
}

// LoadTuning reads a YAML tuning file on top of the defaults.
// A missing file is not an error.
func LoadTuning(filePath string) (Tuning, error) {
	tuning := DefaultTuning()
	if filePath == "" {
		return tuning, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return tuning, nil
		}
		return tuning, fmt.Errorf("failed to read tuning file: %w", err)
	}

	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return DefaultTuning(), fmt.Errorf("failed to parse tuning YAML: %w", err)
	}

	if err := tuning.Validate(); err != nil {
		return DefaultTuning(), err
	}
	return tuning, nil
}

// Validate rejects values that would break the pipeline bounds
func (t Tuning) Validate() error {
	switch {
	case t.SimilarityThreshold <= 0 || t.SimilarityThreshold > 1:
		return fmt.Errorf("similarity_threshold must be in (0, 1], got %v", t.SimilarityThreshold)
	case t.MMRLambda < 0 || t.MMRLambda > 1:
		return fmt.Errorf("mmr_lambda must be in [0, 1], got %v", t.MMRLambda)
	case t.MaxPerCategory < 1:
		return fmt.Errorf("max_per_category must be positive, got %d", t.MaxPerCategory)
	case t.MaxSuggestions < minBatchSize || t.MaxSuggestions > maxBatchSize:
		return fmt.Errorf("max_suggestions must be in [%d, %d], got %d", minBatchSize, maxBatchSize, t.MaxSuggestions)
	case t.SweepMaxSuggestions < minBatchSize || t.SweepMaxSuggestions > maxBatchSize:
		return fmt.Errorf("sweep_max_suggestions must be in [%d, %d], got %d", minBatchSize, maxBatchSize, t.SweepMaxSuggestions)
	case t.CandidateCount < 1 || t.CandidateCount > t.MaxCandidates:
		return fmt.Errorf("candidate_count must be in [1, max_candidates], got %d", t.CandidateCount)
	case t.MaxCandidates > 8:
		return fmt.Errorf("max_candidates must be at most 8, got %d", t.MaxCandidates)
	case t.ContextLimit < 1 || t.SearchLimit < t.ContextLimit:
		return fmt.Errorf("search_limit (%d) must be >= context_limit (%d) >= 1", t.SearchLimit, t.ContextLimit)
	case t.MaxBundles < 1 || t.MaxBundles > t.MaxCandidates:
		return fmt.Errorf("max_bundles must be in [1, max_candidates], got %d", t.MaxBundles)
	case t.FactLimit < 1 || t.FactLimit > 30:
		return fmt.Errorf("fact_limit must be in [1, 30], got %d", t.FactLimit)
	case t.InferenceLimit < 1 || t.InferenceLimit > 200:
		return fmt.Errorf("inference_limit must be in [1, 200], got %d", t.InferenceLimit)
	case t.InferencesPerBundle < 1 || t.InferencesPerBundle > 5:
		return fmt.Errorf("inferences_per_bundle must be in [1, 5], got %d", t.InferencesPerBundle)
	case t.SlowBatchSeconds <= 0:
		return fmt.Errorf("slow_batch_seconds must be positive, got %v", t.SlowBatchSeconds)
	case t.TriggerConfidence < 1 || t.TriggerConfidence > 10:
		return fmt.Errorf("trigger_confidence must be in [1, 10], got %d", t.TriggerConfidence)
	}
	return nil
}
