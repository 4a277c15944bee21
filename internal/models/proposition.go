package models

import "time"

// Proposition is a confidence-scored inference about the user, produced upstream
// by the observation pipeline. The suggestion engine only reads these.
type Proposition struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`
	Reasoning  string    `json:"reasoning"`
	Confidence int       `json:"confidence"` // 1-10, 8+ is treated as a fact
	Decay      int       `json:"decay"`      // 1-10, higher lasts longer
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Proposition confidence bands used for bundling
const (
	FactMinConfidence      = 8
	InferenceMinConfidence = 3
	InferenceMaxConfidence = 7
	MaxConfidence          = 10
)

// IsFact reports whether the proposition is confident enough to anchor a bundle
func (p Proposition) IsFact() bool {
	return p.Confidence >= FactMinConfidence
}

// IsInference reports whether the proposition sits in the supporting-inference band
func (p Proposition) IsInference() bool {
	return p.Confidence >= InferenceMinConfidence && p.Confidence <= InferenceMaxConfidence
}

// ContextualProposition is a proposition returned by retrieval together with its relevance
type ContextualProposition struct {
	Proposition
	SimilarityScore float64 `json:"similarity_score"` // 0.0-1.0
}

// ContextRetrievalResult is the outcome of context retrieval for one trigger
type ContextRetrievalResult struct {
	RelatedPropositions []ContextualProposition `json:"related_propositions"`
	TotalFound          int                     `json:"total_found"`
	QueryUsed           string                  `json:"query_used"`
	RetrievalTime       time.Duration           `json:"retrieval_time"`
	Degraded            bool                    `json:"degraded"` // true when the fallback path was taken
}

// PropositionOrder selects the ordering used by QueryByConfidence
type PropositionOrder string

const (
	OrderConfidenceDesc PropositionOrder = "confidence_desc" // confidence desc, then newest first
	OrderCreatedDesc    PropositionOrder = "created_desc"    // newest first
)

// SearchMode controls how query terms are combined
type SearchMode string

const (
	SearchModeOR  SearchMode = "OR"
	SearchModeAND SearchMode = "AND"
)

// SearchOptions configures a ranked proposition search
type SearchOptions struct {
	Mode           SearchMode
	Limit          int
	DecayAware     bool // weight results by proposition age and decay
	DiversityAware bool // re-rank to avoid near-duplicate results
}

// ScoredProposition is a search hit with a normalized score
type ScoredProposition struct {
	Proposition Proposition
	Score       float64 // 0.0-1.0
}

// Bundle groups one high-confidence fact with the weaker inferences that support it
type Bundle struct {
	AnchorFact         Proposition     `json:"anchor_fact"`
	Inferences         []Proposition   `json:"inferences"`
	InferenceRelevance []float64       `json:"inference_relevance"` // parallel to Inferences
	SharedEntities     map[string]bool `json:"shared_entities"`
	TimeProximityScore float64         `json:"time_proximity_score"`
}

// SharedEntityList returns the shared entities in sorted order
func (b Bundle) SharedEntityList() []string {
	return sortedKeys(b.SharedEntities)
}
