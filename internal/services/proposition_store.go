package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gumbo/internal/database"
	"gumbo/internal/models"
)

// PropositionStore is the proposition database as seen by the engine
type PropositionStore interface {
	AddProposition(ctx context.Context, p models.Proposition) (int64, error)
	GetProposition(ctx context.Context, id int64) (*models.Proposition, error)
	QueryByConfidence(ctx context.Context, minConfidence, maxConfidence, limit int, order models.PropositionOrder) ([]models.Proposition, error)
	Search(ctx context.Context, query string, opts models.SearchOptions) ([]models.ScoredProposition, error)
}

// SuggestionSink persists suggestion batches. SaveSuggestions is all-or-nothing and
// returns one id per suggestion, in order.
type SuggestionSink interface {
	SaveSuggestions(ctx context.Context, batch *models.SuggestionBatch) ([]string, error)
	MarkDelivered(ctx context.Context, ids []string) error
}

// SuggestionReader lists persisted suggestions, newest first
type SuggestionReader interface {
	RecentSuggestions(ctx context.Context, limit int) ([]models.Suggestion, error)
}

// SuggestionPruner deletes suggestion batches generated before a cutoff and
// reports how many suggestions went with them
type SuggestionPruner interface {
	PruneSuggestions(ctx context.Context, cutoff time.Time) (int64, error)
}

const (
	searchPoolFactor      = 3
	maxSearchPool         = 100
	searchDiversityLambda = 0.7
	decayHalfLifeDays     = 7.0 // per decay point
)

// SQLitePropositionStore reads propositions from SQLite (FTS5 BM25 search) and stores suggestions
type SQLitePropositionStore struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLitePropositionStore creates a store on an initialized database
func NewSQLitePropositionStore(db *database.DB) *SQLitePropositionStore {
	return &SQLitePropositionStore{db: db, now: time.Now}
}

const propositionColumns = `p.id, p.text, p.reasoning, p.confidence, p.decay, p.created_at, p.updated_at`

// AddProposition inserts a proposition and returns its id
func (s *SQLitePropositionStore) AddProposition(ctx context.Context, p models.Proposition) (int64, error) {
	if p.Confidence < 1 || p.Confidence > models.MaxConfidence {
		return 0, fmt.Errorf("confidence must be in [1, 10], got %d", p.Confidence)
	}
	if p.Decay == 0 {
		p.Decay = 5
	}
	if p.Decay < 1 || p.Decay > 10 {
		return 0, fmt.Errorf("decay must be in [1, 10], got %d", p.Decay)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO propositions (text, reasoning, confidence, decay, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Text, p.Reasoning, p.Confidence, p.Decay, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert proposition: %w", err)
	}
	return result.LastInsertId()
}

// GetProposition returns one proposition or ErrPropositionNotFound
func (s *SQLitePropositionStore) GetProposition(ctx context.Context, id int64) (*models.Proposition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+propositionColumns+` FROM propositions p WHERE p.id = ?`, id)
	p, err := scanProposition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrPropositionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get proposition %d: %w", id, err)
	}
	return &p, nil
}

// QueryByConfidence returns propositions with confidence in [minConfidence, maxConfidence]
func (s *SQLitePropositionStore) QueryByConfidence(ctx context.Context, minConfidence, maxConfidence, limit int, order models.PropositionOrder) ([]models.Proposition, error) {
	if limit <= 0 {
		return []models.Proposition{}, nil
	}

	orderBy := "p.created_at DESC, p.id DESC"
	if order == models.OrderConfidenceDesc {
		orderBy = "p.confidence DESC, p.created_at DESC, p.id DESC"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+propositionColumns+`
		FROM propositions p
		WHERE p.confidence BETWEEN ? AND ?
		ORDER BY `+orderBy+`
		LIMIT ?`, minConfidence, maxConfidence, limit)
	if err != nil {
		return nil, fmt.Errorf("query propositions by confidence: %w", err)
	}
	defer rows.Close()

	results := []models.Proposition{}
	for rows.Next() {
		p, err := scanProposition(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// Search runs a BM25-ranked full-text search. Scores are normalized to [0, 1];
// DecayAware down-weights old short-lived propositions and DiversityAware
// re-ranks a larger pool to avoid near-duplicate hits.
func (s *SQLitePropositionStore) Search(ctx context.Context, query string, opts models.SearchOptions) ([]models.ScoredProposition, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	ftsQuery := buildFTSQuery(query, opts.Mode)
	if ftsQuery == "" {
		return []models.ScoredProposition{}, nil
	}

	pool := opts.Limit
	if opts.DiversityAware {
		pool = opts.Limit * searchPoolFactor
		if pool > maxSearchPool {
			pool = maxSearchPool
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+propositionColumns+`, bm25(propositions_fts) AS rank
		FROM propositions_fts
		JOIN propositions p ON p.id = propositions_fts.rowid
		WHERE propositions_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, ftsQuery, pool)
	if err != nil {
		return nil, fmt.Errorf("search propositions: %w", err)
	}
	defer rows.Close()

	var hits []models.ScoredProposition
	maxRelevance := 0.0
	for rows.Next() {
		var p models.Proposition
		var createdAt, updatedAt string
		var rank float64
		if err := rows.Scan(&p.ID, &p.Text, &p.Reasoning, &p.Confidence, &p.Decay, &createdAt, &updatedAt, &rank); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)

		// bm25() is negative; more negative is a better match
		relevance := math.Max(0, -rank)
		maxRelevance = math.Max(maxRelevance, relevance)
		hits = append(hits, models.ScoredProposition{Proposition: p, Score: relevance})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	for i := range hits {
		if maxRelevance > 0 {
			hits[i].Score /= maxRelevance
		} else {
			hits[i].Score = 1
		}
		if opts.DecayAware {
			hits[i].Score *= 0.5 + 0.5*decayWeight(hits[i].Proposition, now)
		}
		hits[i].Score = clamp01(hits[i].Score)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if opts.DiversityAware {
		hits = diversifyHits(hits, opts.Limit)
	} else if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	if hits == nil {
		hits = []models.ScoredProposition{}
	}
	return hits, nil
}

// SaveSuggestions writes the batch and its suggestions in one transaction
func (s *SQLitePropositionStore) SaveSuggestions(ctx context.Context, batch *models.SuggestionBatch) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrPersistenceFailed, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO suggestion_batches
			(batch_id, trigger_proposition_id, generated_at, processing_time_seconds, context_propositions_used, bundles_used, scoring_strategy)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		batch.BatchID, nullableID(batch.TriggerPropositionID), formatTime(batch.GeneratedAt),
		batch.ProcessingTimeSeconds, batch.ContextPropositionsUsed, batch.BundlesUsed, batch.ScoringStrategy,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert batch: %v", ErrPersistenceFailed, err)
	}

	createdAt := formatTime(s.now())
	ids := make([]string, 0, len(batch.Suggestions))
	for _, suggestion := range batch.Suggestions {
		actionItems, err := json.Marshal(nonNilStrings(suggestion.ActionItems))
		if err != nil {
			return nil, fmt.Errorf("%w: encode action items: %v", ErrPersistenceFailed, err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO suggestions
				(batch_id, title, description, category, rationale, expected_utility, probability_useful,
				 urgency, action_items, trigger_proposition_id, delivered, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			batch.BatchID, suggestion.Title, suggestion.Description, suggestion.Category, suggestion.Rationale,
			suggestion.ExpectedUtility, suggestion.ProbabilityUseful, suggestion.Urgency, string(actionItems),
			nullableID(suggestion.TriggerPropositionID), createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: insert suggestion: %v", ErrPersistenceFailed, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("%w: suggestion id: %v", ErrPersistenceFailed, err)
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrPersistenceFailed, err)
	}

	log.Printf("💾 [PROPOSITION-STORE] Saved batch %s with %d suggestions", batch.BatchID, len(ids))
	return ids, nil
}

// MarkDelivered flags the given suggestions as delivered
func (s *SQLitePropositionStore) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, formatTime(s.now()))
	placeholders := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid suggestion id %q: %w", id, err)
		}
		args = append(args, n)
		placeholders = append(placeholders, "?")
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE suggestions SET delivered = 1, delivered_at = ? WHERE id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// RecentSuggestions returns the latest persisted suggestions
func (s *SQLitePropositionStore) RecentSuggestions(ctx context.Context, limit int) ([]models.Suggestion, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, title, description, category, rationale, expected_utility,
		       probability_useful, urgency, action_items, trigger_proposition_id, delivered
		FROM suggestions
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	results := []models.Suggestion{}
	for rows.Next() {
		var sg models.Suggestion
		var id int64
		var actionItems string
		var trigger sql.NullInt64
		var delivered int
		if err := rows.Scan(&id, &sg.BatchID, &sg.Title, &sg.Description, &sg.Category, &sg.Rationale,
			&sg.ExpectedUtility, &sg.ProbabilityUseful, &sg.Urgency, &actionItems, &trigger, &delivered); err != nil {
			return nil, err
		}
		sg.ID = strconv.FormatInt(id, 10)
		sg.Delivered = delivered == 1
		if trigger.Valid {
			triggerID := trigger.Int64
			sg.TriggerPropositionID = &triggerID
		}
		if err := json.Unmarshal([]byte(actionItems), &sg.ActionItems); err != nil {
			sg.ActionItems = nil
		}
		results = append(results, sg)
	}
	return results, rows.Err()
}

// PruneSuggestions deletes batches generated before cutoff together with their suggestions
func (s *SQLitePropositionStore) PruneSuggestions(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("prune suggestions: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM suggestions
		WHERE batch_id IN (SELECT batch_id FROM suggestion_batches WHERE generated_at < ?)`,
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune suggestions: %w", err)
	}
	deleted, _ := result.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM suggestion_batches WHERE generated_at < ?`, formatTime(cutoff)); err != nil {
		return 0, fmt.Errorf("prune batches: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("prune suggestions: %w", err)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProposition(row rowScanner) (models.Proposition, error) {
	var p models.Proposition
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Text, &p.Reasoning, &p.Confidence, &p.Decay, &createdAt, &updatedAt); err != nil {
		return p, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// buildFTSQuery quotes each term for FTS5 and joins them for the requested mode
func buildFTSQuery(query string, mode models.SearchMode) string {
	seen := map[string]bool{}
	var terms []string
	for _, token := range tokenizeText(query) {
		if seen[token] {
			continue
		}
		seen[token] = true
		terms = append(terms, `"`+token+`"`)
	}
	if len(terms) == 0 {
		return ""
	}
	if mode == models.SearchModeAND {
		return strings.Join(terms, " ")
	}
	return strings.Join(terms, " OR ")
}

// decayWeight halves every decay*7 days: decay 1 fades within weeks, decay 10 lasts months
func decayWeight(p models.Proposition, now time.Time) float64 {
	decay := p.Decay
	if decay < 1 {
		decay = 1
	}
	ageDays := now.Sub(p.CreatedAt).Hours() / 24
	if ageDays <= 0 {
		return 1
	}
	halfLife := float64(decay) * decayHalfLifeDays
	return math.Exp(-math.Ln2 * ageDays / halfLife)
}

// diversifyHits greedily picks up to limit hits, trading score against token overlap
// with hits already picked. Input must be sorted by score.
func diversifyHits(hits []models.ScoredProposition, limit int) []models.ScoredProposition {
	if len(hits) <= limit {
		return hits
	}

	tokens := make([]map[string]bool, len(hits))
	for i, hit := range hits {
		tokens[i] = tokenSet(propositionText(hit.Proposition))
	}

	selected := []int{0}
	used := map[int]bool{0: true}
	for len(selected) < limit {
		best, bestValue := -1, math.Inf(-1)
		for i := range hits {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, j := range selected {
				maxSim = math.Max(maxSim, jaccard(tokens[i], tokens[j]))
			}
			value := searchDiversityLambda*hits[i].Score - (1-searchDiversityLambda)*maxSim
			if value > bestValue {
				best, bestValue = i, value
			}
		}
		if best < 0 {
			break
		}
		selected = append(selected, best)
		used[best] = true
	}

	result := make([]models.ScoredProposition, 0, len(selected))
	for _, i := range selected {
		result = append(result, hits[i])
	}
	return result
}

func tokenSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, token := range tokenizeText(text) {
		set[token] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	return float64(intersection) / float64(len(a)+len(b)-intersection)
}

// storedTimeLayout has fixed-width fractional seconds so stored strings sort chronologically
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

// parseTime accepts RFC3339 and SQLite's datetime('now') format
func parseTime(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
