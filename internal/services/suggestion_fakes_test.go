package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gumbo/internal/models"
)

// Prompt markers used to route fake completions
const (
	markerSearch     = "behavioral pattern analyst"
	markerCandidates = "CURRENT BEHAVIORAL TRIGGER"
	markerScoring    = "suggestion utility evaluator"
	markerBundle     = "strategic assistant"
)

type fakeReply struct {
	text string
	err  error
}

// fakeCompletion answers by the first marker found in the prompt
type fakeCompletion struct {
	mu      sync.Mutex
	replies map[string]fakeReply
	calls   map[string]int
	prompts map[string]string
}

func newFakeCompletion() *fakeCompletion {
	return &fakeCompletion{
		replies: map[string]fakeReply{},
		calls:   map[string]int{},
		prompts: map[string]string{},
	}
}

func (f *fakeCompletion) on(marker, text string) *fakeCompletion {
	f.replies[marker] = fakeReply{text: text}
	return f
}

func (f *fakeCompletion) fail(marker string, err error) *fakeCompletion {
	f.replies[marker] = fakeReply{err: err}
	return f
}

func (f *fakeCompletion) Complete(_ context.Context, prompt string, _ int, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, marker := range []string{markerSearch, markerCandidates, markerScoring, markerBundle} {
		if !strings.Contains(prompt, marker) {
			continue
		}
		f.calls[marker]++
		f.prompts[marker] = prompt
		reply, ok := f.replies[marker]
		if !ok {
			return "", fmt.Errorf("no reply scripted for %q", marker)
		}
		return reply.text, reply.err
	}
	return "", errors.New("unrecognized prompt")
}

func (f *fakeCompletion) callCount(marker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[marker]
}

func (f *fakeCompletion) lastPrompt(marker string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[marker]
}

// memorySink keeps batches in memory and can be told to fail
type memorySink struct {
	mu        sync.Mutex
	batches   []*models.SuggestionBatch
	delivered []string
	saveErr   error
	markErr   error
	nextID    int
}

func (m *memorySink) SaveSuggestions(_ context.Context, batch *models.SuggestionBatch) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return nil, m.saveErr
	}
	ids := make([]string, len(batch.Suggestions))
	for i := range ids {
		m.nextID++
		ids[i] = fmt.Sprintf("s-%d", m.nextID)
	}
	m.batches = append(m.batches, batch)
	return ids, nil
}

func (m *memorySink) MarkDelivered(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markErr != nil {
		return m.markErr
	}
	m.delivered = append(m.delivered, ids...)
	return nil
}

func (m *memorySink) savedBatches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

type publishedEvent struct {
	kind  string
	batch *models.SuggestionBatch
	wait  time.Duration
	step  string
}

// recordingPublisher records every event it is asked to publish
type recordingPublisher struct {
	mu       sync.Mutex
	events   []publishedEvent
	batchErr error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, batch *models.SuggestionBatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.batchErr != nil {
		return p.batchErr
	}
	p.events = append(p.events, publishedEvent{kind: EventSuggestionBatch, batch: batch})
	return nil
}

func (p *recordingPublisher) PublishRateLimited(_ context.Context, wait time.Duration, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{kind: EventRateLimited, wait: wait})
	return nil
}

func (p *recordingPublisher) PublishError(_ context.Context, step string, _ error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{kind: EventError, step: step})
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]string, len(p.events))
	for i, e := range p.events {
		kinds[i] = e.kind
	}
	return kinds
}

func candidatesJSON(titles ...string) string {
	var items []string
	for i, title := range titles {
		items = append(items, fmt.Sprintf(
			`{"title": %q, "description": "Concrete steps for %s", "category": %q, "rationale": "Seen in recent activity", "priority": "high"}`,
			title, strings.ToLower(title), []string{CategoryDirectSolution, CategoryWorkflowImprovement, CategoryTimingOptimization}[i%3]))
	}
	return `{"suggestions": [` + strings.Join(items, ",") + `]}`
}

func scoredWith(title, category string, utility float64) models.ScoredCandidate {
	return models.ScoredCandidate{
		Candidate: models.SuggestionCandidate{
			Title:       title,
			Description: "Details about " + strings.ToLower(title),
			Category:    category,
		},
		Utility: utility,
	}
}
