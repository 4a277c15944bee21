package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"gumbo/internal/models"
)

// Suggestion categories for the trigger path
const (
	CategoryDirectSolution      = "direct_solution"
	CategoryTimingOptimization  = "timing_optimization"
	CategoryWorkflowImprovement = "workflow_improvement"
	CategoryContentCompletion   = "content_completion"
	CategoryProactiveSolution   = "proactive_solution"
)

// Suggestion categories for the bundle path
const (
	CategoryWorkflow     = "workflow"
	CategoryCompletion   = "completion"
	CategoryLearning     = "learning"
	CategoryOptimization = "optimization"
	CategoryStrategic    = "strategic"
)

// Fallback candidate, returned when generation yields nothing usable
const (
	fallbackTitle       = "Review recent behavioral patterns"
	fallbackDescription = "Take a moment to review your recent activity patterns for optimization opportunities."
	fallbackCategory    = "productivity"
	fallbackRationale   = "Fallback suggestion due to generation error"
)

const searchQueryPrompt = `You are a behavioral pattern analyst. Read the trigger proposition below and write a search query that finds related behavioral insights.

TRIGGER PROPOSITION:
"%s"

REASONING: %s

Write a focused search query of 2-4 keywords that will surface related workflows, habits, or preferences useful for actionable suggestions.

Return only the search query with no explanation.`

const candidateGenerationPrompt = `You are a behavioral assistant that gives specific, personalized suggestions and states the solution directly whenever it can.

CURRENT BEHAVIORAL TRIGGER:
The user just demonstrated: "%s"

RELATED BEHAVIORAL PATTERNS:
%s

ANALYSIS:
1. Specific challenges: concrete problems, knowledge gaps or obstacles the user faces.
2. Timing patterns: when the user works and what that implies for focus.
3. Content context: the tools, documents and domains involved.
4. Workflow friction: repetitive tasks and slow processes.
5. Cross-pattern insights: how several patterns combine into an opportunity.

SOLUTION FIRST:
If the user is missing a term, give the term and its definition.
If the user needs steps, list the steps.
If the user needs a link or example, include it.
Only suggest "research X" when the answer is too personal or specialized to state.

Generate %d suggestions. Each must solve a specific challenge from the data above with concrete details.

CATEGORIES:
- direct_solution: immediate answers or information for an identified gap
- timing_optimization: scheduling based on observed timing patterns
- workflow_improvement: a specific tool or process change with implementation details
- content_completion: missing information or resources the user needs
- proactive_solution: a ready answer for a need the user will have soon

Return JSON in exactly this format:
{
  "suggestions": [
    {
      "title": "Direct, solution-focused title (max 60 chars)",
      "description": "The solution with specific information, links, answers or steps (max 300 chars)",
      "category": "direct_solution|timing_optimization|workflow_improvement|content_completion|proactive_solution",
      "rationale": "How the observed patterns lead to this solution (max 200 chars)",
      "priority": "high|medium|low"
    }
  ]
}

EXAMPLES:
Bad: "Research DECA terminology for missing prompts"
Good: "DECA integration completes as 'Integrates into Career and Technical Education (CTE) Instruction', add it to your quiz review"
Bad: "Look up productivity techniques for late-night work"
Good: "Since you work past 11 PM, try 25 minute focus blocks with 5 minute breaks and enable a blue light filter after 10 PM"`

const bundleSuggestionPrompt = `You are a strategic assistant analyzing %s's behavioral patterns to find proactive opportunities. Connect insights across time and suggest a valuable action they would not think to ask for.

%s
Find one suggestion that:
- connects the verified fact with the supporting inferences to infer an unstated need
- fits the user's established goals and constraints
- is concrete enough to act on immediately

Return ONLY valid JSON in exactly this format:
{
  "title": "Strategic, actionable suggestion title",
  "description": "The cross-time pattern that led to this suggestion and how the insights connect",
  "urgency": "now|today|this_week",
  "category": "workflow|completion|learning|optimization|strategic",
  "evidence": "The specific patterns that support this suggestion",
  "action_items": ["Specific step 1", "Specific step 2", "Specific step 3 if needed"]
}

Urgency: "now" is an immediate action, "today" is a priority for today, "this_week" is planning.`

const utilityScoringPrompt = `You are a suggestion utility evaluator. Score each suggestion by its expected value for the user.

USER CONTEXT: %s

SUGGESTIONS TO SCORE:
%s

For each suggestion provide:
- benefit: expected positive impact if acted on (1-10)
- false_positive_cost: harm if the suggestion is wrong or irrelevant (1-10)
- false_negative_cost: opportunity cost if the user ignores a good suggestion (1-10)
- decay: how long the suggestion stays relevant, 10 = weeks, 1 = minutes (1-10)
- probability_useful: likelihood the user finds it genuinely helpful (0.0-1.0)
- probability_false_positive: likelihood it is irrelevant (0.0-1.0)
- probability_false_negative: likelihood a useful suggestion gets ignored (0.0-1.0)

Return JSON:
{
  "scored_suggestions": [
    {
      "index": 0,
      "benefit": 8.5,
      "false_positive_cost": 2.0,
      "false_negative_cost": 6.0,
      "decay": 7.0,
      "probability_useful": 0.85,
      "probability_false_positive": 0.15,
      "probability_false_negative": 0.10
    }
  ]
}`

func buildSearchQueryPrompt(trigger models.Proposition) string {
	return fmt.Sprintf(searchQueryPrompt, trigger.Text, truncateText(trigger.Reasoning, 300))
}

// buildCandidatePrompt lists at most five related propositions
func buildCandidatePrompt(trigger models.Proposition, related []models.ContextualProposition, count int) string {
	var builder strings.Builder
	for i, prop := range related {
		if i >= 5 {
			break
		}
		builder.WriteString(fmt.Sprintf("- %s (confidence: %d, similarity: %.2f)\n", prop.Text, prop.Confidence, prop.SimilarityScore))
	}
	relatedContext := builder.String()
	if relatedContext == "" {
		relatedContext = "No directly related behavioral patterns found."
	}
	return fmt.Sprintf(candidateGenerationPrompt, trigger.Text, relatedContext, count)
}

func buildBundlePrompt(userName string, bundle models.Bundle) string {
	return fmt.Sprintf(bundleSuggestionPrompt, userName, formatBundleContext(bundle))
}

// formatBundleContext renders a bundle as markdown for the model
func formatBundleContext(bundle models.Bundle) string {
	var b strings.Builder
	fact := bundle.AnchorFact

	b.WriteString("# Strategic Analysis Bundle\n\n")
	b.WriteString(fmt.Sprintf("## Core Verified Insight (Confidence: %d/10)\n", fact.Confidence))
	b.WriteString(fmt.Sprintf("**Fact:** %s\n", fact.Text))
	b.WriteString(fmt.Sprintf("**Evidence:** %s\n", truncateText(fact.Reasoning, 200)))
	b.WriteString(fmt.Sprintf("**Timestamp:** %s\n\n", fact.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")))

	b.WriteString("## Supporting Behavioral Inferences\n")
	for i, inference := range bundle.Inferences {
		b.WriteString(fmt.Sprintf("**Inference %d** (Confidence: %d/10):\n", i+1, inference.Confidence))
		b.WriteString(fmt.Sprintf("- %s\n", inference.Text))
		b.WriteString(fmt.Sprintf("- Evidence: %s\n", truncateText(inference.Reasoning, 150)))
		b.WriteString(fmt.Sprintf("- Date: %s\n\n", inference.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")))
	}

	shared := bundle.SharedEntityList()
	if len(shared) > 10 {
		shared = shared[:10]
	}
	b.WriteString("## Pattern Connections\n")
	b.WriteString(fmt.Sprintf("**Shared Elements:** %s\n", strings.Join(shared, ", ")))
	b.WriteString(fmt.Sprintf("**Time Proximity Score:** %.2f\n\n", bundle.TimeProximityScore))
	return b.String()
}

// buildScoringPrompt numbers candidates from 0 so the model can reference them by index
func buildScoringPrompt(userContext string, candidates []models.SuggestionCandidate) (string, error) {
	type scoringItem struct {
		Index       int    `json:"index"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Category    string `json:"category"`
		Rationale   string `json:"rationale"`
	}
	items := make([]scoringItem, len(candidates))
	for i, c := range candidates {
		items[i] = scoringItem{Index: i, Title: c.Title, Description: c.Description, Category: c.Category, Rationale: c.Rationale}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(utilityScoringPrompt, userContext, string(data)), nil
}
