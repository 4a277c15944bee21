package services

import (
	"regexp"
	"sort"
	"strings"
)

// Entity categories, in the order used for reporting
const (
	EntityApps           = "apps"
	EntityPeople         = "people"
	EntityOrganizations  = "organizations"
	EntityTechTerms      = "tech_terms"
	EntityTimeIndicators = "time_indicators"
	EntityActions        = "actions"
	EntityEmotions       = "emotions"
	EntityKeywords       = "keywords"
)

// EntityCategories lists every category Extract returns
var EntityCategories = []string{
	EntityApps, EntityPeople, EntityOrganizations, EntityTechTerms,
	EntityTimeIndicators, EntityActions, EntityEmotions, EntityKeywords,
}

const maxKeywords = 10

// EntitySet is a set of normalized (lowercase) entity strings
type EntitySet map[string]bool

// Entities maps category -> entity set. Every category is present, possibly empty.
type Entities map[string]EntitySet

var (
	appPattern = regexp.MustCompile(`(?i)\b(?:ChatGPT|Claude|Visual Studio Code|VS Code|Cursor|Instagram|LinkedIn|Gmail|Outlook|Slack|Discord|Notion|Airtable|Figma|Excel|Google Sheets|Google Docs|Google Calendar|Google|Chrome|Safari|Firefox|PowerShell|Terminal|iTerm|Electron|FastAPI|GitHub|GitLab|Jira|Trello|Zoom|Teams|Spotify|YouTube|Twitter|Pitch|Zavion)\b`)

	// Case-sensitive: two capitalized words
	peoplePattern = regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`)

	organizationPattern = regexp.MustCompile(`(?i)\b(?:Y Combinator|Dorm Room Fund|Stanford|UC Berkeley|Harvard|MIT|Google|Microsoft|Apple|Amazon|Meta|OpenAI|Anthropic)\b`)

	techTermPattern = regexp.MustCompile(`(?i)\b(?:API|endpoint|backend|frontend|JavaScript|TypeScript|Python|Golang|Rust|React|SQL|debugging|port|server|database|JSON|HTTP|Docker|Kubernetes|deploy(?:ment)?|CI|pipeline|spreadsheet|pivot table|macro)\b`)

	timeIndicatorPattern = regexp.MustCompile(`(?i)\b(?:late night|morning|afternoon|evening|weekend|daily|weekly|monthly|quarterly|deadline|tomorrow|today|tonight)\b`)

	actionPattern = regexp.MustCompile(`(?i)\b(?:debugging|developing|building|applying|networking|learning|studying|coding|testing|reviewing|writing|editing|planning|researching|designing|drafting|presenting|scheduling)\b`)

	emotionPattern = regexp.MustCompile(`(?i)\b(?:frustrated|excited|worried|confident|stressed|focused|overwhelmed|anxious|motivated|tired)\b`)

	keywordPattern = regexp.MustCompile(`\b[a-z]{3,}\b`)
)

// EntityExtractor pulls categorized entities out of proposition text.
// It is stateless and deterministic.
type EntityExtractor struct{}

// NewEntityExtractor creates an entity extractor
func NewEntityExtractor() *EntityExtractor {
	return &EntityExtractor{}
}

// Extract returns the entities found in text. Matches are lowercased.
func (e *EntityExtractor) Extract(text string) Entities {
	entities := make(Entities, len(EntityCategories))
	for _, category := range EntityCategories {
		entities[category] = EntitySet{}
	}
	if strings.TrimSpace(text) == "" {
		return entities
	}

	addMatches(entities[EntityApps], appPattern, text)
	addMatches(entities[EntityOrganizations], organizationPattern, text)
	addMatches(entities[EntityTechTerms], techTermPattern, text)
	addMatches(entities[EntityTimeIndicators], timeIndicatorPattern, text)
	addMatches(entities[EntityActions], actionPattern, text)
	addMatches(entities[EntityEmotions], emotionPattern, text)

	// Capitalized pairs overlapping a product or organization name are not people
	var named [][]int
	named = append(named, appPattern.FindAllStringIndex(text, -1)...)
	named = append(named, organizationPattern.FindAllStringIndex(text, -1)...)
	for _, loc := range peoplePattern.FindAllStringIndex(text, -1) {
		if overlapsAny(loc, named) {
			continue
		}
		entities[EntityPeople][strings.ToLower(text[loc[0]:loc[1]])] = true
	}

	for _, keyword := range topKeywords(text, maxKeywords) {
		entities[EntityKeywords][keyword] = true
	}

	return entities
}

// All returns the union of every category
func (ents Entities) All() EntitySet {
	all := EntitySet{}
	for _, set := range ents {
		for entity := range set {
			all[entity] = true
		}
	}
	return all
}

func addMatches(set EntitySet, pattern *regexp.Regexp, text string) {
	for _, match := range pattern.FindAllString(text, -1) {
		set[strings.ToLower(match)] = true
	}
}

// overlapsAny reports whether span [start, end) intersects any of spans
func overlapsAny(span []int, spans [][]int) bool {
	for _, other := range spans {
		if span[0] < other[1] && other[0] < span[1] {
			return true
		}
	}
	return false
}

// topKeywords returns the n most frequent 3+ letter non-stop words,
// ties broken alphabetically
func topKeywords(text string, n int) []string {
	counts := make(map[string]int)
	for _, word := range keywordPattern.FindAllString(strings.ToLower(text), -1) {
		if stopWords[word] {
			continue
		}
		counts[word]++
	}

	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > n {
		words = words[:n]
	}
	return words
}
