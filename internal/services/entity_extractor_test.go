package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityExtractor_Categories(t *testing.T) {
	extractor := NewEntityExtractor()

	tests := []struct {
		name     string
		text     string
		category string
		expected []string
	}{
		{"apps", "User drafts reports in Excel and shares them on Slack", EntityApps, []string{"excel", "slack"}},
		{"multi-word app", "Debugging the API in Visual Studio Code", EntityApps, []string{"visual studio code"}},
		{"people", "Meeting with Sarah Chen about the launch", EntityPeople, []string{"sarah chen"}},
		{"organizations", "Preparing a Y Combinator application", EntityOrganizations, []string{"y combinator"}},
		{"tech terms", "Fixing the backend endpoint that returns JSON", EntityTechTerms, []string{"backend", "endpoint", "json"}},
		{"time indicators", "Works late night before every deadline", EntityTimeIndicators, []string{"late night", "deadline"}},
		{"actions", "Spends the afternoon reviewing and testing code", EntityActions, []string{"reviewing", "testing"}},
		{"emotions", "Seems stressed and overwhelmed", EntityEmotions, []string{"stressed", "overwhelmed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := extractor.Extract(tt.text)
			for _, want := range tt.expected {
				assert.True(t, entities[tt.category][want], "expected %q in %s, got %v", want, tt.category, entities[tt.category])
			}
		})
	}
}

func TestEntityExtractor_ProductNamesAreNotPeople(t *testing.T) {
	entities := NewEntityExtractor().Extract("Opened Visual Studio Code and Google Sheets")
	assert.Empty(t, entities[EntityPeople])
	assert.True(t, entities[EntityApps]["visual studio code"])
	assert.True(t, entities[EntityApps]["google sheets"])
}

func TestEntityExtractor_Keywords(t *testing.T) {
	text := "quarterly report report report budget budget forecast the and for alpha beta gamma delta epsilon zeta theta"
	entities := NewEntityExtractor().Extract(text)

	keywords := entities[EntityKeywords]
	require.Len(t, keywords, maxKeywords)
	assert.True(t, keywords["report"])
	assert.True(t, keywords["budget"])
	assert.False(t, keywords["the"], "stop words are excluded")
	assert.False(t, keywords["and"])
}

func TestEntityExtractor_Deterministic(t *testing.T) {
	extractor := NewEntityExtractor()
	text := "Sarah Chen is learning Python every morning and feels excited about the FastAPI backend"

	first := extractor.Extract(text)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, extractor.Extract(text))
	}
}

func TestEntityExtractor_EmptyText(t *testing.T) {
	entities := NewEntityExtractor().Extract("   ")
	require.Len(t, entities, len(EntityCategories))
	for _, category := range EntityCategories {
		assert.Empty(t, entities[category])
	}
	assert.Empty(t, entities.All())
}

func TestSanitizeSuggestionText(t *testing.T) {
	assert.Equal(t, "Click here", sanitizeSuggestionText(`<a href="javascript:alert(1)">Click here</a>`, 100))
	assert.Equal(t, "alert(1)", sanitizeSuggestionText("JavaScript:alert(1)", 100))
	assert.Equal(t, "héllo", sanitizeSuggestionText("héllo wörld", 5))
	assert.Equal(t, "plain", sanitizeSuggestionText("  plain  ", 0))
}
