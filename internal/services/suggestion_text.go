package services

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopWords are common English words excluded from keywords and similarity vectors
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "can": true, "this": true, "that": true,
	"these": true, "those": true, "it": true, "its": true, "from": true, "into": true,
	"as": true, "if": true, "then": true, "than": true, "so": true, "not": true,
	"no": true, "up": true, "out": true, "about": true, "what": true, "which": true,
	"who": true, "how": true, "when": true, "where": true, "why": true, "you": true,
	"your": true, "we": true, "our": true, "they": true, "their": true, "them": true,
	"he": true, "she": true, "his": true, "her": true, "him": true, "us": true,
	"me": true, "my": true, "i": true, "there": true, "also": true, "very": true,
	"just": true, "more": true, "some": true, "any": true, "all": true, "each": true,
	"other": true, "such": true, "only": true, "own": true, "same": true, "too": true,
}

// tokenizeText splits text into lowercase alphanumeric tokens, dropping stop words
// and single characters. Order and duplicates are preserved.
func tokenizeText(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// normalizeText lowercases and collapses whitespace, for exact-duplicate checks
func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	jsProtocolPattern = regexp.MustCompile(`(?i)javascript:`)
)

// sanitizeSuggestionText strips HTML tags and script URLs and enforces a rune limit
func sanitizeSuggestionText(text string, maxLen int) string {
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = jsProtocolPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	return truncateText(text, maxLen)
}

// truncateText cuts s to at most maxLen runes
func truncateText(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}
