package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LLMJSON is the result of parsing a model response that should contain a JSON object.
// Exactly one of the two states holds: Parsed (Value is set) or Unparseable (Raw keeps the text).
type LLMJSON struct {
	Value map[string]json.RawMessage
	Raw   string
	ok    bool
}

// Parsed reports whether a JSON object was recovered
func (r LLMJSON) Parsed() bool {
	return r.ok
}

// Decode unmarshals the recovered object into v
func (r LLMJSON) Decode(v interface{}) error {
	if !r.ok {
		return fmt.Errorf("%w: no JSON object in response (length: %d)", ErrMalformedModelOutput, len(r.Raw))
	}
	data, err := json.Marshal(r.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedModelOutput, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedModelOutput, err)
	}
	return nil
}

// ParseLLMJSON recovers a JSON object from model output. It tries, in order:
// the whole text, a ```json fence, a plain ``` fence, and the first balanced {...}.
func ParseLLMJSON(text string) LLMJSON {
	trimmed := strings.TrimSpace(text)

	candidates := []string{trimmed}
	if extracted := extractJSONFromLLM(trimmed); extracted != "" && extracted != trimmed {
		candidates = append(candidates, extracted)
	}

	for _, candidate := range candidates {
		var value map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &value); err == nil && value != nil {
			return LLMJSON{Value: value, Raw: text, ok: true}
		}
	}

	return LLMJSON{Raw: text}
}

// extractJSONFromLLM pulls a JSON object out of fenced or chatty model output
func extractJSONFromLLM(s string) string {
	if idx := strings.Index(s, "```json"); idx >= 0 {
		start := idx + 7
		end := strings.Index(s[start:], "```")
		if end >= 0 {
			return strings.TrimSpace(s[start : start+end])
		}
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		start := idx + 3
		if nlIdx := strings.Index(s[start:], "\n"); nlIdx >= 0 {
			start += nlIdx + 1
		}
		end := strings.Index(s[start:], "```")
		if end >= 0 {
			candidate := strings.TrimSpace(s[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	if idx := strings.Index(s, "{"); idx >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := idx; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[idx : i+1]
				}
			}
		}
	}

	return ""
}
