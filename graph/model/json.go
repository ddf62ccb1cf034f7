package model

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the first complete JSON object out of a model response.
//
// Models asked for structured output still wrap it in prose or markdown
// fences often enough that adapters scrub before validating. Returns a
// *SchemaError when no well-formed object is present.
func ExtractJSON(text string) (json.RawMessage, error) {
	cleaned := strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	start := strings.IndexByte(cleaned, '{')
	if start < 0 {
		return nil, &SchemaError{Shape: ShapeJSON, Detail: "no JSON object in response"}
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				candidate := json.RawMessage(cleaned[start : i+1])
				if !json.Valid(candidate) {
					return nil, &SchemaError{Shape: ShapeJSON, Detail: "malformed JSON object in response"}
				}
				return candidate, nil
			}
		}
	}
	return nil, &SchemaError{Shape: ShapeJSON, Detail: "unterminated JSON object in response"}
}
