package gemini

import (
	"bytes"
	"encoding/json"
	"strings"
)

// EmptyResponseText is returned when the response carries nothing usable.
const EmptyResponseText = "No response received. The model may have blocked the response."

// extractor pulls response text from one known response shape.
type extractor func(doc any) (string, bool)

// extractors are tried in order; the first non-empty text wins.
var extractors = []extractor{
	pathExtractor("candidates", 0, "content", "parts", 0, "text"),
	pathExtractor("candidates", 0, "content", 0, "text"),
	pathExtractor("candidates", 0, "output"),
	pathExtractor("output", 0, "content", 0, "text"),
}

// ExtractText returns the model text of a response body. Unknown shapes fall
// back to the raw JSON.
func ExtractText(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return EmptyResponseText
	}

	var doc any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return string(trimmed)
	}
	for _, extract := range extractors {
		if text, ok := extract(doc); ok {
			return text
		}
	}
	if obj, ok := doc.(map[string]any); ok && len(obj) == 0 {
		return EmptyResponseText
	}
	return string(trimmed)
}

func pathExtractor(path ...any) extractor {
	return func(doc any) (string, bool) {
		current := doc
		for _, step := range path {
			switch key := step.(type) {
			case string:
				obj, ok := current.(map[string]any)
				if !ok {
					return "", false
				}
				current, ok = obj[key]
				if !ok {
					return "", false
				}
			case int:
				list, ok := current.([]any)
				if !ok || key >= len(list) {
					return "", false
				}
				current = list[key]
			}
		}
		text, ok := current.(string)
		if !ok || strings.TrimSpace(text) == "" {
			return "", false
		}
		return text, true
	}
}
