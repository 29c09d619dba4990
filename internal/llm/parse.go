package llm

import (
	"encoding/json"
	"strings"
)

// extractJSON pulls the first balanced JSON object out of a completion,
// tolerating markdown code fences and prose around it. Returns false when no
// parseable object is found.
func extractJSON(s string) (string, bool) {
	s = stripFences(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// decodeInto extracts and unmarshals the JSON object in raw into v.
// Returns false when extraction or unmarshaling fails.
func decodeInto(raw string, v interface{}) bool {
	obj, ok := extractJSON(raw)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(obj), v) == nil
}
