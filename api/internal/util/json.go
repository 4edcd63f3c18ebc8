package util

import (
	"encoding/json"
	"strings"
)

// MaxSearchPhraseLen caps a free-text search phrase recovered from a
// non-JSON reply.
const MaxSearchPhraseLen = 80

// ExtractJSONObject returns the substring between the first '{' and the last
// '}' of s after code fences are stripped. ok is false when no such pair exists.
func ExtractJSONObject(s string) (string, bool) {
	s = StripCodeFences(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// ParseSearchPhrase pulls a product search phrase out of a model reply.
//
// The reply is expected to be {"search_query": "..."}, possibly fenced or
// wrapped in prose. When no JSON object can be decoded, the trimmed reply
// itself (quotes stripped, capped at MaxSearchPhraseLen runes) is used. A
// decoded object without a usable phrase yields "".
func ParseSearchPhrase(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return ""
	}
	if obj, ok := ExtractJSONObject(trimmed); ok {
		var m map[string]any
		if err := json.Unmarshal([]byte(obj), &m); err == nil {
			for _, key := range []string{"search_query", "searchQuery", "query"} {
				if v, ok := m[key].(string); ok && strings.TrimSpace(v) != "" {
					return Truncate(strings.TrimSpace(v), MaxSearchPhraseLen)
				}
			}
			return ""
		}
	}
	return Truncate(TrimQuotes(trimmed), MaxSearchPhraseLen)
}
