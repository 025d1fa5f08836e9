// Package normalize recovers a JSON object from free-form model output.
//
// Models often wrap their JSON in markdown fences or surround it with prose.
// ParseJSON tries, in order, the text between the first '{' and the last '}',
// then the whole (fence-stripped) text. Unparseable output is a normal result
// and yields nil, never an error.
package normalize

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	openingFence = regexp.MustCompile("(?i)```(?:json)?\n")
	closingFence = regexp.MustCompile("\n```$")
)

// ParseJSON returns the JSON object embedded in text, or nil.
func ParseJSON(text string) map[string]any {
	if text == "" {
		return nil
	}
	s := StripFences(text)

	for _, candidate := range candidates(s) {
		if obj, ok := decodeObject(candidate); ok {
			return obj
		}
	}
	return nil
}

// StripFences trims text and removes markdown code fences around it.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	s = openingFence.ReplaceAllString(s, "")
	return closingFence.ReplaceAllString(s, "")
}

// candidates lists the substrings to try, most forgiving first.
func candidates(s string) []string {
	var out []string
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first != -1 && last > first {
		out = append(out, s[first:last+1])
	}
	return append(out, s)
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
