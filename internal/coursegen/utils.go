package coursegen

import (
	"encoding/json"
	"fmt"
	"strings"
)

func clampString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return strings.TrimSpace(s[:maxLen])
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func toStringSlice(v any) []string {
	if v == nil {
		return []string{}
	}
	a, ok := v.([]any)
	if !ok {
		if ss, ok2 := v.([]string); ok2 {
			return ss
		}
		return []string{}
	}
	out := make([]string, 0, len(a))
	for _, x := range a {
		out = append(out, fmt.Sprint(x))
	}
	return out
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
