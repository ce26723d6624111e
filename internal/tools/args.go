package tools

import (
	"fmt"
	"strings"
	"time"
)

// Args are the decoded JSON arguments of a tool call.
type Args map[string]any

// String returns a string argument.
func (a Args) String(key string) (string, bool) {
	s, ok := a[key].(string)
	return s, ok
}

// StringOr returns a string argument or def when absent or empty.
func (a Args) StringOr(key, def string) string {
	if s, ok := a[key].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return def
}

// Seconds reads a timeout given in seconds and clamps it to [min, max].
// Missing or non-numeric values give def.
func (a Args) Seconds(key string, def, min, max time.Duration) time.Duration {
	var secs float64
	switch v := a[key].(type) {
	case float64:
		secs = v
	case int:
		secs = float64(v)
	case string:
		if _, err := fmt.Sscanf(v, "%g", &secs); err != nil {
			return def
		}
	default:
		return def
	}
	if secs <= 0 {
		return def
	}
	d := time.Duration(secs * float64(time.Second))
	if d < min {
		d = min
	}
	if d > max {
		d = max
	}
	return d
}

// StringList accepts either a list of strings or nothing.
func (a Args) StringList(key string) ([]string, bool) {
	switch v := a[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Object returns a nested object argument.
func (a Args) Object(key string) (map[string]any, bool) {
	m, ok := a[key].(map[string]any)
	return m, ok
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// tail keeps the last n bytes of s, trimmed to valid UTF-8.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[len(s)-n:], "")
}
