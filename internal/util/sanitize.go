package util

import (
	"regexp"
	"strings"
)

const (
	redacted = "[REDACTED]"

	// Hostile payloads can nest arbitrarily deep; stop descending past this.
	maxSanitizeDepth = 8
)

var (
	sensitiveKeyRe = regexp.MustCompile(`(?i)(secret|token|password|authorization|api[_-]?key|signature|phone|email|card)`)
	emailValueRe   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneValueRe   = regexp.MustCompile(`^\+?[\d\s\-()]{7,20}$`)
)

// Sanitize returns a deep copy of v with sensitive fields replaced by a
// placeholder. Matching is done on both key names and value shapes so that
// a phone number under an innocuous key still gets redacted. Safe to call
// on any decoded JSON value.
func Sanitize(v interface{}) interface{} {
	return sanitizeValue(v, "", 0)
}

// SanitizeMap is Sanitize specialized to the common decoded-object case.
func SanitizeMap(m map[string]interface{}) map[string]interface{} {
	out, _ := sanitizeValue(m, "", 0).(map[string]interface{})
	return out
}

// looksLikePhone wants at least nine digits so that ISO dates and short
// numeric codes pass through unredacted.
func looksLikePhone(s string) bool {
	if !phoneValueRe.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 9
}

func sanitizeValue(v interface{}, key string, depth int) interface{} {
	if depth > maxSanitizeDepth {
		return redacted
	}

	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if sensitiveKeyRe.MatchString(k) {
				out[k] = redacted
				continue
			}
			out[k] = sanitizeValue(inner, k, depth+1)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = sanitizeValue(inner, key, depth+1)
		}
		return out
	case string:
		trimmed := strings.TrimSpace(val)
		if emailValueRe.MatchString(trimmed) || looksLikePhone(trimmed) {
			return redacted
		}
		return val
	default:
		return val
	}
}
