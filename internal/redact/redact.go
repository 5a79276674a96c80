// Package redact removes likely secrets from text and from JSON-like event
// trees before they reach the transcript mirror, and from transcript lookup
// excerpts before they are emitted. The memory store itself is trusted and
// never redacted.
package redact

import (
	"regexp"
)

// Placeholder replaces every redacted value.
const Placeholder = "<REDACTED>"

var (
	pemBlockRe = regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`)
	bearerRe   = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._\-]{16,}`)
	apiKeyRe   = regexp.MustCompile(`\bsk-[A-Za-z0-9]{16,}\b`)

	// key=value and key: value assignments whose key looks sensitive.
	assignmentRe = regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|token|secret|password|passphrase|private[_-]?key|bearer)\b(\s*[=:]\s*)\S+`)

	sensitiveKeyRe = regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?token|token|secret|password|passphrase|private[_-]?key|bearer)`)
)

// String redacts secret-shaped substrings. The result is stable under
// repeated application.
func String(s string) string {
	if s == "" {
		return s
	}
	s = pemBlockRe.ReplaceAllString(s, Placeholder)
	s = bearerRe.ReplaceAllString(s, Placeholder)
	s = apiKeyRe.ReplaceAllString(s, Placeholder)
	s = assignmentRe.ReplaceAllString(s, "${1}${2}"+Placeholder)
	return s
}

// SensitiveKey reports whether a metadata or JSON key names a secret.
func SensitiveKey(key string) bool {
	return sensitiveKeyRe.MatchString(key)
}

// Tree walks a decoded JSON value and redacts it in depth. Values under a
// sensitive key are replaced wholesale; every other string value is passed
// through String. The input is not modified; a redacted copy is returned.
func Tree(v interface{}) interface{} {
	return redactValue(v, "")
}

func redactValue(v interface{}, keyHint string) interface{} {
	switch val := v.(type) {
	case string:
		if SensitiveKey(keyHint) && val != "" {
			return Placeholder
		}
		return String(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = redactValue(item, keyHint)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = redactValue(item, k)
		}
		return out
	default:
		return v
	}
}
