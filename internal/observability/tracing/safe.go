package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var sensitiveKeyFragments = []string{"password", "token", "secret", "cookie", "authorization", "email"}

// SafeAttributes drops attributes whose keys look like credentials or PII.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveKey(string(attr.Key)) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error carrying only the outermost message, truncated.
// Wrapped causes may embed SQL or user input.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if idx := strings.Index(msg, ":"); idx > 0 {
		msg = msg[:idx]
	}
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return errors.New(msg)
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}
