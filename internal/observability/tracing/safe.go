package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys that may carry secrets or customer data are never exported.
var blockedAttributeKeys = map[attribute.Key]struct{}{
	"qr_token":           {},
	"signature":          {},
	"secret":             {},
	"customer_reference": {},
	"authorization":      {},
}

// SafeAttributes drops attributes whose keys are known to carry sensitive values.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attribute.Key(strings.ToLower(string(attr.Key)))]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError reduces an error to its message with token-like words redacted.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	words := strings.Fields(err.Error())
	for i, word := range words {
		if looksLikeToken(word) {
			words[i] = "[redacted]"
		}
	}
	return errors.New(strings.Join(words, " "))
}

func looksLikeToken(word string) bool {
	word = strings.Trim(word, `"'(),:;`)
	if len(word) < 32 {
		return false
	}
	for _, r := range word {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
