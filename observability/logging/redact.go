package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces secret material such as API keys and HMAC signatures
// in log output.
const RedactedValue = "[REDACTED]"

// Keys on this list are safe to log verbatim. Partner and holder addresses
// plus vault identifiers are public on the ledger, so masking them would only
// make incidents harder to trace.
var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"partner":   {},
	"holder":    {},
	"vault":     {},
	"route":     {},
}

// IsAllowlisted reports whether the key may be logged without masking.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns the sorted set of keys exempt from masking.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue masks non-empty values. Empty strings pass through so absent
// headers do not show up as redacted.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds a slog.Attr whose value is masked unless the key is
// allowlisted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
