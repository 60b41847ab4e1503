package logger

import (
	"log/slog"
	"strconv"
	"strings"
)

// Attributes whose key contains one of these are fully redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"credential",
	"auth",
}

// Attributes carrying stored payloads. Their string values are truncated.
var payloadKeys = map[string]struct{}{
	"value":   {},
	"payload": {},
	"arg":     {},
}

const (
	redactedValue = "***REDACTED***"

	// maxPayloadLog is how much of a payload value is kept in a log line.
	maxPayloadLog = 32
)

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		strVal := a.Value.String()
		if strVal == "" {
			return a
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
		if _, ok := payloadKeys[strings.ToLower(a.Key)]; ok {
			return slog.String(a.Key, TruncatePayload(strVal))
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}
	return a
}

// TruncatePayload shortens a stored value for logging, keeping its length.
func TruncatePayload(value string) string {
	if len(value) <= maxPayloadLog {
		return value
	}
	cut := maxPayloadLog
	// Do not split a UTF-8 sequence.
	for cut > 0 && value[cut]&0xC0 == 0x80 {
		cut--
	}
	return value[:cut] + "...(" + strconv.Itoa(len(value)) + " bytes)"
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
