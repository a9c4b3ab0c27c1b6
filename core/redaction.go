package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactSensitiveMap masks credentials, bearer tokens and authentication codes
// before fields reach logs or the activity trail.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	sensitiveTokens := []string{
		"password",
		"pin",
		"secret",
		"token",
		"authorization",
		"bearer",
		"refresh",
		"credential",
		"tan",
		"otp",
		"auth_code",
		"challenge",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "operation_id",
		"authorisation_id",
		"method_id",
		"sca_status",
		"idempotency_key",
		"trace_id",
		"request_id":
		return true
	default:
		return false
	}
}

// RedactKeyValues applies the same masking to alternating key/value log
// arguments. Non-string keys are left alone.
func RedactKeyValues(args ...any) []any {
	if len(args) == 0 {
		return args
	}
	out := make([]any, len(args))
	copy(out, args)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		if shouldRedactKey(key) {
			out[i+1] = RedactedValue
			continue
		}
		out[i+1] = redactSensitiveValue(out[i+1])
	}
	return out
}
