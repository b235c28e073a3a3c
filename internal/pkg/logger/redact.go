package logger

import "strings"

// sensitiveKeys are substrings of field names whose values must never be
// logged in full. Shopee session cookies are long-lived credentials; Telegram
// bot tokens grant full bot control.
var sensitiveKeys = []string{"cookie", "token", "secret", "password"}

// RedactCredential masks an opaque credential string for safe logging.
// "SPC_EC=abcdef0123456789" → "SPC_EC=ab***89" (first 2 and last 2 kept).
// Values of 6 characters or fewer are fully masked.
func RedactCredential(val string) string {
	val = strings.TrimSpace(val)
	if len(val) <= 6 {
		return "***"
	}
	return val[:2] + "***" + val[len(val)-2:]
}

func redactSensitive(key, val string) string {
	lower := strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if strings.Contains(lower, k) {
			return RedactCredential(val)
		}
	}
	return val
}
