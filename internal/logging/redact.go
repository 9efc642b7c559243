package logging

import (
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

// RedactedKeys lists attribute keys whose values never reach the output.
var RedactedKeys = map[string]struct{}{
	"token":         {},
	"access_token":  {},
	"key":           {},
	"raw_key":       {},
	"key_hash":      {},
	"hash":          {},
	"password":      {},
	"password_hash": {},
	"secret":        {},
	"secret_key":    {},
	"authorization": {},
}

// RedactAttr is a slog.HandlerOptions.ReplaceAttr hook masking RedactedKeys.
func RedactAttr(_ []string, a slog.Attr) slog.Attr {
	if _, ok := RedactedKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}
