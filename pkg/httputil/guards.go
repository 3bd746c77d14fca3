package httputil

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// BillingWebhookPath receives signed billing events and must see the raw body
const BillingWebhookPath = "/api/billing/webhook"

// MaxAPILogLineLength bounds a request log line in runes
const MaxAPILogLineLength = 80

// IsBillingWebhookRequest matches the webhook path exactly, with or without a
// query string. Sub-paths do not match.
func IsBillingWebhookRequest(url string) bool {
	return url == BillingWebhookPath || strings.HasPrefix(url, BillingWebhookPath+"?")
}

// ShouldSkipBodyParsers reports whether generic body parsing must be bypassed
// so the handler can verify a signature against the raw payload.
func ShouldSkipBodyParsers(url string) bool {
	return IsBillingWebhookRequest(url)
}

// APILogEntry describes one completed API request. It deliberately has no
// body fields.
type APILogEntry struct {
	Method     string
	Path       string
	StatusCode int
	DurationMs int64
}

// BuildAPILogLine formats "METHOD path status in Nms", truncated to at most
// MaxAPILogLineLength runes with a trailing ellipsis.
func BuildAPILogLine(entry APILogEntry) string {
	line := fmt.Sprintf("%s %s %d in %dms", entry.Method, entry.Path, entry.StatusCode, entry.DurationMs)
	if utf8.RuneCountInString(line) <= MaxAPILogLineLength {
		return line
	}

	runes := []rune(line)
	return string(runes[:MaxAPILogLineLength-1]) + "…"
}
