package utils

import (
	"net/http"
	"strings"
)

const FallbackIPAddress = "0.0.0.0"

// ClientIdentifier keys rate limiting and history: the first X-Forwarded-For
// hop, then X-Real-IP, then FallbackIPAddress. A blank first hop counts as absent.
func ClientIdentifier(r *http.Request) string {
	forwardedFor, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	if first := strings.TrimSpace(forwardedFor); first != "" {
		return first
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return FallbackIPAddress
}
