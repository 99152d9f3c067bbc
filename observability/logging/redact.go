package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// keyishSegmentLen is the threshold above which a path segment is treated
// as a provider API key. RPC providers embed the key as the final path
// segment (`/v3/<32-hex>`, `/v2/<key>`), always well past this length.
const keyishSegmentLen = 16

// MaskEndpoint strips credentials from an RPC, websocket, or database
// endpoint before it reaches a log line: URL userinfo is dropped, query
// parameters (API keys ride there too) are masked wholesale, and a
// trailing key-length path segment is replaced. The scheme and host
// survive so an operator can still tell which endpoint a log line is
// about.
func MaskEndpoint(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if strings.TrimSpace(raw) == "" {
			return raw
		}
		return RedactedValue
	}

	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = RedactedValue
	}

	segments := strings.Split(u.Path, "/")
	if len(segments) > 0 {
		if last := segments[len(segments)-1]; len(last) >= keyishSegmentLen {
			segments[len(segments)-1] = RedactedValue
			u.Path = strings.Join(segments, "/")
			u.RawPath = u.Path // keeps the placeholder's brackets unescaped in String()
		}
	}
	return u.String()
}

// MaskValue returns the canonical redacted placeholder for non-empty values.
// Empty values are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// Endpoint returns a slog.Attr carrying the masked form of an endpoint URL,
// for call sites that log where they are connecting to.
func Endpoint(key, rawURL string) slog.Attr {
	return slog.String(key, MaskEndpoint(rawURL))
}
