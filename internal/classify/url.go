package classify

import (
	"net/url"
	"strings"
)

var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"gclid", "fbclid", "yclid", "mc_cid", "mc_eid",
}

// IsValidURL reports whether text parses as an absolute URI with both a scheme and a host.
func IsValidURL(text string) bool {
	if text == "" || strings.TrimSpace(text) != text {
		return false
	}
	if strings.ContainsAny(text, " \t\r\n") {
		return false
	}
	parsed, err := url.Parse(text)
	if err != nil {
		return false
	}
	return parsed.Scheme != "" && parsed.Host != ""
}

// CandidateURL cleans up a model reply that is expected to hold a single URL.
func CandidateURL(reply string) string {
	candidate := strings.TrimSpace(reply)
	candidate = strings.TrimPrefix(candidate, "URL:")
	candidate = strings.TrimSpace(candidate)
	if strings.HasPrefix(candidate, "[") && strings.HasSuffix(candidate, ")") {
		if idx := strings.Index(candidate, "]("); idx >= 0 {
			candidate = candidate[idx+2 : len(candidate)-1]
		}
	}
	candidate = strings.Trim(candidate, "\"'`<>")
	return strings.TrimSpace(candidate)
}

// NormalizeURL drops fragments and tracking parameters. Non-http(s) input yields "".
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	parsed.Fragment = ""
	if parsed.RawQuery != "" {
		query := parsed.Query()
		for _, key := range trackingParams {
			query.Del(key)
		}
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

// Host returns the lower-cased hostname of raw, or "" when it does not parse.
func Host(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
