// Package safeurl checks URL schemes for sources and streams.
package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes for fetched sources.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

var playableSchemes = map[string]bool{
	"http": true, "https": true,
	"rtmp": true, "rtmps": true,
	"rtsp": true,
	"udp":  true, "rtp": true,
}

// IsPlayable reports whether u names a stream a media server can open directly:
// an absolute URL with a host and a streaming-capable scheme.
func IsPlayable(u string) bool {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil || parsed.Host == "" {
		return false
	}
	return playableSchemes[parsed.Scheme]
}

// Host returns the lower-cased host of u without port or a leading "www.",
// or "" when u does not parse.
func Host(u string) string {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// HostMatches reports whether host equals domain or is a subdomain of it.
func HostMatches(host, domain string) bool {
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
