package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Headers consulted by GetIP, highest priority first. X-Forwarded-For is
// handled separately because it carries a list.
const (
	HeaderCDN       = "CF-Connecting-IP"
	HeaderForwarded = "X-Forwarded-For"
	HeaderPlatform  = "X-Real-IP"
)

// GetIP returns the client's IP address. The first valid value wins:
//  1. CF-Connecting-IP (CDN edge)
//  2. X-Forwarded-For (first valid entry)
//  3. X-Real-IP (platform proxy)
//  4. RemoteAddr
//
// Invalid header values are skipped, not trusted. An empty string means no
// usable address was found.
func GetIP(r *http.Request) string {
	if ip := parseIP(r.Header.Get(HeaderCDN)); ip != "" {
		return ip
	}

	if forwarded := r.Header.Get(HeaderForwarded); forwarded != "" {
		for part := range strings.SplitSeq(forwarded, ",") {
			if ip := parseIP(part); ip != "" {
				return ip
			}
		}
	}

	if ip := parseIP(r.Header.Get(HeaderPlatform)); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

// parseIP validates and normalizes an address. Returns "" when invalid.
func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}

// Normalize returns the canonical form of an address, or "" when invalid.
func Normalize(ip string) string {
	return parseIP(ip)
}

// IsLoopback reports whether ip is a loopback address.
func IsLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
