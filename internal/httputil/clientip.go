// Package httputil holds request helpers shared by the API and the stream.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address used to key per-client limits.
//
// With trustProxy set, the leftmost X-Forwarded-For entry and then X-Real-IP
// are consulted before RemoteAddr. Header values that do not parse as an IP
// (optionally with a port) are ignored. Only enable trustProxy behind a
// reverse proxy that overwrites these headers.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := parseIP(first); ip != "" {
				return ip
			}
		}
		if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	if ip := parseIP(r.RemoteAddr); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// parseIP accepts "ip", "ip:port" or "[ipv6]:port" and returns the canonical
// IP string, or "" if s holds no IP.
func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	ip := net.ParseIP(strings.Trim(s, "[]"))
	if ip == nil {
		return ""
	}
	return ip.String()
}
