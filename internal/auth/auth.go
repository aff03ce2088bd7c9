// Package auth guards mutating API routes with a static bearer token.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// publicPaths may be read without a token.
var publicPaths = map[string]bool{
	"/":                        true,
	"/index.html":              true,
	"/app.js":                  true,
	"/styles.css":              true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/scene":            true,
	"/api/v1/frame":            true,
	"/api/v1/objects":          true,
	"/api/v1/positions":        true,
	"/api/v1/catalog/metadata": true,
}

// publicPrefixes may be read without a token.
var publicPrefixes = []string{
	"/api/v1/objects/",
	"/api/v1/stream/",
}

// isPublic reports whether r is a read of a public path. Any other method
// always needs the token.
func isPublic(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	if publicPaths[r.URL.Path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// validToken reports whether header carries "Bearer <token>".
func validToken(header, token string) bool {
	got, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// Middleware returns an HTTP middleware that enforces Bearer token auth on
// everything but public reads when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isPublic(r) || validToken(r.Header.Get("Authorization"), cfg.Token) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="orbitscope"`)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		})
	}
}
