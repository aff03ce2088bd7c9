package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware(t *testing.T) {
	enabled := Middleware(Config{Enabled: true, Token: "s3cret"})(okHandler())
	disabled := Middleware(Config{})(okHandler())

	tests := []struct {
		name       string
		handler    http.Handler
		method     string
		path       string
		header     string
		wantStatus int
	}{
		{"disabled allows refresh", disabled, "POST", "/api/v1/catalog/refresh", "", http.StatusOK},
		{"missing token", enabled, "POST", "/api/v1/catalog/refresh", "", http.StatusUnauthorized},
		{"wrong token", enabled, "POST", "/api/v1/catalog/refresh", "Bearer nope", http.StatusUnauthorized},
		{"no bearer prefix", enabled, "POST", "/api/v1/catalog/refresh", "s3cret", http.StatusUnauthorized},
		{"valid token", enabled, "POST", "/api/v1/catalog/refresh", "Bearer s3cret", http.StatusOK},
		{"frontend exempt", enabled, "GET", "/", "", http.StatusOK},
		{"health exempt", enabled, "GET", "/healthz", "", http.StatusOK},
		{"scene exempt", enabled, "GET", "/api/v1/scene", "", http.StatusOK},
		{"object detail exempt", enabled, "GET", "/api/v1/objects/25544", "", http.StatusOK},
		{"stream exempt", enabled, "GET", "/api/v1/stream/frames", "", http.StatusOK},
		{"unknown path protected", enabled, "GET", "/api/v1/admin", "", http.StatusUnauthorized},
		{"write to public path protected", enabled, "POST", "/api/v1/scene", "", http.StatusUnauthorized},
		{"empty bearer", enabled, "POST", "/api/v1/catalog/refresh", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			tt.handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("Content-Type") != "application/json" {
				t.Error("unauthorized response is not JSON")
			}
		})
	}
}
