package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/api/v1/scene", "/api/v1/scene"},
		{"/api/v1/frame", "/api/v1/frame"},
		{"/api/v1/objects", "/api/v1/objects"},
		{"/api/v1/positions", "/api/v1/positions"},
		{"/api/v1/catalog/metadata", "/api/v1/catalog/metadata"},
		{"/api/v1/catalog/refresh", "/api/v1/catalog/refresh"},
		{"/api/v1/stream/frames", "/api/v1/stream/frames"},

		// Parameterized object routes collapse to one label.
		{"/api/v1/objects/25544", "/api/v1/objects/{norad_id}"},
		{"/api/v1/objects/44713", "/api/v1/objects/{norad_id}"},
		{"/api/v1/objects/1", "/api/v1/objects/{norad_id}"},

		// Unknown/bot paths collapse to "other".
		{"/api/v1/objects/abc", "other"},
		{"/wp-admin", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 unique NORAD IDs produce
// exactly 1 distinct path label, not 100.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[normalizeRoute("/api/v1/objects/"+strconv.Itoa(40000+i))] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

// TestMiddlewareCountsStatus verifies the middleware records the handler's status code.
func TestMiddlewareCountsStatus(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("other", "GET", "418"))

	req := httptest.NewRequest("GET", "/teapot", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", w.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("other", "GET", "418"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestRecordFrame(t *testing.T) {
	okBefore := testutil.ToFloat64(propagationsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(propagationsTotal.WithLabelValues("error"))

	RecordFrame(0, 3, 2)

	if d := testutil.ToFloat64(propagationsTotal.WithLabelValues("ok")) - okBefore; d != 3 {
		t.Errorf("ok delta = %v, want 3", d)
	}
	if d := testutil.ToFloat64(propagationsTotal.WithLabelValues("error")) - errBefore; d != 2 {
		t.Errorf("error delta = %v, want 2", d)
	}
}
