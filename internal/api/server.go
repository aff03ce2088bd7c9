package api

import (
	"bufio"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/star/orbitscope/internal/auth"
	"github.com/star/orbitscope/internal/health"
	"github.com/star/orbitscope/internal/metrics"
	"github.com/star/orbitscope/internal/propagation"
	"github.com/star/orbitscope/internal/scene"
	"github.com/star/orbitscope/internal/stream"
	"github.com/star/orbitscope/internal/tle"
)

// Config holds HTTP server settings.
type Config struct {
	Addr         string
	Auth         auth.Config
	TrustProxy   bool
	RefreshRate  float64 // manual catalog refreshes per second per IP
	RefreshBurst int
}

// Deps are the components the HTTP surface reads from.
type Deps struct {
	Store      *tle.Store
	Loader     *tle.Loader // nil when network fetches are disabled
	Propagator *propagation.Propagator
	Animator   *scene.Animator
	Stream     *stream.Handler
	Web        fs.FS
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	deps       Deps
	config     Config
	refresh    *ipRateLimiter
	logger     *slog.Logger
}

const apiPrefix = "/api/v1"

func isAPI(path string) bool {
	return path == apiPrefix || strings.HasPrefix(path, apiPrefix+"/")
}

func notAPI(r *http.Request, _ *mux.RouteMatch) bool {
	return !isAPI(r.URL.Path)
}

// notFound answers API paths with a JSON error and everything else with the
// plain net/http page.
func notFound(w http.ResponseWriter, r *http.Request) {
	if isAPI(r.URL.Path) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	http.NotFound(w, r)
}

// NewServer creates a configured HTTP server.
func NewServer(config Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		deps:    deps,
		config:  config,
		refresh: newIPRateLimiter(config.RefreshRate, config.RefreshBurst),
		logger:  logger,
	}

	r := mux.NewRouter()

	r.HandleFunc("/healthz", health.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", health.Readyz(deps.Store)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// API routes sit on the root router with full paths: a mux subrouter
	// reports a method mismatch as 404.
	api := func(path string, h http.HandlerFunc, methods ...string) {
		r.HandleFunc(apiPrefix+path, h).Methods(methods...)
	}
	api("/scene", s.handleScene, http.MethodGet)
	api("/frame", s.handleFrame, http.MethodGet)
	api("/objects", s.handleObjects, http.MethodGet)
	api("/objects/{norad_id}", s.handleObject, http.MethodGet)
	api("/positions", s.handlePositions, http.MethodGet)
	api("/catalog/metadata", s.handleCatalogMetadata, http.MethodGet)
	api("/catalog/refresh", s.handleCatalogRefresh, http.MethodPost)
	if deps.Stream != nil {
		api("/stream/frames", deps.Stream.HandleFrames, http.MethodGet)
	}

	if deps.Web != nil {
		// notAPI must run before the path matcher or an API method mismatch is lost.
		r.MatcherFunc(notAPI).PathPrefix("/").Methods(http.MethodGet, http.MethodHead).
			Handler(http.FileServer(http.FS(deps.Web)))
	}

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Build middleware chain: metrics -> logging -> auth -> router.
	var handler http.Handler = r
	handler = auth.Middleware(config.Auth)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	sr.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
