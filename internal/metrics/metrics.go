// Package metrics exposes Prometheus instrumentation for the HTTP surface, the
// catalog loader, SGP4 propagation, the frame loop and the websocket stream.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitscope_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbitscope_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	catalogFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitscope_catalog_fetches_total",
			Help: "Catalog fetch attempts by result.",
		},
		[]string{"result"},
	)

	catalogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitscope_catalog_entries",
		Help: "Number of entries in the current catalog.",
	})

	catalogAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitscope_catalog_age_seconds",
		Help: "Seconds since the current catalog was fetched.",
	})

	trackedObjects = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitscope_tracked_objects",
		Help: "Number of objects driven by the frame loop.",
	})

	propagationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitscope_propagations_total",
			Help: "SGP4 propagations by result.",
		},
		[]string{"result"},
	)

	propagationBatchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitscope_propagation_batch_seconds",
		Help:    "Duration of a batch propagation over the catalog.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	frameDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitscope_frame_duration_seconds",
		Help:    "Duration of one frame update.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitscope_stream_connections_total",
			Help: "Websocket stream connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitscope_streams_active",
		Help: "Currently open websocket streams.",
	})

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitscope_stream_messages_total",
		Help: "Messages written to websocket streams.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitscope_stream_bytes_total",
		Help: "Bytes written to websocket streams.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitscope_stream_errors_total",
			Help: "Websocket stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		catalogFetchesTotal,
		catalogSize,
		catalogAgeSeconds,
		trackedObjects,
		propagationsTotal,
		propagationBatchSeconds,
		frameDurationSeconds,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncCatalogFetch counts a catalog fetch with result "ok" or "error".
func IncCatalogFetch(result string) { catalogFetchesTotal.WithLabelValues(result).Inc() }

// SetCatalogSize records the number of entries in the current catalog.
func SetCatalogSize(n int) { catalogSize.Set(float64(n)) }

// SetCatalogAge records the age of the current catalog.
func SetCatalogAge(seconds float64) { catalogAgeSeconds.Set(seconds) }

// SetTrackedObjects records how many objects the frame loop drives.
func SetTrackedObjects(n int) { trackedObjects.Set(float64(n)) }

// RecordPropagation records one batch propagation.
func RecordPropagation(d time.Duration, success, failed int) {
	propagationBatchSeconds.Observe(d.Seconds())
	propagationsTotal.WithLabelValues("ok").Add(float64(success))
	propagationsTotal.WithLabelValues("error").Add(float64(failed))
}

// RecordFrame records one frame update.
func RecordFrame(d time.Duration, updated, failed int) {
	frameDurationSeconds.Observe(d.Seconds())
	propagationsTotal.WithLabelValues("ok").Add(float64(updated))
	propagationsTotal.WithLabelValues("error").Add(float64(failed))
}

// IncStreamConnections counts a "connect" or "disconnect" event.
func IncStreamConnections(event string) { streamConnectionsTotal.WithLabelValues(event).Inc() }

// IncStreamsActive increments the open stream gauge.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive decrements the open stream gauge.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamMessages counts a message written to a stream.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// AddStreamBytes counts bytes written to a stream.
func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }

// knownRoutes are exact paths reported under their own label.
var knownRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/app.js":                  true,
	"/styles.css":              true,
	"/api/v1/scene":            true,
	"/api/v1/frame":            true,
	"/api/v1/objects":          true,
	"/api/v1/positions":        true,
	"/api/v1/catalog/metadata": true,
	"/api/v1/catalog/refresh":  true,
	"/api/v1/stream/frames":    true,
}

const objectsPrefix = "/api/v1/objects/"

// normalizeRoute maps a request path to a bounded set of metric labels.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, objectsPrefix); ok {
		if _, err := strconv.Atoi(id); err == nil {
			return objectsPrefix + "{norad_id}"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack lets websocket upgrades pass through the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
