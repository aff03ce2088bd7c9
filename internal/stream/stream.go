// Package stream pushes animator frames to browsers over a websocket.
// Clients connect via GET /api/v1/stream/frames and receive marker positions
// as they are produced by the frame loop.
//
// Message format (one JSON text message per frame):
//
//	{"type":"frame","seq":42,"t":"2024-04-09T12:00:00Z","dataset":"...","frame":"TEME","earth_rotation":0.12,"obj":[...]}
//
// First message is always metadata:
//
//	{"type":"metadata","source":"...","dataset":"...","dataset_epoch":"...","tle_age_seconds":1800,"objects":50}
//
// A fresh metadata message precedes the first frame of every new dataset.
// Objects in "obj" are in scene order; clients match them by index.
//
// Websocket pings are sent every KeepaliveInterval; a peer that stops
// answering is disconnected after two intervals.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/star/orbitscope/internal/httputil"
	"github.com/star/orbitscope/internal/metrics"
	"github.com/star/orbitscope/internal/scene"
	"github.com/star/orbitscope/internal/tle"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	BandwidthLimit     int           // Bytes per second per stream, 0 for unlimited (default: 1048576).
	KeepaliveInterval  time.Duration // Ping interval (default: 30s).
	MaxFrameRate       float64       // Upper bound for the client-chosen rate (default: 30).
	TrustProxy         bool          // Use X-Forwarded-For for the per-IP cap.
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		MaxTotal:           defaultMaxTotal,
		BandwidthLimit:     1048576,
		KeepaliveInterval:  30 * time.Second,
		MaxFrameRate:       30,
	}
}

// FrameSource is the animator as seen by the stream.
type FrameSource interface {
	Subscribe(buffer int) (<-chan *scene.Frame, func())
	Recent(n int) []*scene.Frame
	Scene() *scene.Scene
}

// Handler manages websocket streaming connections.
type Handler struct {
	frames   FrameSource
	store    *tle.Store
	config   Config
	limiter  *streamLimiter
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(frames FrameSource, store *tle.Store, config Config, logger *slog.Logger) *Handler {
	def := DefaultConfig()
	if config.MaxConcurrentPerIP < 1 {
		config.MaxConcurrentPerIP = def.MaxConcurrentPerIP
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = def.KeepaliveInterval
	}
	if config.MaxFrameRate <= 0 {
		config.MaxFrameRate = def.MaxFrameRate
	}

	return &Handler{
		frames:  frames,
		store:   store,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The frontend is served from this process; any origin may view it.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ActiveStreams returns the number of open streams.
func (h *Handler) ActiveStreams() int {
	_, total := h.limiter.usage("")
	return total
}

// HandleFrames serves the websocket frame stream.
// GET /api/v1/stream/frames?rate=10&trail=20
func (h *Handler) HandleFrames(w http.ResponseWriter, r *http.Request) {
	fps := h.config.MaxFrameRate
	if v := r.URL.Query().Get("rate"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 1 || n > h.config.MaxFrameRate {
			writeError(w, http.StatusBadRequest, "invalid rate parameter, must be 1-"+strconv.FormatFloat(h.config.MaxFrameRate, 'f', -1, 64))
			return
		}
		fps = n
	}

	trail := 0
	if v := r.URL.Query().Get("trail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 120 {
			writeError(w, http.StatusBadRequest, "invalid trail parameter, must be 0-120")
			return
		}
		trail = n
	}

	// Enforce concurrent stream limit per IP before upgrading.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, limit := h.limiter.admit(ip)
	if release == nil {
		metrics.IncStreamErrors("rate_limit")
		forIP, total := h.limiter.usage(ip)
		h.logger.Warn("stream limit exceeded",
			"remote_ip", ip,
			"limit", limit,
			"ip_streams", forIP,
			"total_streams", total,
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams ("+limit+" limit)")
		return
	}
	defer release()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		metrics.IncStreamErrors("upgrade_error")
		h.logger.Warn("stream upgrade failed", "remote_ip", ip, "error", err)
		return
	}
	defer conn.Close()

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"rate", fps,
		"trail", trail,
	)

	c := newClient(conn, ip, h.config.BandwidthLimit, h.logger)

	defer func() {
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages_sent", c.messagesSent,
			"bytes_sent", c.bytesSent,
		)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.readPump(cancel, h.config.KeepaliveInterval)

	// Subscribe before the metadata message so no frame produced after it
	// is missed.
	frames, unsubscribe := h.frames.Subscribe(4)
	defer unsubscribe()

	var dataset time.Time
	if sc := h.frames.Scene(); sc != nil {
		dataset = sc.Dataset
	}
	if err := c.sendJSON(ctx, h.metadata(fps, dataset, nil)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	minInterval := time.Duration(float64(time.Second) / fps)
	// Frame timestamps jitter around the animator tick.
	minInterval -= minInterval / 10
	var lastSent time.Time

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case f, ok := <-frames:
			if !ok {
				c.close(websocket.CloseGoingAway, "server shutting down")
				return
			}
			if !lastSent.IsZero() && f.Time.Sub(lastSent) < minInterval {
				continue
			}

			if !f.Dataset.Equal(dataset) {
				if err := c.sendJSON(ctx, h.metadata(fps, f.Dataset, f)); err != nil {
					if ctx.Err() != nil {
						return
					}
					metrics.IncStreamErrors("send_error")
					h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
					return
				}
				dataset = f.Dataset
				h.logger.Debug("stream dataset changed", "remote_ip", ip, "objects", len(f.Objects))
			}

			var trailFrames []*scene.Frame
			if trail > 0 {
				trailFrames = h.frames.Recent(trail)
			}

			if err := c.sendJSON(ctx, buildFrameMessage(f, trailFrames)); err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			lastSent = f.Time

			// Reset keepalive since we just sent data.
			keepalive.Reset(h.config.KeepaliveInterval)

		case <-keepalive.C:
			if err := c.ping(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// metadata describes dataset. With f set, the object count comes from the
// frame so it always matches the frames that follow.
func (h *Handler) metadata(fps float64, dataset time.Time, f *scene.Frame) metadataMessage {
	meta := metadataMessage{Type: "metadata", Dataset: formatDataset(dataset), FrameRate: fps}
	if ds := h.store.Get(); ds != nil {
		meta.Source = ds.Source
		meta.DatasetEpoch = ds.FetchedAt.UTC().Format(time.RFC3339)
		meta.TLEAge = int(time.Since(ds.FetchedAt).Seconds())
	}
	if s := h.frames.Scene(); s != nil {
		meta.Objects = len(s.Objects)
		meta.RotationRate = s.RotationRate
	}
	if f != nil {
		meta.Objects = len(f.Objects)
	}
	return meta
}

// formatDataset renders a dataset identity the way encoding/json renders
// time.Time, so it compares equal to the scene's "dataset" field.
func formatDataset(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// buildFrameMessage formats a frame into the stream payload. If trailFrames is
// non-empty, each object includes its past positions (oldest first). Trails
// are matched by index and only taken from frames of the same dataset.
func buildFrameMessage(f *scene.Frame, trailFrames []*scene.Frame) frameMessage {
	objs := make([]objectPayload, len(f.Objects))
	for i, o := range f.Objects {
		objs[i] = objectPayload{
			ID:    o.ID,
			P:     o.P,
			Valid: o.Valid,
			Err:   o.Error,
		}
	}

	for _, tf := range trailFrames {
		if !tf.Dataset.Equal(f.Dataset) || len(tf.Objects) != len(f.Objects) {
			continue
		}
		for i, o := range tf.Objects {
			if o.Valid {
				objs[i].Tr = append(objs[i].Tr, o.P)
			}
		}
	}

	return frameMessage{
		Type:          "frame",
		Seq:           f.Seq,
		T:             f.Time.UTC().Format(time.RFC3339Nano),
		Dataset:       formatDataset(f.Dataset),
		Frame:         "TEME",
		EarthRotation: f.EarthRotation,
		Obj:           objs,
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Stream message payload types.

type metadataMessage struct {
	Type         string  `json:"type"`
	Source       string  `json:"source,omitempty"`
	Dataset      string  `json:"dataset,omitempty"`
	DatasetEpoch string  `json:"dataset_epoch,omitempty"`
	TLEAge       int     `json:"tle_age_seconds"`
	Objects      int     `json:"objects"`
	RotationRate float64 `json:"rotation_rate"`
	FrameRate    float64 `json:"frame_rate"`
}

type frameMessage struct {
	Type          string          `json:"type"`
	Seq           uint64          `json:"seq"`
	T             string          `json:"t"`
	Dataset       string          `json:"dataset,omitempty"`
	Frame         string          `json:"frame"`
	EarthRotation float64         `json:"earth_rotation"`
	Obj           []objectPayload `json:"obj"`
}

type objectPayload struct {
	ID    int          `json:"id"`
	P     scene.Vec3   `json:"p"`
	Valid bool         `json:"valid"`
	Err   string       `json:"err,omitempty"`
	Tr    []scene.Vec3 `json:"tr,omitempty"`
}
