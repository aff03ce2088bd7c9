package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/star/orbitscope/internal/httputil"
	"github.com/star/orbitscope/internal/propagation"
	"github.com/star/orbitscope/internal/tle"
	"github.com/star/orbitscope/internal/transform"
)

// maxPositionsOffset bounds how far from now /positions may propagate.
const maxPositionsOffset = 30 * 24 * time.Hour

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeObjectsError maps propagator errors to responses.
func writeObjectsError(w http.ResponseWriter, err error) {
	if errors.Is(err, propagation.ErrNoDataset) {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// GET /api/v1/scene
func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	sc := s.deps.Animator.Scene()
	if sc == nil {
		writeError(w, http.StatusServiceUnavailable, "scene not ready")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// GET /api/v1/frame
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	f := s.deps.Animator.Latest()
	if f == nil {
		writeError(w, http.StatusServiceUnavailable, "no frame yet")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type objectSummary struct {
	NORADID       int       `json:"norad_id"`
	Name          string    `json:"name"`
	Epoch         time.Time `json:"epoch"`
	EpochAgeHours float64   `json:"epoch_age_hours"`
}

// GET /api/v1/objects
func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	objects, fetchedAt, err := s.deps.Propagator.Objects()
	if err != nil {
		writeObjectsError(w, err)
		return
	}

	now := time.Now()
	out := make([]objectSummary, len(objects))
	for i, o := range objects {
		out[i] = objectSummary{
			NORADID:       o.NORADID,
			Name:          o.Name,
			Epoch:         o.Epoch,
			EpochAgeHours: now.Sub(o.Epoch).Hours(),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"dataset_fetched_at": fetchedAt.UTC().Format(time.RFC3339),
		"count":              len(out),
		"objects":            out,
	})
}

type objectDetail struct {
	objectSummary
	Timestamp    time.Time  `json:"timestamp"`
	Frame        string     `json:"frame"`
	PositionKm   [3]float64 `json:"position_km"`
	VelocityKmS  [3]float64 `json:"velocity_km_s"`
	LatitudeDeg  float64    `json:"latitude_deg"`
	LongitudeDeg float64    `json:"longitude_deg"`
	AltitudeKm   float64    `json:"altitude_km"`
}

// GET /api/v1/objects/{norad_id}
func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["norad_id"])
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid norad_id")
		return
	}

	obj, ok, err := s.deps.Propagator.Object(id)
	if err != nil {
		writeObjectsError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "object not tracked")
		return
	}

	now := time.Now().UTC()
	res := obj.At(now)
	if !res.OK() {
		writeError(w, http.StatusUnprocessableEntity, "propagation failed: "+res.Err.Error())
		return
	}

	geo := transform.TEMEToGeodetic(res.Position, now)
	writeJSON(w, http.StatusOK, objectDetail{
		objectSummary: objectSummary{
			NORADID:       obj.NORADID,
			Name:          obj.Name,
			Epoch:         obj.Epoch,
			EpochAgeHours: now.Sub(obj.Epoch).Hours(),
		},
		Timestamp:    now,
		Frame:        "TEME",
		PositionKm:   res.Position,
		VelocityKmS:  res.Velocity,
		LatitudeDeg:  geo.LatitudeDeg,
		LongitudeDeg: geo.LongitudeDeg,
		AltitudeKm:   geo.AltitudeKm,
	})
}

type positionPayload struct {
	NORADID     int        `json:"norad_id"`
	Name        string     `json:"name"`
	PositionKm  [3]float64 `json:"position_km"`
	VelocityKmS [3]float64 `json:"velocity_km_s"`
}

// GET /api/v1/positions?t=RFC3339
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	target := now
	if v := r.URL.Query().Get("t"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid t parameter, must be RFC 3339")
			return
		}
		if d := t.Sub(now); d > maxPositionsOffset || d < -maxPositionsOffset {
			writeError(w, http.StatusBadRequest, "t must be within 30 days of now")
			return
		}
		target = t.UTC()
	}

	snap, err := s.deps.Propagator.PropagateToTime(r.Context(), target)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeObjectsError(w, err)
		return
	}

	out := make([]positionPayload, len(snap.Positions))
	for i, p := range snap.Positions {
		out[i] = positionPayload{
			NORADID:     p.NORADID,
			Name:        p.Name,
			PositionKm:  p.Position,
			VelocityKmS: p.Velocity,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": snap.Timestamp.Format(time.RFC3339),
		"frame":     "TEME",
		"count":     len(out),
		"positions": out,
	})
}

type catalogMetadata struct {
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds int       `json:"age_seconds"`
	Count      int       `json:"count"`
	EpochMin   time.Time `json:"epoch_min"`
	EpochMax   time.Time `json:"epoch_max"`
}

func metadataOf(ds *tle.TLEDataset) catalogMetadata {
	return catalogMetadata{
		Source:     ds.Source,
		FetchedAt:  ds.FetchedAt.UTC(),
		AgeSeconds: int(time.Since(ds.FetchedAt).Seconds()),
		Count:      len(ds.Satellites),
		EpochMin:   ds.EpochRange.Min.UTC(),
		EpochMax:   ds.EpochRange.Max.UTC(),
	}
}

// GET /api/v1/catalog/metadata
func (s *Server) handleCatalogMetadata(w http.ResponseWriter, r *http.Request) {
	ds := s.deps.Store.Get()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	writeJSON(w, http.StatusOK, metadataOf(ds))
}

// POST /api/v1/catalog/refresh
func (s *Server) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	if s.deps.Loader == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog fetch disabled")
		return
	}

	ip := httputil.ClientIP(r, s.config.TrustProxy)
	if !s.refresh.allow(ip) {
		s.logger.Warn("catalog refresh rate limited", "remote_ip", ip)
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "too many refresh requests")
		return
	}

	ds, err := s.deps.Loader.Refresh(r.Context())
	if err != nil {
		s.logger.Warn("manual catalog refresh failed", "remote_ip", ip, "error", err)
		writeError(w, http.StatusBadGateway, "refresh failed: "+err.Error())
		return
	}

	s.logger.Info("manual catalog refresh", "remote_ip", ip, "count", len(ds.Satellites))
	writeJSON(w, http.StatusOK, metadataOf(ds))
}
