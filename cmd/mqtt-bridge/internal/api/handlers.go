// Package api provides the admin HTTP endpoints for the bridge daemon:
// a health check and a metrics snapshot.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coregx/mqttbridge"
	"github.com/coregx/mqttbridge/model"
)

// DeadLetterStore is the subset of the repository the admin API reads from.
type DeadLetterStore interface {
	Stats(ctx context.Context) (model.DeadLetterStats, error)
}

// Handler serves the admin endpoints.
type Handler struct {
	pipeline *mqttbridge.Pipeline
	store    DeadLetterStore // optional
	logger   mqttbridge.Logger
}

// NewHandler creates an admin handler. store may be nil when no queryable
// dead-letter backend is configured.
func NewHandler(pipeline *mqttbridge.Pipeline, store DeadLetterStore, logger mqttbridge.Logger) *Handler {
	return &Handler{pipeline: pipeline, store: store, logger: logger}
}

// Routes registers the admin endpoints on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// metricsResponse is the /metrics payload.
type metricsResponse struct {
	Arrivals     int64                  `json:"arrivals"`
	Dropped      int64                  `json:"dropped"`
	Delivered    int64                  `json:"delivered"`
	Abandoned    int64                  `json:"abandoned"`
	Retries      int64                  `json:"retries"`
	QueueDepth   int                    `json:"queue_depth"`
	RetryPending int                    `json:"retry_pending"`
	Uptime       string                 `json:"uptime"`
	DeadLetters  *model.DeadLetterStats `json:"dead_letters,omitempty"`
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := h.pipeline.Metrics().Snapshot()

	resp := metricsResponse{
		Arrivals:     snap.Arrivals,
		Dropped:      snap.Dropped,
		Delivered:    snap.Delivered,
		Abandoned:    snap.Abandoned,
		Retries:      snap.Retries,
		QueueDepth:   h.pipeline.QueueDepth(),
		RetryPending: h.pipeline.RetryPending(),
		Uptime:       time.Since(snap.StartedAt).Round(time.Second).String(),
	}

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		stats, err := h.store.Stats(ctx)
		if err != nil {
			h.logger.Warnf("admin: dead-letter stats unavailable: %v", err)
		} else {
			resp.DeadLetters = &stats
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Errorf("admin: write response: %v", err)
	}
}
