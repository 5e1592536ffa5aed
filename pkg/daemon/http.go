package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/events"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
	"github.com/jamesainslie/hotreload/pkg/reload/watcher"
)

// Snapshot is the body of GET /state.
type Snapshot struct {
	StartedAt time.Time             `json:"started_at"`
	Uptime    string                `json:"uptime"`
	Cache     cache.MetricsSnapshot `json:"cache"`
	Events    events.Stats          `json:"events"`
	Paths     []watcher.StateInfo   `json:"paths"`
}

// Healthz is the body of GET /healthz.
type Healthz struct {
	Status  string `json:"status"`
	Watched int    `json:"watched"`
	Failed  int    `json:"failed"`
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/state", s.handleState)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.engine.Registry(), promhttp.HandlerOpts{}))

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	h := Healthz{Status: "ok"}
	for _, info := range s.engine.States() {
		h.Watched++
		if info.State == watcher.StateFailed {
			h.Failed++
		}
	}
	if h.Failed > 0 {
		h.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, h)
}

// handleState dumps every path, or one path with ?path=.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if path := r.URL.Query().Get("path"); path != "" {
		info, ok := s.engine.State(path)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not watched: " + path})
			return
		}
		writeJSON(w, http.StatusOK, info)
		return
	}

	writeJSON(w, http.StatusOK, Snapshot{
		StartedAt: s.started,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Cache:     s.engine.Metrics(),
		Events:    s.engine.EventStats(),
		Paths:     s.engine.States(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get("daemon").Debug("writing response", "error", err)
	}
}
