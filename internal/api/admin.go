package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stiffinWanjohi/relayproxy/internal/delivery"
	"github.com/stiffinWanjohi/relayproxy/internal/queue"
)

// ChannelStats reports delivery channel counters.
type ChannelStats interface {
	Stats() queue.Stats
}

// ForwarderStats reports forwarding progress.
type ForwarderStats interface {
	Stats() delivery.Stats
}

// AdminConfig holds admin server configuration.
type AdminConfig struct {
	Version        string
	Destination    string
	MetricsHandler http.Handler // optional Prometheus handler
	Deliveries     http.Handler // optional live delivery stream, mounted at /deliveries
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Version       string         `json:"version"`
	Destination   string         `json:"destination"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Channel       queue.Stats    `json:"channel"`
	Forwarder     delivery.Stats `json:"forwarder"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Forwarder string `json:"forwarder"`
}

// AdminServer serves health, stats and metrics on a listener separate from ingest.
type AdminServer struct {
	router    *chi.Mux
	channel   ChannelStats
	forwarder ForwarderStats
	cfg       AdminConfig
	started   time.Time
}

// NewAdminServer creates the admin router.
func NewAdminServer(channel ChannelStats, forwarder ForwarderStats, cfg AdminConfig) *AdminServer {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	s := &AdminServer{
		router:    r,
		channel:   channel,
		forwarder: forwarder,
		cfg:       cfg,
		started:   time.Now(),
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Get("/health", s.healthHandler)
		r.Get("/stats", s.statsHandler)
		if cfg.MetricsHandler != nil {
			r.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Streams are long-lived and stay outside the timeout group.
	if cfg.Deliveries != nil {
		r.Mount("/deliveries", cfg.Deliveries)
	}

	return s
}

// Handler returns the HTTP handler.
func (s *AdminServer) Handler() http.Handler {
	return s.router
}

// healthHandler reports 503 until the forwarder loop is running.
func (s *AdminServer) healthHandler(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", Forwarder: "running"}
	status := http.StatusOK
	if !s.forwarder.Stats().Running {
		resp = HealthResponse{Status: "degraded", Forwarder: "stopped"}
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *AdminServer) statsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Version:       s.cfg.Version,
		Destination:   s.cfg.Destination,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Channel:       s.channel.Stats(),
		Forwarder:     s.forwarder.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		apiLog.Warn("failed to encode response", "error", err)
	}
}
