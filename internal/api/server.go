// Package api exposes the ingest endpoint and the admin endpoints over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stiffinWanjohi/relayproxy/internal/logging"
	"github.com/stiffinWanjohi/relayproxy/internal/observability"
)

var apiLog = logging.Component("api")

// DefaultEndpointPath is the ingest route when none is configured.
const DefaultEndpointPath = "/"

// ServerConfig holds ingest server configuration.
type ServerConfig struct {
	EndpointPath string                 // the only recognized route; others answer 404
	Metrics      *observability.Metrics // optional
	Tracer       *observability.Tracer  // optional
}

// Server routes submissions to the ingestion handler.
type Server struct {
	router *chi.Mux
}

// NewServer creates the ingest router. submit receives requests on any method
// at exactly cfg.EndpointPath.
func NewServer(submit http.Handler, cfg ServerConfig) *Server {
	path := cfg.EndpointPath
	if path == "" {
		path = DefaultEndpointPath
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(slog.LevelDebug))
	r.Use(observability.HTTPMiddleware(cfg.Metrics, cfg.Tracer))

	r.Handle(path, submit)

	return &Server{router: r}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func loggingMiddleware(level slog.Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			apiLog.Log(r.Context(), level, "request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes_in", r.ContentLength,
				"duration", time.Since(start),
			)
		})
	}
}
