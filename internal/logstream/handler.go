package logstream

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler serves the delivery stream over Server-Sent Events.
type Handler struct {
	hub *Hub
}

// NewHandler creates a new stream handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// Router returns a chi router with the stream routes.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/stream", h.Stream)
	r.Get("/stream/stats", h.Stats)
	return r
}

// Stream sends entries as "event: delivery" SSE messages until the client
// goes away or the hub closes.
// Query parameters:
// - status: comma-separated list of statuses (delivered, failed, stopped)
// - level: minimum level (debug, info, warn, error)
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	filter := parseFilterFromQuery(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sub := h.hub.Subscribe(filter)
	defer h.hub.Unsubscribe(sub.ID)

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	log.Debug("delivery stream started", "subscriber_id", sub.ID)

	for {
		select {
		case <-r.Context().Done():
			log.Debug("delivery stream closed", "subscriber_id", sub.ID)
			return
		case entry, ok := <-sub.Ch:
			if !ok {
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("event: delivery\ndata: "))
			_, _ = w.Write(data)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

// Stats returns hub counters.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.hub.Stats())
}

func parseFilterFromQuery(r *http.Request) *Filter {
	filter := &Filter{}

	if statuses := r.URL.Query().Get("status"); statuses != "" {
		filter.Statuses = splitAndTrim(statuses)
	}
	if level := r.URL.Query().Get("level"); level != "" {
		filter.Level = strings.ToLower(strings.TrimSpace(level))
	}

	return filter
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
