package logstream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Stats(t *testing.T) {
	hub := NewHub(10)
	handler := NewHandler(hub)

	sub := hub.Subscribe(nil)
	defer hub.Unsubscribe(sub.ID)
	hub.Publish(&Entry{})

	req := httptest.NewRequest(http.MethodGet, "/stream/stats", nil)
	w := httptest.NewRecorder()
	handler.Stats(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var stats HubStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Subscribers)
	assert.Equal(t, int64(1), stats.Published)
}

func TestHandler_Router(t *testing.T) {
	r := chi.NewRouter()
	r.Mount("/deliveries", NewHandler(NewHub(10)).Router())

	req := httptest.NewRequest(http.MethodGet, "/deliveries/stream/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParseFilterFromQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected *Filter
	}{
		{"empty query", "", &Filter{}},
		{"statuses", "status=failed,%20stopped,", &Filter{Statuses: []string{"failed", "stopped"}}},
		{"level", "level=%20WARN", &Filter{Level: "warn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/stream?"+tt.query, nil)
			assert.Equal(t, tt.expected, parseFilterFromQuery(req))
		})
	}
}

func TestHandler_Stream(t *testing.T) {
	hub := NewHub(10)
	server := httptest.NewServer(NewHandler(hub).Router())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/stream?status=failed", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	require.Eventually(t, func() bool { return hub.Stats().Subscribers == 1 }, time.Second, 5*time.Millisecond)
	hub.Publish(&Entry{Status: StatusDelivered, Message: "skipped"})
	hub.Publish(&Entry{Status: StatusFailed, Message: "kept"})

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}

	assert.Equal(t, "delivery", event)
	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(data), &entry))
	assert.Equal(t, "kept", entry.Message)
}

func TestHandler_StreamEndsWhenHubCloses(t *testing.T) {
	hub := NewHub(10)
	server := httptest.NewServer(NewHandler(hub).Router())
	defer server.Close()

	resp, err := http.Get(server.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return hub.Stats().Subscribers == 1 }, time.Second, 5*time.Millisecond)
	hub.Close()

	done := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(resp.Body).ReadString(0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after hub closed")
	}
}
