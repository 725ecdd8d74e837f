// Package logstream fans delivery attempt records out to live subscribers.
package logstream

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stiffinWanjohi/relayproxy/internal/delivery"
	"github.com/stiffinWanjohi/relayproxy/internal/domain"
	"github.com/stiffinWanjohi/relayproxy/internal/logging"
)

var log = logging.Component("logstream")

// DefaultBufferSize is the per-subscriber backlog before entries are dropped.
const DefaultBufferSize = 256

// Entry statuses.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
)

// Entry is one delivery record.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Level      string    `json:"level"`
	Status     string    `json:"status"`
	PayloadID  string    `json:"payload_id,omitempty"`
	Size       int       `json:"size,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	RetryInMs  int64     `json:"retry_in_ms,omitempty"`
	Lost       int       `json:"lost,omitempty"`
	Message    string    `json:"message"`
}

// Filter selects entries for a subscriber. The zero value matches everything.
type Filter struct {
	Statuses []string `json:"statuses,omitempty"`
	Level    string   `json:"level,omitempty"` // minimum: debug, info, warn, error
}

// Matches returns true if the entry matches the filter.
func (f *Filter) Matches(entry *Entry) bool {
	if f == nil {
		return true
	}
	if f.Level != "" && !matchesLevel(entry.Level, f.Level) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, entry.Status) {
		return false
	}
	return true
}

// matchesLevel returns true if entry level >= filter level.
func matchesLevel(entryLevel, filterLevel string) bool {
	levels := map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}
	entryLvl, ok1 := levels[entryLevel]
	filterLvl, ok2 := levels[filterLevel]
	if !ok1 || !ok2 {
		return true
	}
	return entryLvl >= filterLvl
}

// Subscriber receives matching entries on Ch until unsubscribed or the hub closes.
type Subscriber struct {
	ID     string
	Filter *Filter
	Ch     chan *Entry
}

// HubStats is a point-in-time view of the hub.
type HubStats struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
}

// Hub manages subscriptions. Publish never blocks: a subscriber that falls
// behind loses entries.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
	closed      bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a hub; bufferSize <= 0 uses DefaultBufferSize.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber. On a closed hub the returned channel is
// already closed.
func (h *Hub) Subscribe(filter *Filter) *Subscriber {
	sub := &Subscriber{
		ID:     uuid.New().String(),
		Filter: filter,
		Ch:     make(chan *Entry, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.Ch)
		return sub
	}
	h.subscribers[sub.ID] = sub

	log.Debug("subscriber added", "subscriber_id", sub.ID, "total", len(h.subscribers))
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		close(sub.Ch)
		delete(h.subscribers, id)
		log.Debug("subscriber removed", "subscriber_id", id, "total", len(h.subscribers))
	}
}

// Publish sends entry to every matching subscriber.
func (h *Hub) Publish(entry *Entry) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.published.Add(1)
	for _, sub := range h.subscribers {
		if !sub.Filter.Matches(entry) {
			continue
		}
		select {
		case sub.Ch <- entry:
		default:
			h.dropped.Add(1)
		}
	}
}

// Close ends every subscription. Later subscribers are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub.Ch)
		delete(h.subscribers, id)
	}
}

// Stats returns subscriber and entry counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{
		Subscribers: len(h.subscribers),
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// DeliveryLogger turns forwarder notifications into entries.
type DeliveryLogger struct {
	hub *Hub
	now func() time.Time
}

var _ delivery.Observer = (*DeliveryLogger)(nil)

// NewDeliveryLogger creates a delivery logger publishing to hub.
func NewDeliveryLogger(hub *Hub) *DeliveryLogger {
	return &DeliveryLogger{hub: hub, now: time.Now}
}

func (l *DeliveryLogger) Delivered(p domain.Payload, attempt int, result domain.DeliveryResult) {
	l.hub.Publish(&Entry{
		Timestamp:  l.now(),
		Level:      "info",
		Status:     StatusDelivered,
		PayloadID:  p.ID().String(),
		Size:       p.Size(),
		Attempt:    attempt,
		StatusCode: result.StatusCode,
		DurationMs: result.Duration.Milliseconds(),
		Message:    "payload delivered",
	})
}

func (l *DeliveryLogger) Failed(p domain.Payload, attempt int, result domain.DeliveryResult, retryIn time.Duration) {
	entry := &Entry{
		Timestamp:  l.now(),
		Level:      "warn",
		Status:     StatusFailed,
		PayloadID:  p.ID().String(),
		Size:       p.Size(),
		Attempt:    attempt,
		StatusCode: result.StatusCode,
		Reason:     result.FailureReason(),
		DurationMs: result.Duration.Milliseconds(),
		RetryInMs:  retryIn.Milliseconds(),
		Message:    "delivery failed, will retry",
	}
	if result.Error != nil {
		entry.Error = result.Error.Error()
	}
	l.hub.Publish(entry)
}

func (l *DeliveryLogger) Stopped(lost int) {
	level, message := "info", "forwarder stopped"
	if lost > 0 {
		level, message = "warn", "forwarder stopped with undelivered payloads"
	}
	l.hub.Publish(&Entry{
		Timestamp: l.now(),
		Level:     level,
		Status:    StatusStopped,
		Lost:      lost,
		Message:   message,
	})
}
