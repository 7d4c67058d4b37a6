package audit

import (
	"sync"

	"github.com/radiowave/station-backend/internal/telemetry"
)

const defaultSubscriberBuffer = 64

// Hub fans newly stored activity records out to live-feed subscribers. Publish
// never blocks: a subscriber whose buffer is full misses the entry.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan *LogEntry]struct{}
	buffer      int
	closed      bool
}

// NewHub creates a hub whose subscriber channels hold up to buffer entries
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subscribers: make(map[chan *LogEntry]struct{}),
		buffer:      buffer,
	}
}

// Subscribe registers a new subscriber. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan *LogEntry, func()) {
	ch := make(chan *LogEntry, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	telemetry.AuditStreamSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
				telemetry.AuditStreamSubscribers.Dec()
			}
		})
	}
}

// Publish delivers entry to every subscriber with room in its buffer
func (h *Hub) Publish(entry *LogEntry) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Len returns the number of current subscribers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber; later subscriptions receive a closed channel
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
		telemetry.AuditStreamSubscribers.Dec()
	}
	h.closed = true
}
