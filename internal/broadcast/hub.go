// Package broadcast fans out event mutations to connected viewers over
// server-sent events. Delivery is best-effort and at-most-once per
// connected subscriber: there is no replay for viewers that connect later
// and slow subscribers are dropped rather than waited on, so a publish
// never blocks the enrollment path.
package broadcast

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eventhub-app/eventhub/internal/model"
)

// keepaliveInterval is how often comment lines are sent to prevent
// intermediaries from timing out idle connections.
const keepaliveInterval = 15 * time.Second

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind loses messages instead of stalling the publisher.
const subscriberBuffer = 16

// Subscriber is a handle for one connected viewer.
type Subscriber struct {
	ch chan []byte
}

// Hub is the in-process pub/sub registry. One producer path (successful
// enrollments), many consumers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	logger      *zap.Logger
}

// NewHub constructs an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a new viewer connection. Call Unsubscribe when done.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a viewer from the registry immediately.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
}

// Publish sends the full updated event snapshot to every live subscriber.
// Sends are non-blocking; a subscriber with a full buffer misses this
// message and is expected to reconcile by refetching.
func (h *Hub) Publish(event *model.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to marshal event for broadcast",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		select {
		case sub.ch <- payload:
		default:
			// Drop if the subscriber is slow.
		}
	}
}

// SubscriberCount reports how many viewers are currently registered.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// ServeHTTP streams event updates to one viewer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-sub.ch:
			fmt.Fprintf(w, "event:eventUpdated\n")
			fmt.Fprintf(w, "data:%s\n\n", payload)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}
