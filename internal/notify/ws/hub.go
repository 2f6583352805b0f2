// Package ws broadcasts notification events to dashboard clients over
// WebSocket.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/attend/internal/appointment"
)

const (
	// subscriberBuffer is the per-subscriber send queue. A subscriber
	// that falls this far behind starts losing events; delivery is
	// best-effort by contract.
	subscriberBuffer = 16

	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Hub fans events out to connected subscribers. Publish never blocks
// on subscriber delivery; subscribe and unsubscribe are safe while a
// publish is in progress.
type Hub struct {
	logger   log.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[chan appointment.Event]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger log.Logger) *Hub {
	if logger == nil {
		logger = log.Nop()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards are served from a different origin than the API.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: make(map[chan appointment.Event]struct{}),
	}
}

// Publish delivers the event to every currently-connected subscriber.
// A subscriber with a full queue misses this event rather than slowing
// the publisher.
func (h *Hub) Publish(ev appointment.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new event channel. The returned cancel func
// removes it; events published before Subscribe are never seen.
func (h *Hub) Subscribe() (<-chan appointment.Event, func()) {
	ch := make(chan appointment.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber by closing their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan appointment.Event]struct{})
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Error(r.Context(), err, "websocket upgrade failed")
		return
	}

	events, cancel := h.Subscribe()
	defer cancel()

	h.logger.Info(r.Context(), "dashboard subscribed", "remote", conn.RemoteAddr().String())

	// Reader goroutine: we never expect client messages, but reading
	// is how gorilla surfaces close frames and connection loss.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() { _ = conn.Close() }()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Warn(r.Context(), "websocket write failed, dropping subscriber", "error", err)
				return
			}
		}
	}
}
