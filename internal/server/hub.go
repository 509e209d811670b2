package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orbitalfoundry/debris-simulator/internal/logging"
)

const writeWait = 5 * time.Second

// Hub fans per-tick frames out to websocket subscribers (the browser
// renderer). Subscribers are strictly consumers: inbound messages are
// read only to detect the close handshake.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	upgrader    websocket.Upgrader
	log         logging.Logger
}

// NewHub constructs an empty hub.
func NewHub(log logging.Logger) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 32 * 1024,
			// The control API and renderer are served from one origin
			// in deployment; cross-origin subscribers are read-only
			// consumers of public state.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// writePrepared sends a preprepared message guarded by the
// subscriber's mutex and a write deadline.
func (s *subscriber) writePrepared(msg *websocket.PreparedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WritePreparedMessage(msg)
}

// ServeWS upgrades the request and registers the connection for
// per-tick broadcasts until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logging.String("error", err.Error()))
		return
	}
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()
	h.log.Info(r.Context(), "renderer subscribed", logging.Int("subscribers", count))

	// Read loop: frames from the renderer are ignored, but reading is
	// required to process control messages and notice disconnects.
	go func() {
		defer h.drop(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// SubscriberCount returns the number of connected renderers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Broadcast marshals v once and sends it to every subscriber,
// dropping connections whose writes fail.
func (h *Hub) Broadcast(v any) {
	h.mu.Lock()
	if len(h.subscribers) == 0 {
		h.mu.Unlock()
		return
	}
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error(context.Background(), "broadcast marshal failed", logging.String("error", err.Error()))
		return
	}
	msg, err := websocket.NewPreparedMessage(websocket.TextMessage, payload)
	if err != nil {
		return
	}

	for _, sub := range subs {
		if err := sub.writePrepared(msg); err != nil {
			h.drop(sub)
		}
	}
}

// Close disconnects every subscriber, e.g. at shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		_ = sub.conn.Close()
	}
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	_, present := h.subscribers[sub]
	delete(h.subscribers, sub)
	h.mu.Unlock()
	if present {
		_ = sub.conn.Close()
	}
}
