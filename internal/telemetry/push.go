package telemetry

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/gorilla/websocket"
)

// pushEvent is the shape streamed to subscribers over both transports,
// matching §6.4's push-channel event payload.
type pushEvent struct {
	EventType string            `json:"type"`
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// pushHub fans metric samples out to WebSocket clients and a Socket.IO
// namespace, the same register/unregister/broadcast hub shape as the
// teacher's DAG streamer, generalized to carry metric samples instead of
// DAG visualization events.
type pushHub struct {
	log *slog.Logger

	clients    map[*websocket.Conn]bool
	broadcast  chan pushEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader

	sio     *socketio.Server
	closing chan struct{}
}

func newPushHub(log *slog.Logger) *pushHub {
	sio := socketio.NewServer(nil)
	sio.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext("")
		return nil
	})
	sio.OnDisconnect("/", func(s socketio.Conn, reason string) {})
	sio.OnError("/", func(s socketio.Conn, err error) {
		log.Warn("telemetry push socket.io error", "error", err)
	})

	return &pushHub{
		log:        log,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan pushEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sio:     sio,
		closing: make(chan struct{}),
	}
}

func (h *pushHub) run() {
	go func() {
		if err := h.sio.Serve(); err != nil {
			h.log.Error("socket.io server exited", "error", err)
		}
	}()
	defer h.sio.Close()

	for {
		select {
		case <-h.closing:
			h.mu.Lock()
			for c := range h.clients {
				c.Close()
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if err := c.WriteJSON(ev); err != nil {
					c.Close()
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
			h.sio.BroadcastToNamespace("/", socketEventName(ev.EventType), ev)
		}
	}
}

func socketEventName(eventType string) string {
	switch eventType {
	case "system_metrics", "component_metrics":
		return eventType
	default:
		return "metric"
	}
}

// publish enqueues a sample for delivery to every connected subscriber.
func (h *pushHub) publish(ev pushEvent) {
	select {
	case h.broadcast <- ev:
	default:
		// Slow/absent subscribers never block metric recording.
	}
}

// HandleWebSocket upgrades an HTTP request to a push-channel WebSocket
// connection.
func (h *pushHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("telemetry push upgrade failed", "error", err)
		return
	}
	h.register <- conn

	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ServeSocketIO exposes the Socket.IO transport for mounting under
// /socket.io/.
func (h *pushHub) ServeSocketIO() http.Handler { return h.sio }

func (h *pushHub) close() { close(h.closing) }
