package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"cala2mqtt/internal/model"
)

const writeTimeout = 5 * time.Second

// Update is one websocket frame. A snapshot is sent on connect, then one
// update per refreshed heater.
type Update struct {
	Type  string      `json:"type"` // "snapshot" or "update"
	State model.State `json:"state"`
}

// Hub pushes live heater state to every connected websocket client. Clients
// that fail a write are dropped.
type Hub struct {
	upgrader websocket.Upgrader
	snapshot func() []model.State

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func NewHub(snapshot func() []model.State) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		snapshot: snapshot,
		conns:    make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	h.mu.Lock()
	for _, state := range h.snapshot() {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(Update{Type: "snapshot", State: state}); err != nil {
			h.mu.Unlock()
			conn.Close()
			return
		}
	}
	h.conns[conn] = true
	clients := len(h.conns)
	h.mu.Unlock()

	log.Debug().Int("clients", clients).Msg("Websocket client connected")

	// Reader loop exists only to notice the peer going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// Broadcast sends one heater update to every client. Used as a coordinator
// listener.
func (h *Hub) Broadcast(state model.State) {
	msg := Update{Type: "update", State: state}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Msg("Dropping websocket client")
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[conn] {
		conn.Close()
		delete(h.conns, conn)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}
