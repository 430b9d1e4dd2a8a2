package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/easun/isolar-poller/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans out each newly published snapshot to every connected /ws
// client, mirroring the teacher's websocket client-set broadcast pattern.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub builds an empty fan-out hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	log.Printf("ℹ️ websocket client connected: %s", conn.RemoteAddr())
	go h.readUntilClosed(conn)
}

// readUntilClosed drains and discards client frames so we notice
// disconnects; this is a push-only feed, the client sends nothing useful.
func (h *Hub) readUntilClosed(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
	log.Printf("ℹ️ websocket client disconnected")
}

// Publish pushes snap as JSON to every connected client. Satisfies
// services.Publisher so the coordinator can drive it directly.
func (h *Hub) Publish(snap models.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			log.Printf("⚠️ websocket write failed, dropping client: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
	return nil
}
