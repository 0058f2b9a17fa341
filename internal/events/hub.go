package events

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/uuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Only local foreground contexts may attach.
		host := r.Host
		return host == "localhost" || host == "127.0.0.1" ||
			strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:")
	},
}

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 256
)

// wsClient represents one attached foreground context.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans bus events out to attached websocket observers so every
// foreground context sees conflict and connection notifications.
type Hub struct {
	bus        *Bus
	clients    map[string]*wsClient
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
}

// NewHub creates a hub bound to the given bus.
func NewHub(bus *Bus) *Hub {
	return &Hub{
		bus:        bus,
		clients:    make(map[string]*wsClient),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run consumes bus events and manages client registration until the context
// is cancelled.
func (h *Hub) Run(ctx context.Context) {
	events, cancel := h.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			log.Printf("[EventHub] Client attached: %s (total: %d)", client.id, h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("[EventHub] Client detached: %s (total: %d)", client.id, h.ClientCount())

		case event, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(event)
		}
	}
}

// broadcast encodes the event once and queues it for every client.
func (h *Hub) broadcast(event Event) {
	data, err := json.Marshal(NewEnvelope(event))
	if err != nil {
		log.Printf("[EventHub] Failed to encode event %s: %v", event.EventType(), err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer; drop rather than stall the hub.
			log.Printf("[EventHub] Dropping event for slow client %s", client.id)
		}
	}
}

// shutdown closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.conn.Close()
		close(client.send)
	}
	h.clients = make(map[string]*wsClient)
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a websocket observer connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[EventHub] Upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.register <- client

	go h.writePump(client)
	go h.readPump(client)
}

// writePump forwards queued envelopes to the client connection.
func (h *Hub) writePump(client *wsClient) {
	for data := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.unregister <- client
			client.conn.Close()
			return
		}
	}
}

// readPump discards inbound frames and detects disconnects.
func (h *Hub) readPump(client *wsClient) {
	defer func() {
		h.unregister <- client
		client.conn.Close()
	}()
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
