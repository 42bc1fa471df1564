package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kwv/mrrlens/lens"
)

const (
	wsPingInterval = 30 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 8
)

// hubMessage is the envelope pushed to WebSocket clients
type hubMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// wsClient owns one connection; only its serve loop writes to conn
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans view summaries out to connected WebSocket clients
type Hub struct {
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	clients    map[*wsClient]bool
	reserved   int // slots claimed by connections still upgrading
	maxClients int
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewHub creates a hub accepting up to maxClients connections
func NewHub(maxClients int) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:    make(map[*wsClient]bool),
		maxClients: maxClients,
		stop:       make(chan struct{}),
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// reserve claims a client slot, counting connections that are still upgrading
func (h *Hub) reserve() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients)+h.reserved >= h.maxClients {
		return false
	}
	h.reserved++
	return true
}

// register turns a reserved slot into a client; a nil client just releases it
func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reserved--
	if c != nil {
		h.clients[c] = true
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// BroadcastSummary pushes a summary to every client. Slow clients whose buffer
// is full miss the message rather than blocking the caller.
func (h *Hub) BroadcastSummary(sum lens.Summary) {
	h.broadcast(hubMessage{Type: "summary", Data: sum})
}

func (h *Hub) broadcast(msg hubMessage) {
	h.mu.RLock()
	if len(h.clients) == 0 {
		h.mu.RUnlock()
		return
	}
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Error marshaling %s message: %v", msg.Type, err)
		return
	}
	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			log.Printf("[WS] Dropping %s message for slow client %s", msg.Type, c.conn.RemoteAddr())
		}
	}
}

// ServeWS upgrades the request and serves the client until it disconnects. The
// current summary, if any, is sent first.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, initial *lens.Summary) {
	if !h.reserve() {
		http.Error(w, "Maximum clients reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.register(nil)
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.register(c)
	log.Printf("[WS] Client connected from %s", conn.RemoteAddr())

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		log.Printf("[WS] Client %s disconnected", conn.RemoteAddr())
	}()

	if initial != nil {
		if data, err := json.Marshal(hubMessage{Type: "summary", Data: initial}); err == nil {
			c.send <- data
		}
	}

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	// Reads only detect disconnects; clients talk to the REST endpoints
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[WS] Read error: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-h.stop:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
