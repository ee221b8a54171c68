package utils

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientWriteDeadline bounds every per-client write so one stalled status
// page cannot hold up the broadcaster or the replay on connect.
const clientWriteDeadline = 100 * time.Millisecond

// WebSocketHub fans events out to every connected status client and retains
// the latest state-bearing event of each type. A client connecting mid-run
// gets the retained adapter/registration/peer state replayed immediately
// instead of waiting for the next transition. Slow or dead clients are
// dropped instead of blocking the broadcaster.
type WebSocketHub struct {
	clients   map[*websocket.Conn]bool
	lastState map[string]WebSocketEvent
	mu        sync.Mutex
}

func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:   make(map[*websocket.Conn]bool),
		lastState: make(map[string]WebSocketEvent),
	}
}

// AddClient registers a client and replays the retained state events to it.
func (h *WebSocketHub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	replay := make([]WebSocketEvent, 0, len(h.lastState))
	for _, event := range h.lastState {
		replay = append(replay, event)
	}
	h.mu.Unlock()

	for _, event := range replay {
		conn.SetWriteDeadline(time.Now().Add(clientWriteDeadline))
		if err := conn.WriteJSON(event); err != nil {
			h.RemoveClient(conn)
			return
		}
	}
}

func (h *WebSocketHub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

// ClientCount reports how many status clients are attached.
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *WebSocketHub) Broadcast(event WebSocketEvent) {
	h.mu.Lock()
	if event.Type != EventHidReport {
		// Reports stream at the sampling rate; retaining one is stale the
		// next tick. Everything else is state worth replaying.
		h.lastState[event.Type] = event
	}
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	var failedClients []*websocket.Conn
	var failedMu sync.Mutex

	for _, conn := range clients {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()

			c.SetWriteDeadline(time.Now().Add(clientWriteDeadline))
			if err := c.WriteJSON(event); err != nil {
				failedMu.Lock()
				failedClients = append(failedClients, c)
				failedMu.Unlock()
			}
		}(conn)
	}
	wg.Wait()

	if len(failedClients) > 0 {
		h.mu.Lock()
		for _, conn := range failedClients {
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		}
		h.mu.Unlock()
	}
}
