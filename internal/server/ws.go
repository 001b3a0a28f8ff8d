package server

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const eventsInterval = time.Second

// EventsHandler pushes monitoring status snapshots via WebSocket so the
// dashboard can render the countdown and phase without polling.
type EventsHandler struct {
	monitor MonitorController
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex

	done      chan struct{}
	closeOnce sync.Once
}

// NewEventsHandler creates a new EventsHandler for the given scheduler.
func NewEventsHandler(m MonitorController) *EventsHandler {
	h := &EventsHandler{
		monitor: m,
		clients: make(map[*websocket.Conn]bool),
		done:    make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// Close stops the broadcast loop and disconnects all clients. Safe to
// call more than once.
func (h *EventsHandler) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.mu.Unlock()
	})
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcast sends the current snapshot to all connected clients until
// the handler is closed.
func (h *EventsHandler) broadcast() {
	ticker := time.NewTicker(eventsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
		}

		h.mu.RLock()
		if len(h.clients) == 0 {
			h.mu.RUnlock()
			continue
		}
		h.mu.RUnlock()

		status := h.monitor.Status()

		h.mu.RLock()
		for conn := range h.clients {
			if err := conn.WriteJSON(status); err != nil {
				log.Printf("websocket write error: %v", err)
			}
		}
		h.mu.RUnlock()
	}
}
