// Package ws provides the server's dashboard event feed: a broadcast
// hub plus a thin wrapper over gorilla/websocket connections.
package ws

import "sync"

// Hub fans out device events to subscribed dashboard clients. It is
// independent of net/http so handler code and tests can drive it with
// plain channels. Slow clients are skipped rather than blocking the
// hub.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]chan Event
	register   chan registration
	unregister chan string
	broadcast  chan Event
	shutdown   chan struct{}
}

type registration struct {
	id string
	ch chan Event
}

// NewHub creates and starts a new Hub
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[string]chan Event),
		register:   make(chan registration),
		unregister: make(chan string),
		broadcast:  make(chan Event, 100),
		shutdown:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.id] = reg.ch
			h.mu.Unlock()
		case id := <-h.unregister:
			h.mu.Lock()
			if ch, ok := h.clients[id]; ok {
				close(ch)
				delete(h.clients, id)
			}
			h.mu.Unlock()
		case ev := <-h.broadcast:
			h.mu.RLock()
			for _, ch := range h.clients {
				select {
				case ch <- ev:
				default:
					// client buffer full, drop rather than block the hub
				}
			}
			h.mu.RUnlock()
		case <-h.shutdown:
			h.mu.Lock()
			for id, ch := range h.clients {
				close(ch)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Register registers a client channel under id. The channel should be
// buffered; events are dropped for clients that fall behind.
func (h *Hub) Register(id string, ch chan Event) {
	h.register <- registration{id: id, ch: ch}
}

// Unregister removes the client with the given id and closes its channel
func (h *Hub) Unregister(id string) {
	h.unregister <- id
}

// Broadcast sends an event to all registered clients
func (h *Hub) Broadcast(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		// broadcast queue full, drop
	}
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop shuts down the hub and closes all client channels
func (h *Hub) Stop() {
	close(h.shutdown)
}
