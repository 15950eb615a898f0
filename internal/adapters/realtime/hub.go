// Package realtime pushes document changes to connected map clients over
// websockets.
package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"rutas_admin/internal/adapters/observability"
	"rutas_admin/internal/domain"
)

const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeChange   = "change"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
)

type Message struct {
	Type       string `json:"type"`
	Collection string `json:"collection,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// Hub fans change events out to the clients subscribed to their collection.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan domain.ChangeEvent
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan domain.ChangeEvent, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Broadcast queues ev without blocking; a full queue drops it.
func (h *Hub) Broadcast(ev domain.ChangeEvent) {
	select {
	case h.broadcast <- ev:
	default:
		log.Warn().Str("collection", ev.Collection).Msg("feed queue full, event dropped")
	}
}

// Serve runs the hub until ctx is done. It implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// lifecycle events go first so a fresh client sees the next broadcast
		select {
		case c := <-h.Register:
			h.add(c)
			continue
		case c := <-h.Unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			n := h.ClientCount()
			h.closeAll()
			log.Info().Str("component", "feed-hub").Int("clients_closed", n).Msg("feed hub stopped")
			return ctx.Err()
		case c := <-h.Register:
			h.add(c)
		case c := <-h.Unregister:
			h.remove(c)
		case ev := <-h.broadcast:
			h.fanOut(ev)
		}
	}
}

func (h *Hub) String() string { return "feed-hub" }

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	observability.FeedClients.Set(float64(n))
	log.Info().Int("total_clients", n).Msg("feed client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	observability.FeedClients.Set(float64(n))
	log.Info().Int("total_clients", n).Msg("feed client disconnected")
}

func (h *Hub) fanOut(ev domain.ChangeEvent) {
	msg := Message{Type: MessageTypeChange, Collection: ev.Collection, Data: ev}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(ev.Collection) {
			continue
		}
		if !c.trySend(msg) {
			// slow consumer
			delete(h.clients, c)
			c.close()
		}
	}
	observability.FeedClients.Set(float64(len(h.clients)))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
	observability.FeedClients.Set(0)
}
