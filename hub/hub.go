// Package hub maintains the set of connected realtime clients and fans
// structured frames out to them. Delivery is best effort: a slow or dead
// connection is dropped rather than ever blocking a broadcast.
package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame is one event pushed to a client.
type Frame struct {
	Type    string `json:"type"` // "agent", "tools" or "error"
	Content string `json:"content"`
}

// sendBuffer is the per-connection queue depth before a client counts as too
// slow and is dropped.
const sendBuffer = 32

type connection struct {
	ws   *websocket.Conn
	send chan Frame
	once sync.Once
}

// Hub owns the connection set. Connections carry no identity beyond their
// transport handle; per-connection frame order is preserved, cross-client
// ordering is not guaranteed.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*connection
	log   *slog.Logger
}

func New(log *slog.Logger) *Hub {
	return &Hub{
		conns: make(map[string]*connection),
		log:   log,
	}
}

// Add registers a connection and starts its writer. The returned id is used
// for targeted sends and removal.
func (h *Hub) Add(ws *websocket.Conn) string {
	id := uuid.NewString()
	c := &connection{ws: ws, send: make(chan Frame, sendBuffer)}

	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()

	go h.writeLoop(id, c)
	h.log.Info("client connected", "conn_id", id, "clients", h.Len())
	return id
}

// Remove drops a connection and closes its socket. The send channel is
// closed under the write lock so it can never race an in-flight enqueue.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
		c.once.Do(func() { close(c.send) })
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	h.log.Info("client disconnected", "conn_id", id, "clients", h.Len())
}

// Broadcast queues a frame for every connected client. Clients whose queue is
// full are dropped; the broadcaster never blocks.
func (h *Hub) Broadcast(f Frame) {
	h.mu.RLock()
	stale := h.enqueue(f, "")
	h.mu.RUnlock()

	for _, id := range stale {
		h.log.Warn("dropping slow client", "conn_id", id)
		h.Remove(id)
	}
}

// Send queues a frame for a single client, with the same drop policy.
func (h *Hub) Send(id string, f Frame) {
	h.mu.RLock()
	stale := h.enqueue(f, id)
	h.mu.RUnlock()

	for _, id := range stale {
		h.log.Warn("dropping slow client", "conn_id", id)
		h.Remove(id)
	}
}

// enqueue delivers f to one connection (target != "") or all. Caller holds at
// least the read lock. Returns the ids whose queues were full.
func (h *Hub) enqueue(f Frame, target string) []string {
	var stale []string
	for id, c := range h.conns {
		if target != "" && id != target {
			continue
		}
		select {
		case c.send <- f:
		default:
			stale = append(stale, id)
		}
	}
	return stale
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) writeLoop(id string, c *connection) {
	defer func() { _ = c.ws.Close() }()
	for f := range c.send {
		if err := c.ws.WriteJSON(f); err != nil {
			h.log.Warn("write failed", "conn_id", id, "err", err)
			h.Remove(id)
			return
		}
	}
}
