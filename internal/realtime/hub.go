// Package realtime pushes notification events to websocket clients grouped
// into rooms.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/tintworks/dyeops/internal/notifications"
)

const clientBuffer = 32

type client struct {
	send  chan []byte
	rooms []string
}

// Hub tracks connected clients by room.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*client]struct{}
	logger *slog.Logger
}

// NewHub constructs an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{rooms: make(map[string]map[*client]struct{}), logger: logger}
}

func (h *Hub) join(rooms ...string) *client {
	c := &client{send: make(chan []byte, clientBuffer), rooms: rooms}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	}
	return c
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.send)
}

// Members reports how many clients are in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Publish delivers evt to every client in its room. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, evt notifications.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	h.deliver(evt.Room, payload)
	return nil
}

func (h *Hub) deliver(room string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("realtime client buffer full", slog.String("room", room))
		}
	}
}

var _ notifications.Publisher = (*Hub)(nil)
