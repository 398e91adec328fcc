package realtime

import (
	"errors"
	"sort"
	"sync"

	"github.com/platinummonkey/helios/pkg/observability"
)

var (
	errClientClosed = errors.New("client closed")
	errQueueFull    = errors.New("client send queue full")
)

// Hub tracks connected clients and their room memberships. A client whose
// send queue is full is disconnected rather than blocking the sender.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewHub creates an empty hub; metrics may be nil
func NewHub(logger *observability.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

// Register adds c to the hub
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	h.logger.WithField("client_id", c.ID()).Info("client connected")
}

// Unregister removes c from the hub and every room it joined, then closes
// it. Unregistering twice is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leave(c, room)
	}
	h.mu.Unlock()

	c.close()
	h.metrics.ConnectionClosed()
	h.logger.WithField("client_id", c.ID()).Info("client disconnected")
}

// leave requires h.mu held for writing
func (h *Hub) leave(c *Client, room string) {
	delete(c.rooms, room)
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Join adds c to room. It reports false if c was already a member or is
// not registered.
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	if _, ok := c.rooms[room]; ok {
		return false
	}

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	return true
}

// Rooms returns the rooms c has joined, sorted
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// RoomSize returns the number of clients in room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Emit sends event to a single client
func (h *Hub) Emit(c *Client, event string, data any) error {
	msg, err := encode(event, data)
	if err != nil {
		return err
	}
	err = c.enqueue(msg)
	if errors.Is(err, errQueueFull) {
		h.drop(c)
	}
	return err
}

// EmitToRoom sends event to every client in room and returns how many
// clients it was queued for
func (h *Hub) EmitToRoom(room, event string, data any) (int, error) {
	return h.EmitToRooms([]string{room}, event, data)
}

// EmitToRooms sends event once to every client in any of rooms
func (h *Hub) EmitToRooms(rooms []string, event string, data any) (int, error) {
	msg, err := encode(event, data)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	targets := make(map[*Client]struct{})
	for _, room := range rooms {
		for c := range h.rooms[room] {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, event, msg), nil
}

// Broadcast sends event to every connected client
func (h *Hub) Broadcast(event string, data any) (int, error) {
	msg, err := encode(event, data)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	targets := make(map[*Client]struct{}, len(h.clients))
	for c := range h.clients {
		targets[c] = struct{}{}
	}
	h.mu.RUnlock()

	return h.deliver(targets, event, msg), nil
}

func (h *Hub) deliver(targets map[*Client]struct{}, event string, msg []byte) int {
	var sent int
	for c := range targets {
		switch err := c.enqueue(msg); {
		case err == nil:
			sent++
		case errors.Is(err, errQueueFull):
			h.drop(c)
		}
	}
	if sent > 0 {
		h.metrics.RecordBroadcast(event)
	}
	return sent
}

func (h *Hub) drop(c *Client) {
	h.logger.WithField("client_id", c.ID()).Warn("dropping slow client")
	h.Unregister(c)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}
