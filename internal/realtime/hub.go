package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub tracks local clients and their rooms. Room traffic always goes through the
// broker so that other instances see it too.
type Hub struct {
	broker Broker

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub creates a hub and starts the broker's delivery into it.
func NewHub(broker Broker) (*Hub, error) {
	h := &Hub{
		broker:  broker,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
	if err := broker.Start(h.deliver); err != nil {
		return nil, err
	}
	return h, nil
}

// Register adds c and joins it to its user's private room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.joinLocked(c, UserRoom(c.UserID))
	count := len(h.clients)
	h.mu.Unlock()

	log.Debug().Str("client_id", c.ID).Str("user_id", c.UserID).Int("clients", count).Msg("websocket client registered")
}

// Unregister removes c from every room and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.send)
	h.mu.Unlock()

	log.Debug().Str("client_id", c.ID).Str("user_id", c.UserID).Msg("websocket client unregistered")
}

// Join adds c to room.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.joinLocked(c, room)
	}
}

// Leave removes c from room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

// InRoom reports whether c is subscribed to room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Emit sends event to every client in room except the client whose id is exclude.
func (h *Hub) Emit(ctx context.Context, room, event string, data interface{}, exclude string) error {
	payload, err := encode(event, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}
	return h.broker.Publish(ctx, Delivery{Room: room, Payload: payload, Exclude: exclude})
}

// EmitToConversation sends event to every subscriber of a conversation.
func (h *Hub) EmitToConversation(ctx context.Context, conversationID, event string, data interface{}) error {
	return h.Emit(ctx, ConversationRoom(conversationID), event, data, "")
}

// Notify sends a receiveNotification event to every connection of userID.
func (h *Hub) Notify(ctx context.Context, userID string, n Notification) error {
	return h.Emit(ctx, UserRoom(userID), EventReceiveNotification, n, "")
}

// SendTo queues event for c only.
func (h *Hub) SendTo(c *Client, event string, data interface{}) {
	payload, err := encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode websocket event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		h.enqueueLocked(c, payload)
	}
}

func (h *Hub) deliver(d Delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[d.Room] {
		if c.ID == d.Exclude {
			continue
		}
		h.enqueueLocked(c, d.Payload)
	}
}

// enqueueLocked never blocks. A client whose queue is full is disconnected.
func (h *Hub) enqueueLocked(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		log.Warn().Str("client_id", c.ID).Str("user_id", c.UserID).Msg("websocket send queue full, dropping client")
		c.closeConn()
	}
}

// ClientCount is the number of locally connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every local client and stops the broker.
func (h *Hub) Close() error {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.closeConn()
	}
	return h.broker.Close()
}
