package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/collab-hub/relay/internal/model"
	"github.com/collab-hub/relay/internal/relay"
)

// DefaultSendBuffer is the number of frames queued per client before it is
// considered too slow and dropped.
const DefaultSendBuffer = 256

// Client is one WebSocket connection.
type Client struct {
	id   string
	ns   relay.Namespace
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client with a send queue of buffer frames.
func NewClient(conn *websocket.Conn, id string, ns relay.Namespace, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		id:   id,
		ns:   ns,
		conn: conn,
		send: make(chan []byte, buffer),
	}
}

// Send queues a frame. A client whose queue is full is closed.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		log.Warn().Str("module", "ws").Str("conn", c.id).Msg("send buffer full, closing client")
		c.closeLocked()
		return false
	}
}

// Close closes the send queue; the write pump then closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Namespace returns the namespace the client connected to.
func (c *Client) Namespace() relay.Namespace {
	return c.ns
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Hub is the registry of every live connection. It implements relay.Outbox.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.id] = client
}

// Unregister removes a client from the hub and closes it.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if h.clients[client.id] == client {
		delete(h.clients, client.id)
	}
	h.mu.Unlock()

	client.Close()
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(model.Frame{Event: event, Data: payload})
}

// SendTo delivers one event to connID. It reports false when the connection
// is gone or too slow.
func (h *Hub) SendTo(connID, event string, payload any) bool {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	data, err := encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("event", event).Msg("failed to marshal frame")
		return false
	}
	return client.Send(data)
}

// Broadcast delivers one event to every main namespace connection and
// returns the number of deliveries.
func (h *Hub) Broadcast(event string, payload any) int {
	data, err := encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("event", event).Msg("failed to marshal frame")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, client := range h.clients {
		if client.ns != relay.NamespaceMain {
			continue
		}
		if client.Send(data) {
			n++
		}
	}
	return n
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
