package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/collab-hub/relay/internal/metrics"
	"github.com/collab-hub/relay/internal/model"
	"github.com/collab-hub/relay/internal/relay"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize bounds inbound frames. Editor snapshots travel in
	// code:change and ai:ask, so this is well above a keystroke.
	DefaultMaxMessageSize = 1 << 20
)

// Dispatcher receives connection lifecycle and inbound events.
// *relay.Relay is the production implementation.
type Dispatcher interface {
	Connect(connID string, ns relay.Namespace)
	Handle(connID string, ns relay.Namespace, env model.Envelope)
	Disconnect(connID string)
}

// Config configures a Handler.
type Config struct {
	MaxMessageSize int64
	SendBuffer     int
}

// Handler upgrades HTTP requests to relay connections.
type Handler struct {
	hub        *Hub
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	cfg        Config
	log        zerolog.Logger
}

// NewHandler creates a handler that registers connections with hub and
// dispatches their events to d.
func NewHandler(hub *Hub, d Dispatcher, origins *OriginPolicy, cfg Config) *Handler {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	return &Handler{
		hub:        hub,
		dispatcher: d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.CheckOrigin,
		},
		cfg: cfg,
		log: log.With().Str("module", "ws").Logger(),
	}
}

// HandleConnection upgrades the request and serves the connection in ns
// until it closes. The upgrader has already replied when an error is
// returned.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, ns relay.Namespace) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, uuid.NewString(), ns, h.cfg.SendBuffer)
	h.hub.Register(client)
	metrics.ConnectionOpened(string(ns))
	h.log.Debug().Str("conn", client.ID()).Str("ns", string(ns)).Str("remote", r.RemoteAddr).Msg("connection opened")

	h.dispatcher.Connect(client.ID(), ns)

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// readPump dispatches inbound frames in arrival order, then runs the
// disconnect cleanup.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		h.dispatcher.Disconnect(client.ID())
		client.conn.Close()
		metrics.ConnectionClosed(string(client.ns))
		h.log.Debug().Str("conn", client.ID()).Msg("connection closed")
	}()

	client.conn.SetReadLimit(h.cfg.MaxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Str("conn", client.ID()).Msg("websocket error")
			}
			return
		}

		var env model.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			h.log.Debug().Err(err).Str("conn", client.ID()).Msg("ignoring malformed frame")
			continue
		}

		h.dispatcher.Handle(client.ID(), client.ns, env)
	}
}

// writePump writes queued frames, one per WebSocket message, and keeps the
// connection alive with pings.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
