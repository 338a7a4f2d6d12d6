package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/collab-hub/relay/internal/relay"
	"github.com/collab-hub/relay/internal/ws"
)

// WebSocketHandler serves the main and terminal event channels.
type WebSocketHandler struct {
	wsHandler *ws.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{wsHandler: wsHandler}
}

// Main handles GET /ws.
func (h *WebSocketHandler) Main(c *gin.Context) {
	h.serve(c, relay.NamespaceMain)
}

// Terminal handles GET /ws/terminal.
func (h *WebSocketHandler) Terminal(c *gin.Context) {
	h.serve(c, relay.NamespaceTerminal)
}

func (h *WebSocketHandler) serve(c *gin.Context, ns relay.Namespace) {
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, ns); err != nil {
		// The upgrader has already written the response.
		c.Abort()
	}
}

// RegisterRoutes registers the WebSocket routes.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.Main)
	r.GET("/ws/terminal", h.Terminal)
}
