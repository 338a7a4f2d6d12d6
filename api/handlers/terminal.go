package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/collab-hub/relay/internal/model"
)

// TerminalService creates or returns the terminal session of a room.
// *relay.Relay implements it.
type TerminalService interface {
	EnsureTerminal(ctx context.Context, roomKey string) (string, error)
	TerminalAvailable() error
}

// TerminalHandler handles terminal session requests.
type TerminalHandler struct {
	terminals TerminalService
}

// NewTerminalHandler creates a new TerminalHandler.
func NewTerminalHandler(terminals TerminalService) *TerminalHandler {
	return &TerminalHandler{terminals: terminals}
}

// CreateSessionRequest is the body of POST /api/terminal/session.
type CreateSessionRequest struct {
	RoomID string `json:"roomId"`
}

// Create handles POST /api/terminal/session. It answers with the room's
// existing token when a terminal is already running.
//
// The browser client reads the flat {error, details} shape here, so this
// route does not use sendError.
func (h *TerminalHandler) Create(c *gin.Context) {
	if err := h.terminals.TerminalAvailable(); err != nil {
		unavailable(c, err)
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.RoomID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
		return
	}

	token, err := h.terminals.EnsureTerminal(c.Request.Context(), req.RoomID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"sessionId": token})
	case errors.Is(err, model.ErrRoomKeyRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
	case errors.Is(err, model.ErrTerminalUnavailable):
		unavailable(c, err)
	default:
		log.Error().Err(err).Str("room", req.RoomID).Msg("failed to create terminal session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create terminal session"})
	}
}

func unavailable(c *gin.Context, err error) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   "Terminal support not available",
		"details": err.Error(),
	})
}

// RegisterRoutes registers the terminal routes on a Gin router group.
func (h *TerminalHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/terminal/session", h.Create)
}
