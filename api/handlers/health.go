package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Stats reports the live state shown by the health check.
type Stats interface {
	TerminalAvailable() error
	OnlineUsers() int
}

// HealthHandler handles GET /health.
type HealthHandler struct {
	stats       Stats
	connections func() int
}

// NewHealthHandler creates a HealthHandler. connections counts open
// WebSocket connections.
func NewHealthHandler(stats Stats, connections func() int) *HealthHandler {
	return &HealthHandler{stats: stats, connections: connections}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Terminal    bool   `json:"terminal"`
	Connections int    `json:"connections"`
	OnlineUsers int    `json:"onlineUsers"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Terminal:    h.stats.TerminalAvailable() == nil,
		Connections: h.connections(),
		OnlineUsers: h.stats.OnlineUsers(),
	})
}

// RegisterRoutes registers the health route.
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
}
