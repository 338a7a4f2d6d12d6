package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/collab-hub/relay/internal/model"
	"github.com/collab-hub/relay/internal/repository"
)

// ChatHandler handles HTTP requests for direct chat history.
type ChatHandler struct {
	store repository.ChatStore
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(store repository.ChatStore) *ChatHandler {
	return &ChatHandler{store: store}
}

// CreateOrGetConversation handles POST /api/chat/conversation.
func (h *ChatHandler) CreateOrGetConversation(c *gin.Context) {
	var req model.ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	conv, err := h.store.CreateOrGetConversation(c.Request.Context(), req.SenderID, req.ReceiverID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create conversation: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, conv)
}

// GetConversation handles POST /api/chat/conversation/get.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	var req model.ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	conv, err := h.store.GetConversation(c.Request.Context(), req.SenderID, req.ReceiverID)
	if err != nil {
		if errors.Is(err, model.ErrConversationNotFound) {
			sendError(c, http.StatusNotFound, "CONVERSATION_NOT_FOUND", err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get conversation: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, conv)
}

// AddMessage handles POST /api/chat/message.
func (h *ChatHandler) AddMessage(c *gin.Context) {
	var req model.AddMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	msg, err := h.store.AddMessage(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, model.ErrConversationNotFound) {
			sendError(c, http.StatusNotFound, "CONVERSATION_NOT_FOUND", err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to add message: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, msg)
}

// ListMessages handles GET /api/chat/message/:conversationId.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	conversationID := c.Param("conversationId")
	if conversationID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Conversation ID is required")
		return
	}

	messages, err := h.store.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list messages: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, messages)
}

// RegisterRoutes registers the chat routes on a Gin router group.
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	chat := rg.Group("/chat")
	{
		chat.POST("/conversation", h.CreateOrGetConversation)
		chat.POST("/conversation/get", h.GetConversation)
		chat.POST("/message", h.AddMessage)
		chat.GET("/message/:conversationId", h.ListMessages)
	}
}
