package model

import (
	"encoding/json"
	"time"
)

// MessageTypeText is the default chat message type.
const MessageTypeText = "text"

// Conversation is a direct conversation between two users.
type Conversation struct {
	ID          string    `json:"id"`
	Members     []string  `json:"members"`
	LastMessage string    `json:"lastMessage,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// MembersToJSON converts the member list to a JSON string for storage.
func (c *Conversation) MembersToJSON() (string, error) {
	data, err := json.Marshal(c.Members)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MembersFromJSON parses a stored member list.
func (c *Conversation) MembersFromJSON(data string) error {
	if data == "" {
		c.Members = nil
		return nil
	}
	return json.Unmarshal([]byte(data), &c.Members)
}

// ChatMessage is one stored chat message.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Text           string    `json:"text"`
	Type           string    `json:"type"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ConversationRequest identifies a conversation by its two members.
type ConversationRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// Validate validates the conversation request.
func (r *ConversationRequest) Validate() error {
	if r.SenderID == "" || r.ReceiverID == "" {
		return ErrMembersRequired
	}
	return nil
}

// AddMessageRequest represents a request to store a chat message.
type AddMessageRequest struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Text           string `json:"text"`
	Type           string `json:"type"`
}

// Validate validates the add message request.
func (r *AddMessageRequest) Validate() error {
	if r.ConversationID == "" || r.SenderID == "" || r.ReceiverID == "" {
		return ErrMessageFieldsRequired
	}
	return nil
}
