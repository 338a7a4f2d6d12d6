package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/collab-hub/relay/internal/model"
)

// ChatStore is the persistence surface of direct chat.
type ChatStore interface {
	CreateOrGetConversation(ctx context.Context, a, b string) (*model.Conversation, error)
	GetConversation(ctx context.Context, a, b string) (*model.Conversation, error)
	AddMessage(ctx context.Context, req *model.AddMessageRequest) (*model.ChatMessage, error)
	ListMessages(ctx context.Context, conversationID string) ([]*model.ChatMessage, error)
}

// ChatRepository provides data access for conversations and messages.
type ChatRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// pair orders two members so a conversation is found whichever side asks.
func pair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// CreateOrGetConversation returns the conversation between a and b,
// creating it on first use.
func (r *ChatRepository) CreateOrGetConversation(ctx context.Context, a, b string) (*model.Conversation, error) {
	if a == "" || b == "" {
		return nil, model.ErrMembersRequired
	}

	conv, err := r.GetConversation(ctx, a, b)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, model.ErrConversationNotFound) {
		return nil, err
	}

	now := r.now()
	conv = &model.Conversation{
		ID:        uuid.NewString(),
		Members:   []string{a, b},
		CreatedAt: now,
		UpdatedAt: now,
	}
	membersJSON, err := conv.MembersToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize members: %w", err)
	}

	first, second := pair(a, b)
	query := `
		INSERT INTO conversations (id, member_a, member_b, members, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (member_a, member_b) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, conv.ID, first, second, membersJSON, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	// Lost a race with a concurrent create; return the winner.
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return r.GetConversation(ctx, a, b)
	}
	return conv, nil
}

// GetConversation returns the conversation between a and b.
func (r *ChatRepository) GetConversation(ctx context.Context, a, b string) (*model.Conversation, error) {
	if a == "" || b == "" {
		return nil, model.ErrMembersRequired
	}

	first, second := pair(a, b)
	query := `
		SELECT id, members, last_message, created_at, updated_at
		FROM conversations
		WHERE member_a = ? AND member_b = ?
	`

	conv := &model.Conversation{}
	var membersJSON string
	var lastMessage sql.NullString
	err := r.db.QueryRowContext(ctx, query, first, second).Scan(
		&conv.ID,
		&membersJSON,
		&lastMessage,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if err := conv.MembersFromJSON(membersJSON); err != nil {
		return nil, fmt.Errorf("failed to parse members: %w", err)
	}
	if lastMessage.Valid {
		conv.LastMessage = lastMessage.String
	}
	return conv, nil
}

// AddMessage stores a message and makes it the conversation's last message.
func (r *ChatRepository) AddMessage(ctx context.Context, req *model.AddMessageRequest) (*model.ChatMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.now()
	msg := &model.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		ReceiverID:     req.ReceiverID,
		Text:           req.Text,
		Type:           req.Type,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if msg.Type == "" {
		msg.Type = model.MessageTypeText
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message = ?, updated_at = ?
		WHERE id = ?
	`, msg.Text, now, msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, model.ErrConversationNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, text, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Text, msg.Type, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return msg, nil
}

// ListMessages returns the messages of a conversation, oldest first.
func (r *ChatRepository) ListMessages(ctx context.Context, conversationID string) ([]*model.ChatMessage, error) {
	query := `
		SELECT id, conversation_id, sender_id, receiver_id, text, type, created_at, updated_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*model.ChatMessage{}
	for rows.Next() {
		msg := &model.ChatMessage{}
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.Text,
			&msg.Type,
			&msg.CreatedAt,
			&msg.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}
