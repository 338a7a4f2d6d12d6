package model

import "errors"

var (
	// ErrTerminalUnavailable is returned when the host cannot provide an interactive process.
	ErrTerminalUnavailable = errors.New("terminal support not available")

	// ErrInvalidSession is returned when a terminal session token does not resolve to a live session.
	ErrInvalidSession = errors.New("invalid terminal session")

	// ErrSessionExpired is returned when the token resolves but the process is already gone.
	ErrSessionExpired = errors.New("terminal session expired")

	// ErrNotAttached is returned when a connection sends terminal input without being attached.
	ErrNotAttached = errors.New("connection is not attached to a terminal")

	// ErrRoomKeyRequired is returned when a request is missing the room key.
	ErrRoomKeyRequired = errors.New("roomId is required")

	// ErrDisplayNameRequired is returned when a room join is missing the display name.
	ErrDisplayNameRequired = errors.New("username is required")

	// ErrMembersRequired is returned when a conversation request is missing a member.
	ErrMembersRequired = errors.New("senderId and receiverId are required")

	// ErrMessageFieldsRequired is returned when a chat message is missing its routing fields.
	ErrMessageFieldsRequired = errors.New("conversationId, senderId and receiverId are required")

	// ErrConversationNotFound is returned when a conversation is not found.
	ErrConversationNotFound = errors.New("conversation not found")
)
