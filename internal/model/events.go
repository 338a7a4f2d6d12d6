package model

import "encoding/json"

// Main namespace events.
const (
	EventJoin        = "join"
	EventOnlineUsers = "onlineUsers"
	EventSendMessage = "sendMessage"
	EventGetMessage  = "getMessage"

	EventCallOffer        = "call:offer"
	EventCallAnswer       = "call:answer"
	EventCallICECandidate = "call:ice-candidate"
	EventCallEnd          = "call:end"

	EventCodeJoin         = "code:join"
	EventCodeJoined       = "code:joined"
	EventCodeChange       = "code:change"
	EventCodeSync         = "code:sync"
	EventCodeTyping       = "code:typing"
	EventCodeDisconnected = "code:disconnected"

	EventAIAsk      = "ai:ask"
	EventAIResponse = "ai:response"

	EventPing = "ping"
	EventPong = "pong"
)

// Terminal namespace events.
const (
	EventTermAttach   = "term:attach"
	EventTermAttached = "term:attached"
	EventTermInput    = "term:input"
	EventTermResize   = "term:resize"
	EventTermOutput   = "term:output"
	EventTermError    = "term:error"
)

// AI response types carried in AIResponseEvent.Type.
const (
	AIResponseChunk    = "chunk"
	AIResponseComplete = "complete"
	AIResponseError    = "error"
)

// Envelope is an inbound frame. Data is decoded by the handler of Event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Frame is an outbound frame.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// PresenceEntry is one element of the onlineUsers snapshot.
type PresenceEntry struct {
	UserID   string `json:"userId"`
	SocketID string `json:"socketId"`
}

// CodeJoinRequest is the payload of code:join.
type CodeJoinRequest struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// CodeChangeRequest is the payload of code:change.
type CodeChangeRequest struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// CodeSyncRequest is the payload of code:sync.
type CodeSyncRequest struct {
	SocketID string `json:"socketId"`
	Code     string `json:"code"`
}

// CodeTypingRequest is the payload of code:typing.
type CodeTypingRequest struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// RoomClient is a room member as seen by clients.
type RoomClient struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

// CodeJoinedEvent is sent to every member when someone joins a code room.
type CodeJoinedEvent struct {
	Clients          []RoomClient `json:"clients"`
	Username         string       `json:"username"`
	SocketID         string       `json:"socketId"`
	RoomCreationTime string       `json:"roomCreationTime"`
}

// CodeChangeEvent carries editor contents.
type CodeChangeEvent struct {
	Code string `json:"code"`
}

// CodeTypingEvent carries the display name of the member who is typing.
type CodeTypingEvent struct {
	Username string `json:"username"`
}

// CodeDisconnectedEvent is sent to the remaining members when a connection leaves.
type CodeDisconnectedEvent struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

// TermAttachRequest is the payload of term:attach.
type TermAttachRequest struct {
	SessionID string `json:"sessionId"`
}

// TermAttachedEvent acknowledges a successful attach.
type TermAttachedEvent struct {
	SessionID string `json:"sessionId"`
}

// TermResizeRequest is the payload of term:resize.
type TermResizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// AIAskRequest is the payload of ai:ask.
type AIAskRequest struct {
	RoomID       string `json:"roomId"`
	Message      string `json:"message"`
	CodeSnapshot string `json:"codeSnapshot"`
	Language     string `json:"language"`
}

// AIResponseEvent is one element of a streamed AI answer.
type AIResponseEvent struct {
	RoomID  string `json:"roomId"`
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}
