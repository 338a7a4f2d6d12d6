// Package relay owns the real-time state of the process and dispatches
// inbound events to the component that handles them.
package relay

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/collab-hub/relay/internal/assistant"
	"github.com/collab-hub/relay/internal/metrics"
	"github.com/collab-hub/relay/internal/model"
	"github.com/collab-hub/relay/internal/presence"
	"github.com/collab-hub/relay/internal/room"
	"github.com/collab-hub/relay/internal/signaling"
	"github.com/collab-hub/relay/internal/terminal"
)

// Namespace separates the main event channel from the terminal channel.
type Namespace string

const (
	NamespaceMain     Namespace = "main"
	NamespaceTerminal Namespace = "terminal"
)

// Messages sent with term:error.
const (
	MessageTerminalUnavailable = "Terminal support not available"
	MessageInvalidSession      = "Invalid terminal session"
	MessageSessionExpired      = "Terminal session expired"
)

// Outbox delivers events to connections. Implementations must not block.
type Outbox interface {
	SendTo(connID, event string, payload any) bool

	// Broadcast sends to every connection of the main namespace.
	Broadcast(event string, payload any) int
}

// Options configures a Relay.
type Options struct {
	Spawner  terminal.Spawner
	Provider assistant.Provider
	Terminal terminal.Config
}

// Relay is the single owner of presence, rooms, terminals and AI requests.
type Relay struct {
	out Outbox
	log zerolog.Logger

	presence  *presence.Registry
	rooms     *room.Directory
	signaling *signaling.Relay
	terminals *terminal.Multiplexer
	bridge    *assistant.Bridge

	// ctx bounds AI requests; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a relay delivering through out.
func New(out Outbox, opts Options) *Relay {
	ctx, cancel := context.WithCancel(context.Background())

	reg := presence.NewRegistry()
	rooms := room.NewDirectory(out)

	return &Relay{
		out:       out,
		log:       log.With().Str("module", "relay").Logger(),
		presence:  reg,
		rooms:     rooms,
		signaling: signaling.NewRelay(reg, out),
		terminals: terminal.NewMultiplexer(opts.Spawner, out, opts.Terminal),
		bridge:    assistant.NewBridge(opts.Provider, rooms),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect is called once a connection is registered with the outbox.
func (r *Relay) Connect(connID string, ns Namespace) {
	r.log.Debug().Str("conn", connID).Str("ns", string(ns)).Msg("connected")
	if ns == NamespaceTerminal {
		if err := r.terminals.Available(); err != nil {
			r.out.SendTo(connID, model.EventTermError, MessageTerminalUnavailable)
		}
	}
}

// Handle dispatches one inbound event. Failures are logged and, where the
// client needs to know, reported to the sender only.
func (r *Relay) Handle(connID string, ns Namespace, env model.Envelope) {
	logger := r.log.With().Str("conn", connID).Str("event", env.Event).Logger()

	var err error
	switch ns {
	case NamespaceTerminal:
		err = r.handleTerminal(connID, env)
	default:
		err = r.handleMain(connID, env)
	}
	if errors.Is(err, errUnknownEvent) {
		metrics.Event("unknown")
	} else {
		metrics.Event(env.Event)
	}
	if err != nil {
		logger.Debug().Err(err).Msg("event rejected")
	}
}

var errUnknownEvent = errors.New("unknown event")

func (r *Relay) handleMain(connID string, env model.Envelope) error {
	switch env.Event {
	case model.EventJoin:
		identity, err := decodeIdentity(env.Data)
		if err != nil {
			return err
		}
		r.presence.Join(identity, connID)
		r.broadcastPresence()
		return nil

	case model.EventSendMessage:
		_, err := r.signaling.Deliver(env.Data)
		return err

	case model.EventCallOffer, model.EventCallAnswer, model.EventCallICECandidate, model.EventCallEnd:
		_, err := r.signaling.Forward(env.Event, env.Data)
		return err

	case model.EventCodeJoin:
		var req model.CodeJoinRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return r.rooms.Join(req.RoomID, connID, req.Username)

	case model.EventCodeChange:
		var req model.CodeChangeRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		_, err := r.rooms.Change(req.RoomID, req.Code, connID)
		return err

	case model.EventCodeSync:
		var req model.CodeSyncRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		r.rooms.Sync(req.SocketID, req.Code)
		return nil

	case model.EventCodeTyping:
		var req model.CodeTypingRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		_, err := r.rooms.Typing(req.RoomID, req.Username, connID)
		return err

	case model.EventAIAsk:
		var req model.AIAskRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return r.bridge.Go(r.ctx, req)

	case model.EventPing:
		r.out.SendTo(connID, model.EventPong, nil)
		return nil
	}
	return errUnknownEvent
}

func (r *Relay) handleTerminal(connID string, env model.Envelope) error {
	switch env.Event {
	case model.EventTermAttach:
		var req model.TermAttachRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		err := r.terminals.Attach(connID, req.SessionID)
		if err != nil {
			r.out.SendTo(connID, model.EventTermError, terminalMessage(err))
		}
		return err

	case model.EventTermInput:
		var data string
		if err := decode(env.Data, &data); err != nil {
			return err
		}
		err := r.terminals.Input(connID, []byte(data))
		if errors.Is(err, model.ErrSessionExpired) {
			r.out.SendTo(connID, model.EventTermError, MessageSessionExpired)
		}
		return err

	case model.EventTermResize:
		var req model.TermResizeRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return r.terminals.Resize(connID, req.Cols, req.Rows)

	case model.EventPing:
		r.out.SendTo(connID, model.EventPong, nil)
		return nil
	}
	return errUnknownEvent
}

func terminalMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrSessionExpired):
		return MessageSessionExpired
	case errors.Is(err, model.ErrTerminalUnavailable):
		return MessageTerminalUnavailable
	default:
		return MessageInvalidSession
	}
}

// Disconnect releases everything connID holds: room membership (members
// are told), its terminal attachment and its presence entry. The remaining
// connections then receive the new onlineUsers snapshot.
func (r *Relay) Disconnect(connID string) {
	left := r.rooms.Leave(connID)
	r.terminals.Detach(connID)
	removed := r.presence.Remove(connID)
	if removed > 0 {
		r.broadcastPresence()
	}
	r.log.Debug().Str("conn", connID).Strs("rooms", left).Int("presence_removed", removed).Msg("disconnected")
}

func (r *Relay) broadcastPresence() {
	snapshot := r.presence.Snapshot()
	metrics.SetOnlineUsers(len(snapshot))
	r.out.Broadcast(model.EventOnlineUsers, snapshot)
}

// EnsureTerminal returns the terminal session token of roomKey.
func (r *Relay) EnsureTerminal(ctx context.Context, roomKey string) (string, error) {
	return r.terminals.EnsureSession(ctx, roomKey)
}

// TerminalAvailable reports whether terminals can be created on this host.
func (r *Relay) TerminalAvailable() error {
	return r.terminals.Available()
}

// TerminalSessions returns the number of live terminal sessions.
func (r *Relay) TerminalSessions() int {
	return r.terminals.Sessions()
}

// OnlineUsers returns the number of online identities.
func (r *Relay) OnlineUsers() int {
	return r.presence.Len()
}

// Close cancels in-flight AI requests, waits for them and kills every
// terminal.
func (r *Relay) Close() error {
	r.cancel()
	r.bridge.Close()
	return r.terminals.Close()
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(data, v)
}

// decodeIdentity accepts the identity as a bare string or as {"userId": ...}.
func decodeIdentity(data json.RawMessage) (string, error) {
	var identity string
	if err := decode(data, &identity); err != nil {
		var obj struct {
			UserID string `json:"userId"`
		}
		if json.Unmarshal(data, &obj) != nil {
			return "", err
		}
		identity = obj.UserID
	}
	if identity == "" {
		return "", errors.New("missing identity")
	}
	return identity, nil
}
