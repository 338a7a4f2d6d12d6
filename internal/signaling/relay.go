// Package signaling forwards call-setup messages between online users.
//
// The relay holds no call state. It does not check that an answer follows an
// offer; call correctness is the peers' business.
package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/collab-hub/relay/internal/model"
)

// Directory resolves an identity to its live connection.
type Directory interface {
	Lookup(identity string) (string, bool)
}

// Sender delivers an event to one connection.
type Sender interface {
	SendTo(connID, event string, payload any) bool
}

// Relay forwards call:* events and direct chat messages.
type Relay struct {
	dir Directory
	out Sender
	log zerolog.Logger
}

// NewRelay creates a signaling relay.
func NewRelay(dir Directory, out Sender) *Relay {
	return &Relay{
		dir: dir,
		out: out,
		log: log.With().Str("module", "signaling").Logger(),
	}
}

// IsCallEvent reports whether event is one of the forwarded call events.
func IsCallEvent(event string) bool {
	switch event {
	case model.EventCallOffer, model.EventCallAnswer, model.EventCallICECandidate, model.EventCallEnd:
		return true
	}
	return false
}

// Forward delivers a call event to the user named by its "to" field. Every
// other field is passed through untouched. It reports whether the message was
// delivered; an offline target is not an error.
func (r *Relay) Forward(event string, data json.RawMessage) (bool, error) {
	if !IsCallEvent(event) {
		return false, fmt.Errorf("not a call event: %s", event)
	}

	fields, err := decodeObject(data)
	if err != nil {
		return false, err
	}
	to, err := stringField(fields, "to")
	if err != nil {
		return false, err
	}
	delete(fields, "to")

	return r.deliver(event, to, fields), nil
}

// Deliver sends a chat message to its receiver as getMessage. The target is
// taken from "to" or, failing that, "receiverId". The payload is forwarded
// whole.
func (r *Relay) Deliver(data json.RawMessage) (bool, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return false, err
	}
	to, err := stringField(fields, "to")
	if err != nil || to == "" {
		to, err = stringField(fields, "receiverId")
		if err != nil {
			return false, err
		}
	}
	return r.deliver(model.EventGetMessage, to, data), nil
}

func (r *Relay) deliver(event, to string, payload any) bool {
	connID, ok := r.dir.Lookup(to)
	if !ok {
		r.log.Debug().Str("event", event).Str("to", to).Msg("target offline, dropped")
		return false
	}
	return r.out.SendTo(connID, event, payload)
}

func decodeObject(data json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("invalid payload: not an object")
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("missing %q", name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("invalid %q: %w", name, err)
	}
	if s == "" {
		return "", fmt.Errorf("missing %q", name)
	}
	return s, nil
}
