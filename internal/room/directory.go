// Package room keeps the membership of collaborative code rooms and fans
// editor events out to their members.
package room

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/collab-hub/relay/internal/model"
)

// TimeFormat is the wire format of room creation times, millisecond ISO 8601
// in UTC as browsers produce it.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Sender delivers an event to one connection. It must not block.
type Sender interface {
	SendTo(connID, event string, payload any) bool
}

type member struct {
	connID   string
	username string
}

type room struct {
	createdAt time.Time
	members   []member // join order
}

func (r *room) index(connID string) int {
	for i, m := range r.members {
		if m.connID == connID {
			return i
		}
	}
	return -1
}

func (r *room) clients() []model.RoomClient {
	out := make([]model.RoomClient, len(r.members))
	for i, m := range r.members {
		out[i] = model.RoomClient{SocketID: m.connID, Username: m.username}
	}
	return out
}

// Directory owns every code room. Rooms are created by the first join and
// kept, with their creation time, after the last member leaves.
//
// Sends happen under the directory lock so members of one room observe
// events in the order they were emitted.
type Directory struct {
	out Sender
	log zerolog.Logger
	now func() time.Time

	mu     sync.Mutex
	rooms  map[string]*room
	byConn map[string][]string // connection -> room keys, join order
}

// NewDirectory creates an empty directory.
func NewDirectory(out Sender) *Directory {
	return &Directory{
		out:    out,
		log:    log.With().Str("module", "room").Logger(),
		now:    time.Now,
		rooms:  make(map[string]*room),
		byConn: make(map[string][]string),
	}
}

// Join adds connID to roomKey under displayName and sends code:joined to
// every member, the newcomer included. Joining again from the same
// connection renames it without duplicating it.
func (d *Directory) Join(roomKey, connID, displayName string) error {
	if roomKey == "" {
		return model.ErrRoomKeyRequired
	}
	if displayName == "" {
		return model.ErrDisplayNameRequired
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[roomKey]
	if !ok {
		r = &room{createdAt: d.now().UTC()}
		d.rooms[roomKey] = r
	}

	if i := r.index(connID); i >= 0 {
		r.members[i].username = displayName
	} else {
		r.members = append(r.members, member{connID: connID, username: displayName})
		d.byConn[connID] = append(d.byConn[connID], roomKey)
	}

	ev := model.CodeJoinedEvent{
		Clients:          r.clients(),
		Username:         displayName,
		SocketID:         connID,
		RoomCreationTime: r.createdAt.Format(TimeFormat),
	}
	for _, m := range r.members {
		d.out.SendTo(m.connID, model.EventCodeJoined, ev)
	}

	d.log.Debug().Str("room", roomKey).Str("conn", connID).Int("members", len(r.members)).Msg("joined")
	return nil
}

// Sync sends code to exactly one connection as code:change.
func (d *Directory) Sync(target, code string) bool {
	if target == "" {
		return false
	}
	return d.out.SendTo(target, model.EventCodeChange, model.CodeChangeEvent{Code: code})
}

// Change sends code to every member of roomKey except the originator.
func (d *Directory) Change(roomKey, code, exclude string) (int, error) {
	if roomKey == "" {
		return 0, model.ErrRoomKeyRequired
	}
	return d.Broadcast(roomKey, model.EventCodeChange, model.CodeChangeEvent{Code: code}, exclude), nil
}

// Typing tells every member except the typist that displayName is typing.
// Receivers expire the indicator themselves.
func (d *Directory) Typing(roomKey, displayName, exclude string) (int, error) {
	if roomKey == "" {
		return 0, model.ErrRoomKeyRequired
	}
	return d.Broadcast(roomKey, model.EventCodeTyping, model.CodeTypingEvent{Username: displayName}, exclude), nil
}

// Broadcast sends event to every member of roomKey except exclude and returns
// the number of deliveries. An unknown room has no members.
func (d *Directory) Broadcast(roomKey, event string, payload any, exclude string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[roomKey]
	if !ok {
		return 0
	}
	n := 0
	for _, m := range r.members {
		if m.connID == exclude {
			continue
		}
		if d.out.SendTo(m.connID, event, payload) {
			n++
		}
	}
	return n
}

// Leave removes connID from every room it joined. The remaining members of
// each room receive code:disconnected first. It returns the rooms left.
func (d *Directory) Leave(connID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := d.byConn[connID]
	delete(d.byConn, connID)

	for _, key := range keys {
		r, ok := d.rooms[key]
		if !ok {
			continue
		}
		i := r.index(connID)
		if i < 0 {
			continue
		}

		ev := model.CodeDisconnectedEvent{SocketID: connID, Username: r.members[i].username}
		for _, m := range r.members {
			if m.connID != connID {
				d.out.SendTo(m.connID, model.EventCodeDisconnected, ev)
			}
		}
		r.members = append(r.members[:i], r.members[i+1:]...)

		d.log.Debug().Str("room", key).Str("conn", connID).Int("members", len(r.members)).Msg("left")
	}
	return keys
}

// Members returns the members of roomKey in join order.
func (d *Directory) Members(roomKey string) []model.RoomClient {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[roomKey]
	if !ok {
		return nil
	}
	return r.clients()
}

// CreatedAt returns when roomKey was first joined.
func (d *Directory) CreatedAt(roomKey string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[roomKey]
	if !ok {
		return time.Time{}, false
	}
	return r.createdAt, true
}

// Active reports whether roomKey has at least one member.
func (d *Directory) Active(roomKey string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[roomKey]
	return ok && len(r.members) > 0
}
