package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collab-hub/relay/internal/model"
)

type delivery struct {
	conn    string
	event   string
	payload any
}

type recordingSender struct {
	sent []delivery
}

func (s *recordingSender) SendTo(connID, event string, payload any) bool {
	s.sent = append(s.sent, delivery{connID, event, payload})
	return true
}

func (s *recordingSender) to(connID string) []delivery {
	var out []delivery
	for _, d := range s.sent {
		if d.conn == connID {
			out = append(out, d)
		}
	}
	return out
}

func (s *recordingSender) reset() { s.sent = nil }

func newTestDirectory() (*Directory, *recordingSender) {
	out := &recordingSender{}
	d := NewDirectory(out)
	d.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return d, out
}

func TestJoinSyncScenario(t *testing.T) {
	d, out := newTestDirectory()

	require.NoError(t, d.Join("r1", "A", "alice"))
	a := out.to("A")
	require.Len(t, a, 1)
	assert.Equal(t, model.EventCodeJoined, a[0].event)
	assert.Equal(t, model.CodeJoinedEvent{
		Clients:          []model.RoomClient{{SocketID: "A", Username: "alice"}},
		Username:         "alice",
		SocketID:         "A",
		RoomCreationTime: "2024-05-01T12:00:00.000Z",
	}, a[0].payload)

	out.reset()
	require.NoError(t, d.Join("r1", "B", "bob"))
	both := []model.RoomClient{{SocketID: "A", Username: "alice"}, {SocketID: "B", Username: "bob"}}
	for _, c := range []string{"A", "B"} {
		got := out.to(c)
		require.Len(t, got, 1, c)
		ev := got[0].payload.(model.CodeJoinedEvent)
		assert.Equal(t, both, ev.Clients)
		assert.Equal(t, "B", ev.SocketID)
	}

	out.reset()
	assert.True(t, d.Sync("B", "x"))
	assert.Equal(t, []delivery{{"B", model.EventCodeChange, model.CodeChangeEvent{Code: "x"}}}, out.sent)
}

func TestChangeNeverEchoes(t *testing.T) {
	d, out := newTestDirectory()
	d.Join("r1", "A", "alice")
	d.Join("r1", "B", "bob")
	d.Join("r1", "C", "carol")
	d.Join("r2", "D", "dave")
	out.reset()

	n, err := d.Change("r1", "package main", "A")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, out.to("A"))
	assert.Empty(t, out.to("D"))
	assert.Len(t, out.to("B"), 1)
	assert.Len(t, out.to("C"), 1)

	_, err = d.Change("", "x", "A")
	assert.ErrorIs(t, err, model.ErrRoomKeyRequired)
}

func TestTyping(t *testing.T) {
	d, out := newTestDirectory()
	d.Join("r1", "A", "alice")
	d.Join("r1", "B", "bob")
	out.reset()

	n, err := d.Typing("r1", "alice", "A")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []delivery{{"B", model.EventCodeTyping, model.CodeTypingEvent{Username: "alice"}}}, out.sent)

	n, _ = d.Typing("nope", "alice", "A")
	assert.Zero(t, n)
}

func TestLeaveNotifiesRemainingMembers(t *testing.T) {
	d, out := newTestDirectory()
	d.Join("r1", "A", "alice")
	d.Join("r1", "B", "bob")
	d.Join("r2", "A", "alice")
	d.Join("r2", "C", "carol")
	out.reset()

	assert.Equal(t, []string{"r1", "r2"}, d.Leave("A"))
	assert.Empty(t, out.to("A"))
	assert.Equal(t, []delivery{{"B", model.EventCodeDisconnected, model.CodeDisconnectedEvent{SocketID: "A", Username: "alice"}}}, out.to("B"))
	assert.Len(t, out.to("C"), 1)

	assert.Equal(t, []model.RoomClient{{SocketID: "B", Username: "bob"}}, d.Members("r1"))
	assert.Nil(t, d.Leave("A"))
}

func TestEmptyRoomKeepsCreationTime(t *testing.T) {
	d, _ := newTestDirectory()
	d.Join("r1", "A", "alice")
	created, ok := d.CreatedAt("r1")
	require.True(t, ok)

	d.Leave("A")
	assert.False(t, d.Active("r1"))
	assert.Empty(t, d.Members("r1"))

	d.now = func() time.Time { return created.Add(time.Hour) }
	d.Join("r1", "B", "bob")
	again, _ := d.CreatedAt("r1")
	assert.Equal(t, created, again)
	assert.True(t, d.Active("r1"))
}

func TestRejoinRenamesWithoutDuplicating(t *testing.T) {
	d, _ := newTestDirectory()
	d.Join("r1", "A", "alice")
	d.Join("r1", "A", "alice2")

	assert.Equal(t, []model.RoomClient{{SocketID: "A", Username: "alice2"}}, d.Members("r1"))
	assert.Equal(t, []string{"r1"}, d.Leave("A"))
}

func TestJoinValidation(t *testing.T) {
	d, out := newTestDirectory()
	assert.ErrorIs(t, d.Join("", "A", "alice"), model.ErrRoomKeyRequired)
	assert.ErrorIs(t, d.Join("r1", "A", ""), model.ErrDisplayNameRequired)
	assert.Empty(t, out.sent)
	_, ok := d.CreatedAt("r1")
	assert.False(t, ok)
}
