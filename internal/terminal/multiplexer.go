// Package terminal shares one shell per room across any number of
// connections.
//
// A session is created on demand for a room key and addressed by an opaque
// token. Connections attach with the token, receive the scrollback followed by
// live output, and write input that races with every other attached writer.
// The session lives exactly as long as at least one connection is attached.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/collab-hub/relay/internal/buffer"
	"github.com/collab-hub/relay/internal/metrics"
	"github.com/collab-hub/relay/internal/model"
	"github.com/collab-hub/relay/internal/pty"
)

// DefaultHistorySize is the scrollback replayed to late attachers (64KB).
const DefaultHistorySize = 64 * 1024

// MessageSessionEnded is sent to attached connections when the shell exits.
const MessageSessionEnded = "Terminal session ended"

// Spawner starts shells. *pty.Manager is the production implementation.
type Spawner interface {
	Available() error
	Spawn(ctx context.Context, opts pty.SpawnOptions) (pty.Handle, error)
}

// Outbox delivers an event to one connection. It must not block.
type Outbox interface {
	SendTo(connID, event string, payload any) bool
}

// Config configures a Multiplexer.
type Config struct {
	HistorySize int
	Rows        uint16
	Cols        uint16
}

type session struct {
	token   string
	roomKey string
	proc    pty.Handle

	subscribe sync.Once

	// mu orders fan-out against attachment so every attached connection
	// sees the scrollback and then live output exactly once.
	mu      sync.Mutex
	conns   map[string]struct{}
	history *buffer.RingBuffer

	// carry holds a UTF-8 sequence cut by a read boundary until its
	// remaining bytes arrive.
	carry []byte

	// exited is set under Multiplexer.mu when the shell ends before the
	// session was registered.
	exited bool
}

// spawn marks a room whose shell is starting. Later callers wait on done.
type spawn struct {
	done chan struct{}
	err  error
}

// Multiplexer owns every terminal session of the process.
type Multiplexer struct {
	spawner Spawner
	out     Outbox
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	tokens   map[string]string   // token -> room key
	rooms    map[string]*session // room key -> session
	byConn   map[string]*session // attached connection -> session
	spawning map[string]*spawn   // room key -> shell being started
	closing  bool

	lastStamp int64
}

// NewMultiplexer creates a multiplexer. Output and errors are delivered
// through out.
func NewMultiplexer(spawner Spawner, out Outbox, cfg Config) *Multiplexer {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	return &Multiplexer{
		spawner: spawner,
		out:     out,
		cfg:     cfg,
		log:     log.With().Str("module", "terminal").Logger(),
		now:     time.Now,
		tokens:   make(map[string]string),
		rooms:    make(map[string]*session),
		byConn:   make(map[string]*session),
		spawning: make(map[string]*spawn),
	}
}

// Available reports whether sessions can be created. The error wraps
// model.ErrTerminalUnavailable.
func (m *Multiplexer) Available() error {
	return m.spawner.Available()
}

// EnsureSession returns the token of the room's session, spawning a shell if
// the room has none. Host failures wrap model.ErrTerminalUnavailable.
//
// The shell starts without holding the multiplexer lock. Concurrent callers
// for the same room wait for that start instead of spawning their own.
func (m *Multiplexer) EnsureSession(ctx context.Context, roomKey string) (string, error) {
	if roomKey == "" {
		return "", model.ErrRoomKeyRequired
	}

	for {
		m.mu.Lock()
		if m.closing {
			m.mu.Unlock()
			return "", model.ErrTerminalUnavailable
		}
		if s, ok := m.rooms[roomKey]; ok {
			m.mu.Unlock()
			return s.token, nil
		}
		p, starting := m.spawning[roomKey]
		if !starting {
			break
		}
		m.mu.Unlock()

		select {
		case <-p.done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if p.err != nil {
			return "", p.err
		}
	}

	// m.mu is held here.
	p := &spawn{done: make(chan struct{})}
	m.spawning[roomKey] = p
	s := &session{
		token:   m.newToken(roomKey),
		roomKey: roomKey,
		conns:   make(map[string]struct{}),
		history: buffer.NewRingBuffer(m.cfg.HistorySize),
	}
	m.mu.Unlock()

	token, err := m.start(ctx, s)

	m.mu.Lock()
	delete(m.spawning, roomKey)
	p.err = err
	m.mu.Unlock()
	close(p.done)

	return token, err
}

// start spawns the shell of s and registers the session. Callers hold the
// room's spawn marker but not m.mu.
func (m *Multiplexer) start(ctx context.Context, s *session) (string, error) {
	proc, err := m.spawner.Spawn(ctx, pty.SpawnOptions{
		Name:   s.token,
		Rows:   m.cfg.Rows,
		Cols:   m.cfg.Cols,
		OnExit: func(code int, _ error) { m.sessionExited(s, code) },
	})
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	switch {
	case m.closing:
		err = model.ErrTerminalUnavailable
	case s.exited:
		err = fmt.Errorf("%w: shell exited on start", model.ErrTerminalUnavailable)
	default:
		s.proc = proc
		m.rooms[s.roomKey] = s
		m.tokens[s.token] = s.roomKey
		metrics.SetTerminalSessions(len(m.rooms))
	}
	m.mu.Unlock()

	if err != nil {
		m.closeProc(proc)
		return "", err
	}

	m.log.Info().Str("room", s.roomKey).Str("session", s.token).Msg("terminal session created")
	return s.token, nil
}

// newToken never returns a token twice, so a stale token cannot resolve to a
// newer session of the same room. Callers hold m.mu.
func (m *Multiplexer) newToken(roomKey string) string {
	stamp := max(m.now().UnixMilli(), m.lastStamp+1)
	m.lastStamp = stamp
	return "room-" + roomKey + "-" + strconv.FormatInt(stamp, 36)
}

// lookup resolves a token to its live session. Callers hold m.mu.
func (m *Multiplexer) lookup(token string) (*session, bool) {
	roomKey, ok := m.tokens[token]
	if !ok {
		return nil, false
	}
	s, ok := m.rooms[roomKey]
	if !ok || s.token != token {
		return nil, false
	}
	return s, true
}

// Attach adds connID to the session named by token. The connection first
// receives term:attached and the scrollback, then live output. A connection
// attached elsewhere is detached from its old session first.
func (m *Multiplexer) Attach(connID, token string) error {
	m.mu.Lock()

	s, ok := m.lookup(token)
	if !ok {
		m.mu.Unlock()
		return model.ErrInvalidSession
	}

	var orphan pty.Handle
	if prev, attached := m.byConn[connID]; attached {
		if prev == s {
			m.mu.Unlock()
			m.out.SendTo(connID, model.EventTermAttached, model.TermAttachedEvent{SessionID: token})
			return nil
		}
		orphan = m.detachLocked(connID, prev)
	}

	s.mu.Lock()
	s.conns[connID] = struct{}{}
	m.byConn[connID] = s
	m.out.SendTo(connID, model.EventTermAttached, model.TermAttachedEvent{SessionID: token})
	if history := buffer.TrimPartialRune(s.history.ReadAll()); len(history) > 0 {
		m.out.SendTo(connID, model.EventTermOutput, string(history))
	}
	attached := len(s.conns)
	s.mu.Unlock()
	m.mu.Unlock()

	if orphan != nil {
		m.closeProc(orphan)
	}

	s.subscribe.Do(func() {
		s.proc.Subscribe(func(data []byte) { m.fanOut(s, data) })
	})

	m.log.Debug().Str("conn", connID).Str("session", token).Int("attached", attached).Msg("attached")
	return nil
}

// fanOut runs on the process read loop. Output is forwarded as text, so a
// sequence split by a read boundary waits for its remaining bytes.
func (m *Multiplexer) fanOut(s *session, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.carry) > 0 {
		data = append(s.carry, data...)
		s.carry = nil
	}
	data, rest := buffer.SplitIncompleteRune(data)
	if len(rest) > 0 {
		s.carry = append([]byte(nil), rest...)
	}
	if len(data) == 0 {
		return
	}

	s.history.Write(data)
	out := string(data)
	for connID := range s.conns {
		m.out.SendTo(connID, model.EventTermOutput, out)
	}
}

// Input writes raw bytes to the connection's session.
func (m *Multiplexer) Input(connID string, data []byte) error {
	s, ok := m.attachedTo(connID)
	if !ok {
		return model.ErrNotAttached
	}
	if err := s.proc.Write(data); err != nil {
		if errors.Is(err, pty.ErrClosed) {
			return model.ErrSessionExpired
		}
		return err
	}
	return nil
}

// Resize changes the window size of the connection's session. Dimensions
// outside 1..65535 are ignored.
func (m *Multiplexer) Resize(connID string, cols, rows int) error {
	s, ok := m.attachedTo(connID)
	if !ok {
		return model.ErrNotAttached
	}
	if cols <= 0 || rows <= 0 || cols > 0xFFFF || rows > 0xFFFF {
		return nil
	}
	if err := s.proc.Resize(uint16(rows), uint16(cols)); err != nil {
		if errors.Is(err, pty.ErrClosed) {
			return model.ErrSessionExpired
		}
		return err
	}
	return nil
}

func (m *Multiplexer) attachedTo(connID string) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byConn[connID]
	return s, ok
}

// Detach removes connID from its session. The last detach kills the shell and
// makes the token unresolvable. Detaching an unattached connection is a no-op.
func (m *Multiplexer) Detach(connID string) {
	m.mu.Lock()
	s, ok := m.byConn[connID]
	if !ok {
		m.mu.Unlock()
		return
	}
	orphan := m.detachLocked(connID, s)
	m.mu.Unlock()

	if orphan != nil {
		m.closeProc(orphan)
	}
}

// detachLocked removes connID from s and, when s becomes empty, removes s from
// both indices and returns its process for the caller to close after
// releasing m.mu. Callers hold m.mu.
func (m *Multiplexer) detachLocked(connID string, s *session) pty.Handle {
	delete(m.byConn, connID)

	s.mu.Lock()
	delete(s.conns, connID)
	remaining := len(s.conns)
	s.mu.Unlock()

	m.log.Debug().Str("conn", connID).Str("session", s.token).Int("attached", remaining).Msg("detached")
	if remaining > 0 {
		return nil
	}

	m.removeLocked(s)
	m.log.Info().Str("room", s.roomKey).Str("session", s.token).Msg("terminal session closed")
	return s.proc
}

func (m *Multiplexer) removeLocked(s *session) {
	if m.rooms[s.roomKey] == s {
		delete(m.rooms, s.roomKey)
	}
	delete(m.tokens, s.token)
	metrics.SetTerminalSessions(len(m.rooms))
}

func (m *Multiplexer) closeProc(p pty.Handle) {
	if err := p.Close(); err != nil {
		m.log.Warn().Err(err).Msg("close terminal")
	}
}

// sessionExited handles a shell that ended on its own. Sessions already torn
// down by Detach or Close are ignored.
func (m *Multiplexer) sessionExited(s *session, code int) {
	m.mu.Lock()
	if m.rooms[s.roomKey] != s {
		s.exited = true
		m.mu.Unlock()
		return
	}
	m.removeLocked(s)

	s.mu.Lock()
	conns := make([]string, 0, len(s.conns))
	for connID := range s.conns {
		conns = append(conns, connID)
		delete(m.byConn, connID)
	}
	s.conns = make(map[string]struct{})
	s.mu.Unlock()
	m.mu.Unlock()

	m.log.Info().Str("room", s.roomKey).Str("session", s.token).Int("exit_code", code).Msg("terminal session ended")
	for _, connID := range conns {
		m.out.SendTo(connID, model.EventTermError, MessageSessionEnded)
	}
}

// Sessions returns the number of live sessions.
func (m *Multiplexer) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Close kills every session. Later EnsureSession calls fail.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	m.closing = true
	procs := make([]pty.Handle, 0, len(m.rooms))
	for _, s := range m.rooms {
		procs = append(procs, s.proc)
	}
	m.rooms = make(map[string]*session)
	m.tokens = make(map[string]string)
	m.byConn = make(map[string]*session)
	metrics.SetTerminalSessions(0)
	m.mu.Unlock()

	var errs []error
	for _, p := range procs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
