package pty

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collab-hub/relay/internal/buffer"
	"github.com/collab-hub/relay/internal/logger"
	"github.com/collab-hub/relay/internal/model"
)

type collector struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *collector) write(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Write(data)
}

func (c *collector) contains(s string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Contains(c.buf.Bytes(), []byte(s))
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	m := NewManager(cfg)
	if err := m.Available(); err != nil {
		t.Skipf("terminals unavailable: %v", err)
	}
	return m
}

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(Config{})
	assert.Equal(t, uint16(DefaultRows), m.cfg.Rows)
	assert.Equal(t, uint16(DefaultCols), m.cfg.Cols)
	assert.Equal(t, DefaultPendingSize, m.cfg.PendingSize)
}

func TestAvailableMissingShell(t *testing.T) {
	m := NewManager(Config{Shell: "/nonexistent/shell-xyz"})
	m.shell = ""
	// The fallback shell keeps the host usable when the configured one is missing.
	if err := m.Available(); err != nil {
		assert.True(t, errors.Is(err, model.ErrTerminalUnavailable))
	}
}

func TestSpawnCanceledContext(t *testing.T) {
	m := NewManager(Config{Shell: "sh"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Spawn(ctx, SpawnOptions{Name: "r1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTerminalEchoesInput(t *testing.T) {
	m := newTestManager(t, Config{})

	h, err := m.Spawn(context.Background(), SpawnOptions{Name: "echo"})
	require.NoError(t, err)
	defer h.Close()

	var out collector
	h.Subscribe(out.write)

	require.NoError(t, h.Write([]byte("echo relay-$((40+2))\n")))
	require.Eventually(t, func() bool { return out.contains("relay-42") }, 5*time.Second, 20*time.Millisecond)
}

func TestSubscribeReceivesBacklog(t *testing.T) {
	m := newTestManager(t, Config{})

	h, err := m.Spawn(context.Background(), SpawnOptions{Name: "backlog"})
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Write([]byte("echo early-$((1+1))\n")))
	time.Sleep(300 * time.Millisecond)

	var out collector
	h.Subscribe(out.write)
	require.Eventually(t, func() bool { return out.contains("early-2") }, 5*time.Second, 20*time.Millisecond)

	// A second subscriber is ignored.
	var other collector
	h.Subscribe(other.write)
	require.NoError(t, h.Write([]byte("echo late-$((2+1))\n")))
	require.Eventually(t, func() bool { return out.contains("late-3") }, 5*time.Second, 20*time.Millisecond)
	assert.False(t, other.contains("late-3"))
}

func TestCloseKillsProcessAndCallsOnExit(t *testing.T) {
	m := newTestManager(t, Config{})

	exited := make(chan struct{})
	h, err := m.Spawn(context.Background(), SpawnOptions{
		Name:   "kill",
		OnExit: func(int, error) { close(exited) },
	})
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("OnExit was not called")
	}

	assert.ErrorIs(t, h.Write([]byte("x")), ErrClosed)
	assert.ErrorIs(t, h.Resize(10, 10), ErrClosed)
}

func TestShellExitCallsOnExit(t *testing.T) {
	m := newTestManager(t, Config{})

	codes := make(chan int, 1)
	h, err := m.Spawn(context.Background(), SpawnOptions{
		Name:   "exit",
		OnExit: func(code int, _ error) { codes <- code },
	})
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Write([]byte("exit 3\n")))
	select {
	case code := <-codes:
		assert.Equal(t, 3, code)
	case <-time.After(5 * time.Second):
		t.Fatal("shell did not exit")
	}
	assert.Equal(t, 3, h.(*Terminal).ExitCode())
}

func TestSpawnRecordsSession(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, Config{RecordDir: dir})

	h, err := m.Spawn(context.Background(), SpawnOptions{Name: "room/1"})
	require.NoError(t, err)
	require.NoError(t, h.Resize(30, 100))
	require.NoError(t, h.Close())

	assert.FileExists(t, dir+"/room_1.cast")
}

func TestCastFileName(t *testing.T) {
	assert.Equal(t, "room-abc_1.cast", castFileName("room-abc_1"))
	assert.Equal(t, "a_b.cast", castFileName("a/b"))
	assert.Equal(t, "terminal.cast", castFileName(""))
}

type nopPTY struct{}

func (nopPTY) Read(p []byte) (int, error)     { return 0, io.EOF }
func (nopPTY) Write(p []byte) (int, error)    { return len(p), nil }
func (nopPTY) Close() error                   { return nil }
func (nopPTY) Resize(rows, cols uint16) error { return nil }

// failAfter accepts the cast header, then fails every write.
type failAfter struct{ writes int }

func (w *failAfter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, errors.New("disk full")
	}
	return len(p), nil
}

func TestRecordingFailuresAreLogged(t *testing.T) {
	rec, err := logger.NewRecorderWithWriter(&failAfter{}, 80, 24)
	require.NoError(t, err)

	var logs bytes.Buffer
	term := &Terminal{
		proc:     &Process{PTY: nopPTY{}},
		recorder: rec,
		pending:  buffer.NewRingBuffer(16),
		done:     make(chan struct{}),
		log:      zerolog.New(&logs),
	}

	require.NoError(t, term.Write([]byte("ls\r")))
	require.NoError(t, term.Resize(40, 120))
	term.emit([]byte("out"))

	for _, msg := range []string{"record input", "record resize", "record output"} {
		assert.Contains(t, logs.String(), msg)
	}
	assert.Equal(t, 3, strings.Count(logs.String(), "disk full"))
}

func TestSubscribeDropsCutSequenceAtBacklogStart(t *testing.T) {
	term := &Terminal{
		pending: buffer.NewRingBuffer(4),
		done:    make(chan struct{}),
		log:     zerolog.Nop(),
	}
	// The ring keeps the last two bytes of "€" without their lead byte, then "yz".
	term.emit([]byte("x€"))
	term.emit([]byte("yz"))

	var got []byte
	term.Subscribe(func(data []byte) { got = append(got, data...) })
	assert.Equal(t, "yz", string(got))
}
