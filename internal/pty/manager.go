package pty

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/collab-hub/relay/internal/buffer"
	"github.com/collab-hub/relay/internal/logger"
	"github.com/collab-hub/relay/internal/model"
)

const (
	// DefaultPendingSize bounds output kept before the first subscriber (64KB).
	DefaultPendingSize = 64 * 1024

	// DefaultReadBufferSize is the buffer size for reading PTY output.
	DefaultReadBufferSize = 4096

	DefaultRows = 24
	DefaultCols = 80

	fallbackShell = "sh"
)

// ErrClosed is returned by operations on a terminal that has been closed.
var ErrClosed = errors.New("terminal is closed")

// Handle is a running interactive process with push-based output.
type Handle interface {
	// Subscribe installs the output callback. Only the first call has an
	// effect; output produced before it is delivered to fn first.
	Subscribe(fn func(data []byte))
	Write(data []byte) error
	Resize(rows, cols uint16) error
	Close() error
}

// SpawnOptions contains options for spawning a terminal.
type SpawnOptions struct {
	// Name labels the terminal in logs and recordings, usually the room key.
	Name string

	Rows uint16
	Cols uint16

	// OnExit is called once when the process exits, whatever the cause.
	OnExit func(exitCode int, err error)
}

// Config configures a Manager.
type Config struct {
	Shell       string
	Args        []string
	Dir         string
	Env         map[string]string
	Rows        uint16
	Cols        uint16
	PendingSize int

	// RecordDir enables asciinema recording of every terminal when set.
	RecordDir string
}

// Manager spawns shells on pseudo-terminals.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu    sync.Mutex
	shell string
}

// NewManager creates a new PTY manager.
func NewManager(cfg Config) *Manager {
	if cfg.Rows == 0 {
		cfg.Rows = DefaultRows
	}
	if cfg.Cols == 0 {
		cfg.Cols = DefaultCols
	}
	if cfg.PendingSize <= 0 {
		cfg.PendingSize = DefaultPendingSize
	}
	return &Manager{
		cfg: cfg,
		log: log.With().Str("module", "pty").Logger(),
	}
}

// Available reports whether terminals can be spawned on this host. The error
// wraps model.ErrTerminalUnavailable.
func (m *Manager) Available() error {
	if err := checkHost(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrTerminalUnavailable, err)
	}
	if _, err := m.resolveShell(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrTerminalUnavailable, err)
	}
	return nil
}

func (m *Manager) resolveShell() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shell != "" {
		return m.shell, nil
	}

	candidates := []string{m.cfg.Shell, fallbackShell}
	if m.cfg.Shell == "" {
		candidates = []string{os.Getenv("SHELL"), "bash", fallbackShell}
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if path, err := exec.LookPath(c); err == nil {
			m.shell = path
			return path, nil
		}
	}
	return "", fmt.Errorf("no usable shell among %q", strings.Join(candidates, ", "))
}

func (m *Manager) environ() []string {
	env := append(os.Environ(), "TERM=xterm-256color")
	for k, v := range m.cfg.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// Spawn starts a new shell. Host failures wrap model.ErrTerminalUnavailable.
func (m *Manager) Spawn(ctx context.Context, opts SpawnOptions) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Available(); err != nil {
		return nil, err
	}
	shell, _ := m.resolveShell()

	if opts.Rows == 0 {
		opts.Rows = m.cfg.Rows
	}
	if opts.Cols == 0 {
		opts.Cols = m.cfg.Cols
	}

	var rec *logger.Recorder
	if m.cfg.RecordDir != "" {
		if err := os.MkdirAll(m.cfg.RecordDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create record dir: %w", err)
		}
		path := filepath.Join(m.cfg.RecordDir, castFileName(opts.Name))
		r, err := logger.NewRecorder(path, opts.Name, int(opts.Cols), int(opts.Rows))
		if err != nil {
			return nil, err
		}
		rec = r
	}

	proc, err := Start(StartOptions{
		Command: shell,
		Args:    m.cfg.Args,
		Env:     m.environ(),
		Dir:     m.cfg.Dir,
		Rows:    opts.Rows,
		Cols:    opts.Cols,
	})
	if err != nil {
		if rec != nil {
			rec.Close()
		}
		return nil, fmt.Errorf("%w: %v", model.ErrTerminalUnavailable, err)
	}

	t := &Terminal{
		name:     opts.Name,
		proc:     proc,
		pending:  buffer.NewRingBuffer(m.cfg.PendingSize),
		recorder: rec,
		onExit:   opts.OnExit,
		done:     make(chan struct{}),
		log:      m.log.With().Str("terminal", opts.Name).Int("pid", proc.PID()).Logger(),
	}
	t.log.Info().Str("shell", shell).Msg("terminal started")

	go t.readLoop()
	go t.waitLoop()

	return t, nil
}

func castFileName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if clean == "" {
		clean = "terminal"
	}
	return clean + ".cast"
}

// Terminal is a shell running on a PTY.
type Terminal struct {
	name     string
	proc     *Process
	recorder *logger.Recorder
	onExit   func(exitCode int, err error)
	log      zerolog.Logger

	mu       sync.Mutex
	onOutput func(data []byte)
	pending  *buffer.RingBuffer
	closed   bool

	done     chan struct{}
	exitCode int
}

// Subscribe installs fn as the output callback. Output emitted before the
// call is delivered to fn, in order, before Subscribe returns. When the
// backlog overflowed, a sequence cut at its start is dropped. fn runs on the
// read loop and must not call back into the terminal.
func (t *Terminal) Subscribe(fn func(data []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.onOutput != nil || fn == nil {
		return
	}
	t.onOutput = fn
	backlog := buffer.TrimPartialRune(t.pending.ReadAll())
	t.pending.Reset()
	if len(backlog) > 0 {
		fn(backlog)
	}
}

func (t *Terminal) readLoop() {
	buf := make([]byte, DefaultReadBufferSize)
	for {
		n, err := t.proc.PTY.Read(buf)
		if n > 0 {
			t.emit(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			return
		}
	}
}

func (t *Terminal) emit(data []byte) {
	if t.recorder != nil {
		if err := t.recorder.Output(data); err != nil {
			t.log.Warn().Err(err).Msg("record output")
		}
	}

	t.mu.Lock()
	fn := t.onOutput
	if fn == nil {
		t.pending.Write(data)
	}
	t.mu.Unlock()

	if fn != nil {
		fn(data)
	}
}

func (t *Terminal) waitLoop() {
	code, err := t.proc.Wait()
	t.exitCode = code
	close(t.done)

	t.log.Info().Int("exit_code", code).Err(err).Msg("terminal exited")
	t.Close()

	if t.onExit != nil {
		t.onExit(code, err)
	}
}

// Write writes data to the terminal input.
func (t *Terminal) Write(data []byte) error {
	if t.isClosed() {
		return ErrClosed
	}
	if _, err := t.proc.PTY.Write(data); err != nil {
		return fmt.Errorf("failed to write to PTY: %w", err)
	}
	if t.recorder != nil {
		if err := t.recorder.Input(data); err != nil {
			t.log.Warn().Err(err).Msg("record input")
		}
	}
	return nil
}

// Resize changes the terminal window size.
func (t *Terminal) Resize(rows, cols uint16) error {
	if t.isClosed() {
		return ErrClosed
	}
	if err := t.proc.PTY.Resize(rows, cols); err != nil {
		return fmt.Errorf("failed to resize PTY: %w", err)
	}
	if t.recorder != nil {
		if err := t.recorder.Resize(int(cols), int(rows)); err != nil {
			t.log.Warn().Err(err).Msg("record resize")
		}
	}
	return nil
}

// Close kills the process and releases the PTY. It is idempotent.
func (t *Terminal) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	var errs []error
	select {
	case <-t.done:
	default:
		if err := t.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, err)
		}
	}
	if err := t.proc.PTY.Close(); err != nil {
		errs = append(errs, err)
	}
	if t.recorder != nil {
		if err := t.recorder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Terminal) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Done is closed when the process has exited.
func (t *Terminal) Done() <-chan struct{} {
	return t.done
}

// ExitCode returns the exit code once Done is closed.
func (t *Terminal) ExitCode() int {
	<-t.done
	return t.exitCode
}

// PID returns the process ID.
func (t *Terminal) PID() int {
	return t.proc.PID()
}
