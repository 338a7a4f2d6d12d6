// Package pty starts interactive shells on Linux pseudo-terminals and exposes
// them as handles that can be shared by many viewers.
package pty

import (
	"errors"
	"io"
	"os/exec"
)

// PTY is the master side of a pseudo-terminal.
type PTY interface {
	io.ReadWriteCloser

	// Resize changes the window size.
	Resize(rows, cols uint16) error
}

// StartOptions contains options for starting a process on a new PTY.
type StartOptions struct {
	Command string
	Args    []string

	// Env is the process environment. If nil, the current environment is used.
	Env []string

	// Dir is the working directory. If empty, the current directory is used.
	Dir string

	Rows uint16
	Cols uint16
}

// Process is a child process whose stdio is a PTY slave.
type Process struct {
	PTY PTY
	Cmd *exec.Cmd
}

// PID returns the process ID.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return 0
	}
	return p.Cmd.Process.Pid
}

// Wait waits for the process to exit and returns its exit code.
// A process killed by a signal reports -1 and no error.
func (p *Process) Wait() (int, error) {
	err := p.Cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Kill terminates the process.
func (p *Process) Kill() error {
	if p.Cmd.Process == nil {
		return nil
	}
	return p.Cmd.Process.Kill()
}
