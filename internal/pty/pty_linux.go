//go:build linux

package pty

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

const ptmxPath = "/dev/ptmx"

type linuxPTY struct {
	master *os.File
}

func (p *linuxPTY) Read(b []byte) (int, error)  { return p.master.Read(b) }
func (p *linuxPTY) Write(b []byte) (int, error) { return p.master.Write(b) }
func (p *linuxPTY) Close() error                { return p.master.Close() }

func (p *linuxPTY) Resize(rows, cols uint16) error {
	return setWinsize(p.master, rows, cols)
}

func setWinsize(f *os.File, rows, cols uint16) error {
	return unix.IoctlSetWinsize(int(f.Fd()), unix.TIOCSWINSZ, &unix.Winsize{Row: rows, Col: cols})
}

// checkHost reports whether this host can allocate pseudo-terminals.
func checkHost() error {
	f, err := os.OpenFile(ptmxPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", ptmxPath, err)
	}
	return f.Close()
}

// Start runs opts.Command on a freshly allocated PTY as a session leader
// with the PTY as its controlling terminal.
func Start(opts StartOptions) (*Process, error) {
	master, slave, err := openPair()
	if err != nil {
		return nil, err
	}

	if opts.Rows > 0 && opts.Cols > 0 {
		if err := setWinsize(master, opts.Rows, opts.Cols); err != nil {
			master.Close()
			slave.Close()
			return nil, fmt.Errorf("set window size: %w", err)
		}
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Dir = opts.Dir
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("start %s: %w", opts.Command, err)
	}

	// The child holds its own copy of the slave.
	slave.Close()

	return &Process{PTY: &linuxPTY{master: master}, Cmd: cmd}, nil
}

func openPair() (master, slave *os.File, err error) {
	master, err = os.OpenFile(ptmxPath, os.O_RDWR|syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", ptmxPath, err)
	}

	fd := int(master.Fd())
	n, err := unix.IoctlGetUint32(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("get pty number: %w", err)
	}
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("unlock pty: %w", err)
	}

	name := "/dev/pts/" + strconv.FormatUint(uint64(n), 10)
	slave, err = os.OpenFile(name, os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("open %s: %w", name, err)
	}
	return master, slave, nil
}
