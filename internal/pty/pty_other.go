//go:build !linux

package pty

import (
	"fmt"
	"runtime"
)

func checkHost() error {
	return fmt.Errorf("pseudo-terminals are not supported on %s", runtime.GOOS)
}

// Start always fails on hosts without Linux pseudo-terminals.
func Start(StartOptions) (*Process, error) {
	return nil, checkHost()
}
