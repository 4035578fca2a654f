//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package meshserver

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// ReuseAddrHook sets SO_REUSEADDR and SO_REUSEPORT so the listen address can
// also be used as the source address of outgoing dials.
func ReuseAddrHook(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); opErr != nil {
			opErr = fmt.Errorf("set SO_REUSEADDR on %s: %w", address, opErr)
			return
		}
		if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); opErr != nil {
			opErr = fmt.Errorf("set SO_REUSEPORT on %s: %w", address, opErr)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}
