//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package meshserver

import (
	"fmt"
	"runtime"
	"syscall"
)

// ReuseAddrHook is not supported on this platform.
func ReuseAddrHook(network, address string, c syscall.RawConn) error {
	return fmt.Errorf("address reuse is not supported on %s", runtime.GOOS)
}
