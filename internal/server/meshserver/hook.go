package meshserver

import "syscall"

// ListenerHook runs on a socket after it is created and before it is bound.
// It has the signature of net.ListenConfig.Control and net.Dialer.Control.
// Returning an error aborts the listen (or dial) and closes the socket.
type ListenerHook func(network, address string, c syscall.RawConn) error
