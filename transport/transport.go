// Package transport provides the raw non-blocking descriptor primitives
// the TLS layer drives: receive, send, and close by descriptor.
//
// The operating-system implementation assumes descriptors are already in
// non-blocking mode; readiness scheduling belongs to the host's event
// loop. The loopback implementation backs tests and embedded hosts.
package transport

import "errors"

// ErrAgain reports that the descriptor cannot make progress now and the
// operation should be retried after the next readiness notification.
var ErrAgain = errors.New("operation would block")

// ErrBadDescriptor reports an operation on a descriptor the transport does
// not know.
var ErrBadDescriptor = errors.New("bad descriptor")

// Transport is the socket primitive surface used by the protocol engine's
// I/O callbacks and by the close path.
//
// Recv returns (0, io.EOF) on orderly remote close and ErrAgain when no
// data is available. Send may transfer a prefix of p; it returns ErrAgain
// when nothing can be sent.
type Transport interface {
	Recv(fd int, p []byte) (int, error)
	Send(fd int, p []byte) (int, error)
	Close(fd int) error
}
