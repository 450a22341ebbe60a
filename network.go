package tlsterm

import (
	"io"
	"net"
)

// BufferSize is the largest single-operation buffer the layer advertises
// to the host, matching the engine's per-record plaintext bound.
const BufferSize = 16 * 1024

// Capability flags advertised alongside the operation surface.
type Capability uint32

const (
	// CapSecureSocket marks the layer as providing TLS-terminated
	// descriptors.
	CapSecureSocket Capability = 1 << iota
)

// Network is the operation surface a worker hands to the host's event
// loop. All functions must be called from the worker's own loop only.
type Network struct {
	Read     func(fd int, p []byte) Result
	Write    func(fd int, p []byte) Result
	Writev   func(fd int, bufs net.Buffers) Result
	SendFile func(fd int, src io.ReaderAt, offset *int64, count int64) Result
	Close    func(fd int) error

	// BufferSize is the maximum buffer length a single Read or Write
	// accepts.
	BufferSize int

	Capabilities Capability
}

// Network returns the worker's operation surface.
func (w *Worker) Network() Network {
	return Network{
		Read:         w.Read,
		Write:        w.Write,
		Writev:       w.Writev,
		SendFile:     w.SendFile,
		Close:        w.Close,
		BufferSize:   BufferSize,
		Capabilities: CapSecureSocket,
	}
}
