// Package tlsterm is a TLS termination layer for a non-blocking,
// event-driven host. The host calls the adapter operations for ready
// descriptors; the layer resolves a per-worker connection context, drives
// the protocol engine, and translates its outcome into the host's
// readiness conventions.
package tlsterm

import "fmt"

// Status classifies the outcome of an adapter operation.
type Status int

const (
	// StatusData means bytes were transferred.
	StatusData Status = iota

	// StatusWouldBlock means the operation cannot make progress until the
	// descriptor is ready again. It is a condition, not an error.
	StatusWouldBlock

	// StatusEof means the peer performed an orderly protocol-level close.
	StatusEof

	// StatusError means the connection is unusable and should be closed
	// by the host.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusData:
		return "data"
	case StatusWouldBlock:
		return "would-block"
	case StatusEof:
		return "eof"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the uniform outcome of every adapter operation.
type Result struct {
	Status Status

	// N is the byte count transferred by this call: plaintext copied out
	// on a read, plaintext consumed on a write.
	N int

	// Buffered is plaintext the engine has already decrypted beyond what
	// fit in the caller's buffer. A read's caller should treat N+Buffered
	// as the amount knowably available without a fresh readiness
	// notification. Zero for writes.
	Buffered int

	// Err is set only when Status is StatusError.
	Err error
}

// Total is the byte count an event loop should account for: copied plus
// already-decrypted remainder.
func (r Result) Total() int { return r.N + r.Buffered }

// Data reports n bytes transferred with buffered plaintext still queued.
func Data(n, buffered int) Result {
	return Result{Status: StatusData, N: n, Buffered: buffered}
}

// WouldBlock reports that the operation must be retried after readiness.
func WouldBlock() Result { return Result{Status: StatusWouldBlock} }

// Eof reports an orderly peer close.
func Eof() Result { return Result{Status: StatusEof} }

// Failure reports a hard per-connection error.
func Failure(err error) Result { return Result{Status: StatusError, Err: err} }
