// Package engine wraps the cryptographic protocol engine behind the
// non-blocking contract the I/O adapter drives.
//
// The engine is record-oriented and semantically blocking: a handshake or
// read may need more peer bytes before it can make progress. The Engine
// interface exposes that as explicit want-read/want-write results instead
// of blocking the caller, so the host's event loop stays free to service
// other descriptors.
package engine

import (
	"crypto/tls"
	"errors"

	"github.com/go-tlsterm/tlsterm/credentials"
)

// Sentinel results translated by the adapter. They are conditions, not
// failures.
var (
	// ErrWantRead means the engine needs more ciphertext from the socket
	// before it can produce output. Retry after read readiness.
	ErrWantRead = errors.New("engine: want read")

	// ErrWantWrite means the engine cannot accept more plaintext until
	// buffered output drains to the socket. Retry after write readiness.
	ErrWantWrite = errors.New("engine: want write")

	// ErrClosed means the peer performed an orderly protocol-level close.
	ErrClosed = errors.New("engine: connection closed")
)

// Engine is one connection's protocol-engine instance. All methods are
// called from the owning worker only; none of them blocks.
//
// The lifecycle mirrors the pool slot that owns the engine: after Reset
// the engine is ready to serve a different descriptor with no residual
// per-connection state.
type Engine interface {
	// Feed moves available ciphertext from the socket into the engine.
	Feed() error

	// Flush moves buffered ciphertext from the engine to the socket.
	Flush() error

	// Read copies decrypted plaintext into p. With no plaintext ready it
	// returns ErrWantRead; after an orderly peer close, ErrClosed.
	Read(p []byte) (int, error)

	// Buffered reports decrypted plaintext still queued inside the engine
	// beyond what the last Read returned.
	Buffered() int

	// Write accepts plaintext for encryption. It consumes all of p or
	// nothing, returning ErrWantWrite when the engine is backed up.
	Write(p []byte) (int, error)

	// CloseNotify requests a best-effort protocol-level close
	// notification. Its outcome is deliberately unobservable.
	CloseNotify()

	// Reset discards all per-connection state so the engine can be bound
	// to another descriptor.
	Reset()

	// Shutdown releases the engine for good at worker teardown.
	Shutdown()
}

// Config carries the material an engine instance is constructed with.
type Config struct {
	// TLS is the server-endpoint configuration: certificate and key,
	// randomness source, session-resumption hooks, no client-certificate
	// verification.
	TLS *tls.Config

	// DH is the loaded Diffie-Hellman group, for engines that negotiate
	// ephemeral finite-field key exchange from explicit parameters. The
	// stock crypto/tls engine ignores it: it negotiates key exchange from
	// its own built-in groups and accepts no custom modulus.
	DH credentials.DHParams

	// MaxRecordSize bounds a single protocol record's plaintext.
	MaxRecordSize int

	// BufferLimit is the high-water mark for each internal direction;
	// writes are refused with ErrWantWrite above it.
	BufferLimit int
}

// Defaults for Config zero values.
const (
	DefaultMaxRecordSize = 16 * 1024
	DefaultBufferLimit   = 256 * 1024
)

func (c *Config) maxRecordSize() int {
	if c.MaxRecordSize > 0 {
		return c.MaxRecordSize
	}
	return DefaultMaxRecordSize
}

func (c *Config) bufferLimit() int {
	if c.BufferLimit > 0 {
		return c.BufferLimit
	}
	return DefaultBufferLimit
}
