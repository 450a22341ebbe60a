// Package session provides the process-wide session-resumption cache and
// the hooks that connect it to the protocol engine's handshakes.
//
// The store holds serialized session state keyed by session identifier.
// Entries are written when a handshake completes and read when a client
// attempts resumption; eviction is delegated to the backing cache.
package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrCacheMiss indicates no session is cached under the identifier.
var ErrCacheMiss = errors.New("session cache miss")

// CacheError reports a session store failure.
type CacheError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	return fmt.Sprintf("session cache %s failed: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying error.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Store is a bounded cache of resumable session state.
//
// Implementations must be safe for concurrent use: every worker's
// handshakes read and write the same store.
type Store interface {
	// Get returns the state cached under id, or ErrCacheMiss.
	Get(ctx context.Context, id string) ([]byte, error)

	// Put upserts the state under id.
	Put(ctx context.Context, id string, state []byte) error

	// Len reports the number of cached sessions, or -1 when counting is
	// not cheap for the backend.
	Len() int

	// Close releases backend resources.
	Close() error
}
