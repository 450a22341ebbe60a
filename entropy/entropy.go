// Package entropy provides the shared entropy source and the per-worker
// deterministic random generator used for handshakes.
//
// One Source exists per process and is safe for concurrent use; its
// underlying generator mutates shared state, so every access is
// serialized. Each worker owns exactly one RNG seeded from the Source.
package entropy

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrEntropyFailure indicates the underlying generator reported failure.
var ErrEntropyFailure = errors.New("entropy gathering failed")

// InitError reports an entropy or RNG initialization failure. It is fatal
// for the scope that hit it: the process for the Source, the worker for
// its RNG.
type InitError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("crypto init error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("crypto init error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *InitError) Is(target error) bool {
	_, ok := target.(*InitError)
	return ok || errors.Is(e.Cause, target)
}

// Source is the process-wide entropy source. All access is mutex-guarded.
type Source struct {
	mu  sync.Mutex
	gen io.Reader
}

// NewSource creates a Source over the operating system generator.
func NewSource() *Source {
	return NewSourceFrom(rand.Reader)
}

// NewSourceFrom creates a Source over a caller-supplied generator.
// Tests use it to inject deterministic or failing generators.
func NewSourceFrom(gen io.Reader) *Source {
	return &Source{gen: gen}
}

// Gather returns n bytes from the generator. Safe to call concurrently
// from any number of workers.
func (s *Source) Gather(n int) ([]byte, error) {
	buf := make([]byte, n)

	s.mu.Lock()
	_, err := io.ReadFull(s.gen, buf)
	s.mu.Unlock()

	if err != nil {
		return nil, &InitError{Message: "entropy source failure", Cause: errors.Join(ErrEntropyFailure, err)}
	}
	return buf, nil
}
