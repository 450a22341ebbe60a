package session

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"sync/atomic"

	"github.com/go-tlsterm/tlsterm/entropy"
	"github.com/go-tlsterm/tlsterm/observability"
)

// ticket identifiers are opaque random values handed to clients.
const ticketIDLen = 32

// Stats are cumulative resumption counters.
type Stats struct {
	Hits   uint64
	Misses uint64
	Stored uint64
}

// Resumer adapts a Store to the protocol engine's session hooks. The
// engine calls Wrap when a handshake completes and Unwrap when a client
// offers a ticket; a miss means a full handshake, never an error.
type Resumer struct {
	store  Store
	source *entropy.Source
	logger observability.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	stored atomic.Uint64
}

// NewResumer creates a Resumer over the given store. Ticket identifiers
// are drawn from the shared entropy source.
func NewResumer(store Store, source *entropy.Source, logger observability.Logger) *Resumer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Resumer{store: store, source: source, logger: logger}
}

// Wrap serializes completed-handshake state, caches it under a fresh
// random identifier, and returns the identifier as the session ticket.
// A store failure degrades to an unresumable ticket, not a handshake
// failure.
func (r *Resumer) Wrap(_ tls.ConnectionState, state *tls.SessionState) ([]byte, error) {
	data, err := state.Bytes()
	if err != nil {
		return nil, err
	}

	id, err := r.source.Gather(ticketIDLen)
	if err != nil {
		return nil, err
	}

	if err := r.store.Put(context.Background(), hex.EncodeToString(id), data); err != nil {
		r.logger.Warn("failed to cache session state", observability.Error(err))
		return id, nil
	}
	r.stored.Add(1)
	return id, nil
}

// Unwrap resolves a client-offered ticket to cached session state. Any
// failure is reported as a miss so the handshake continues in full.
func (r *Resumer) Unwrap(identity []byte, _ tls.ConnectionState) (*tls.SessionState, error) {
	data, err := r.store.Get(context.Background(), hex.EncodeToString(identity))
	if err != nil {
		r.misses.Add(1)
		return nil, nil
	}

	state, err := tls.ParseSessionState(data)
	if err != nil {
		r.misses.Add(1)
		r.logger.Warn("cached session state is unparsable", observability.Error(err))
		return nil, nil
	}

	r.hits.Add(1)
	return state, nil
}

// Stats returns cumulative resumption counters.
func (r *Resumer) Stats() Stats {
	return Stats{
		Hits:   r.hits.Load(),
		Misses: r.misses.Load(),
		Stored: r.stored.Load(),
	}
}
