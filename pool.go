package tlsterm

import (
	"github.com/go-tlsterm/tlsterm/engine"
	"github.com/go-tlsterm/tlsterm/observability"
)

// fdFree marks an unbound pool slot.
const fdFree = -1

// slot is one reusable connection context: a protocol-engine instance and
// the descriptor it is currently bound to. The fd field is the single
// source of truth for whether the slot is in use.
type slot struct {
	fd  int
	eng engine.Engine
}

// pool is a worker's arena of connection contexts. It grows when every
// slot is bound and never shrinks; slots are recycled on release and the
// arena is torn down only with its worker. Engine setup is the expensive
// part of accepting a connection, which is what the recycling buys back.
//
// The pool is owned by exactly one worker and is not safe for concurrent
// use.
type pool struct {
	slots   []*slot
	factory func(fd func() int) engine.Engine
	logger  observability.Logger

	acquires int
	reuses   int
}

func newPool(factory func(fd func() int) engine.Engine, logger observability.Logger) *pool {
	return &pool{factory: factory, logger: logger}
}

// get finds the slot bound to fd, if any.
func (p *pool) get(fd int) (*slot, bool) {
	for _, s := range p.slots {
		if s.fd == fd {
			return s, true
		}
	}
	return nil, false
}

// acquire binds a slot to fd, recycling a free one when available. A
// recycled slot's engine was reset at release time, so rebinding starts a
// fresh session with no residual per-connection state. reused reports
// whether an existing slot was recycled.
func (p *pool) acquire(fd int) (s *slot, reused bool) {
	p.acquires++
	for _, s := range p.slots {
		if s.fd == fdFree {
			s.fd = fd
			p.reuses++
			return s, true
		}
	}

	s = &slot{fd: fd}
	s.eng = p.factory(func() int { return s.fd })
	p.slots = append(p.slots, s)
	return s, false
}

// release unbinds the slot from fd and resets its engine for reuse. A
// descriptor mismatch means the binding was already torn down by an
// earlier close; it is logged and otherwise ignored so a stale release
// can never corrupt the pool.
func (p *pool) release(fd int, s *slot) {
	if s.fd != fd {
		p.logger.Warn("pool release descriptor mismatch",
			observability.Int("fd", fd),
			observability.Int("bound_fd", s.fd),
		)
		return
	}
	s.eng.Reset()
	s.fd = fdFree
}

// size reports the arena length, bound and free slots both.
func (p *pool) size() int { return len(p.slots) }

// teardown releases every engine. The pool must not be used afterwards.
func (p *pool) teardown() {
	for _, s := range p.slots {
		s.eng.Shutdown()
		s.fd = fdFree
	}
	p.slots = nil
}
