package engine

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-tlsterm/tlsterm/observability"
	"github.com/go-tlsterm/tlsterm/transport"
)

// TLS adapts a crypto/tls server connection to the non-blocking Engine
// contract.
//
// crypto/tls cannot suspend a half-done handshake and resume it on the
// next readiness notification, so the connection is serviced by two pump
// goroutines: one moves decrypted plaintext out of the connection, the
// other moves accepted plaintext in. The goroutines block; the Engine
// methods never wait on I/O. Ciphertext crosses between the connection
// and the socket through an internal bio whose reads drain an inbox fed
// by Feed and whose writes go straight to the socket, spilling to an
// outbox on short sends.
//
// Read and Buffered wait for the read pump to quiesce — to decrypt
// everything Feed delivered and park again waiting for ciphertext —
// before answering. Without that wait a want-read answer could follow a
// Feed that consumed the only readiness-visible bytes, and an
// edge-triggered host would stall forever. The wait is bounded by
// decryption CPU time, never by I/O.
type TLS struct {
	cfg    Config
	tr     transport.Transport
	fd     func() int
	logger observability.Logger

	// sess is nil between Reset and the next use. Only the owning worker
	// touches it.
	sess *tlsSession

	feedSlab []byte
}

// NewTLS creates an engine over the given transport. fd is consulted on
// every socket operation, so a pooled slot rebind changes the descriptor
// the engine drives without rebuilding it.
func NewTLS(cfg Config, tr transport.Transport, fd func() int, logger observability.Logger) *TLS {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &TLS{
		cfg:      cfg,
		tr:       tr,
		fd:       fd,
		logger:   logger,
		feedSlab: make([]byte, cfg.maxRecordSize()),
	}
}

// session returns the live per-connection state, creating it on first use
// after construction or Reset.
func (e *TLS) session() *tlsSession {
	if e.sess == nil {
		e.sess = newTLSSession(e)
	}
	return e.sess
}

// Feed implements Engine. It drains the socket into the inbox until the
// socket would block, the inbox hits its bound, or the peer closes.
func (e *TLS) Feed() error {
	s := e.session()
	for {
		s.mu.Lock()
		full := s.inbox.Len() >= e.cfg.bufferLimit()
		s.mu.Unlock()
		if full {
			return nil
		}

		n, err := e.tr.Recv(e.fd(), e.feedSlab)
		if n > 0 {
			s.mu.Lock()
			s.inbox.Write(e.feedSlab[:n])
			s.cond.Broadcast()
			s.mu.Unlock()
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, transport.ErrAgain):
			return nil
		case errors.Is(err, io.EOF):
			s.mu.Lock()
			s.inEOF = true
			s.cond.Broadcast()
			s.mu.Unlock()
			return nil
		default:
			s.mu.Lock()
			s.sockErr = err
			s.inEOF = true
			s.cond.Broadcast()
			s.mu.Unlock()
			return err
		}
	}
}

// Flush implements Engine.
func (e *TLS) Flush() error {
	if e.sess == nil {
		return nil
	}
	s := e.sess

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Read implements Engine. It waits until the read pump has either
// produced plaintext, hit a sticky error, or consumed the whole inbox
// and parked again, so a want-read answer always means the socket truly
// holds nothing more to decrypt.
func (e *TLS) Read(p []byte) (int, error) {
	s := e.session()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.plain.Len() > 0 {
			n, _ := s.plain.Read(p)
			s.cond.Broadcast() // release decrypt backpressure
			return n, nil
		}
		if s.readErr != nil {
			if errors.Is(s.readErr, io.EOF) {
				return 0, ErrClosed
			}
			return 0, s.readErr
		}
		if s.sockErr != nil {
			return 0, s.sockErr
		}
		if s.closed {
			return 0, ErrClosed
		}
		if s.quiescedLocked() {
			return 0, ErrWantRead
		}
		s.cond.Wait()
	}
}

// Buffered implements Engine. Like Read it waits for the read pump to
// quiesce, so in-flight decryption is never under-reported.
func (e *TLS) Buffered() int {
	if e.sess == nil {
		return 0
	}
	s := e.sess

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.readErr != nil || s.sockErr != nil || s.closed {
			return s.plain.Len()
		}
		if s.throttled || s.quiescedLocked() {
			return s.plain.Len()
		}
		s.cond.Wait()
	}
}

// Write implements Engine.
func (e *TLS) Write(p []byte) (int, error) {
	s := e.session()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return 0, s.writeErr
	}
	if s.sockErr != nil {
		return 0, s.sockErr
	}
	if s.pending.Len() >= e.cfg.bufferLimit() || s.outbox.Len() >= e.cfg.bufferLimit() {
		_ = s.flushLocked()
		return 0, ErrWantWrite
	}

	s.pending.Write(p)
	s.cond.Broadcast()
	return len(p), nil
}

// CloseNotify implements Engine. The alert is written synchronously —
// bioConn.Write cannot block — so the attempt is made even when a Reset
// follows immediately.
func (e *TLS) CloseNotify() {
	if e.sess == nil {
		return
	}
	s := e.sess

	if err := s.conn.CloseWrite(); err != nil {
		e.logger.Debug("close notify not sent", observability.Error(err))
	}

	s.mu.Lock()
	_ = s.flushLocked()
	s.mu.Unlock()
}

// Reset implements Engine. It tears the connection state down completely;
// recreating it on the next use is what guarantees no residual handshake
// or record state survives a rebind.
func (e *TLS) Reset() {
	s := e.sess
	if s == nil {
		return
	}
	e.sess = nil

	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
}

// Shutdown implements Engine.
func (e *TLS) Shutdown() {
	e.Reset()
}

var _ Engine = (*TLS)(nil)

// tlsSession is the per-connection state: the tls.Conn, its pump
// goroutines, and the buffers crossing between them and the adapter.
type tlsSession struct {
	eng  *TLS
	conn *tls.Conn
	wg   sync.WaitGroup

	mu   sync.Mutex
	cond *sync.Cond

	inbox   bytes.Buffer // ciphertext, socket -> conn
	outbox  bytes.Buffer // ciphertext spill, conn -> socket
	plain   bytes.Buffer // plaintext, conn -> adapter
	pending bytes.Buffer // plaintext, adapter -> conn

	parked    bool  // a conn goroutine waits in bioConn.Read for ciphertext
	throttled bool  // readLoop waits for the adapter to drain plain
	inEOF     bool  // transport reported EOF
	closed    bool  // Reset initiated
	readErr   error // sticky, from the read pump
	writeErr  error // sticky, from the write pump
	sockErr   error // sticky, fatal transport failure
}

func newTLSSession(e *TLS) *tlsSession {
	s := &tlsSession{eng: e}
	s.cond = sync.NewCond(&s.mu)
	s.conn = tls.Server(&bioConn{sess: s}, e.cfg.TLS)

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	return s
}

// quiescedLocked reports that no more plaintext can appear without a new
// Feed: the connection is parked in bioConn.Read and the inbox holds
// nothing left to decrypt. Caller holds s.mu.
func (s *tlsSession) quiescedLocked() bool {
	return s.parked && s.inbox.Len() == 0
}

// flushLocked drains the outbox to the socket. Caller holds s.mu.
func (s *tlsSession) flushLocked() error {
	for s.outbox.Len() > 0 {
		n, err := s.eng.tr.Send(s.eng.fd(), s.outbox.Bytes())
		if n > 0 {
			s.outbox.Next(n)
		}
		if errors.Is(err, transport.ErrAgain) {
			return nil
		}
		if err != nil {
			s.sockErr = err
			s.cond.Broadcast()
			return err
		}
	}
	return nil
}

// readLoop pumps decrypted plaintext out of the connection. The first
// conn.Read also drives the server side of the handshake.
func (s *tlsSession) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, s.eng.cfg.maxRecordSize())
	for {
		s.mu.Lock()
		for s.plain.Len() >= s.eng.cfg.bufferLimit() && !s.closed {
			s.throttled = true
			s.cond.Broadcast()
			s.cond.Wait()
		}
		s.throttled = false
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		n, err := s.conn.Read(buf)

		s.mu.Lock()
		if n > 0 {
			s.plain.Write(buf[:n])
		}
		if err != nil {
			s.readErr = err
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// writeLoop pumps accepted plaintext into the connection.
func (s *tlsSession) writeLoop() {
	defer s.wg.Done()

	buf := make([]byte, s.eng.cfg.maxRecordSize())
	for {
		s.mu.Lock()
		for s.pending.Len() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		n, _ := s.pending.Read(buf)
		s.mu.Unlock()

		if _, err := s.conn.Write(buf[:n]); err != nil {
			s.mu.Lock()
			s.writeErr = err
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}
	}
}

// bioConn is the net.Conn the tls.Conn reads ciphertext from and writes
// ciphertext to. Reads block until Feed delivers bytes, flagging the
// parked state the quiescence checks rely on; writes try the socket
// immediately and spill what it refuses.
type bioConn struct {
	sess *tlsSession
}

func (b *bioConn) Read(p []byte) (int, error) {
	s := b.sess
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.inbox.Len() == 0 && !s.inEOF && !s.closed {
		s.parked = true
		s.cond.Broadcast()
		s.cond.Wait()
	}
	s.parked = false

	if s.inbox.Len() > 0 {
		n, _ := s.inbox.Read(p)
		return n, nil
	}
	if s.closed {
		return 0, net.ErrClosed
	}
	if s.sockErr != nil {
		return 0, s.sockErr
	}
	return 0, io.EOF
}

func (b *bioConn) Write(p []byte) (int, error) {
	s := b.sess
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, net.ErrClosed
	}

	total := len(p)
	if s.outbox.Len() == 0 {
		n, err := s.eng.tr.Send(s.eng.fd(), p)
		if n > 0 {
			p = p[n:]
		}
		if err != nil && !errors.Is(err, transport.ErrAgain) {
			s.sockErr = err
			s.cond.Broadcast()
			return 0, err
		}
	}
	s.outbox.Write(p)
	return total, nil
}

func (b *bioConn) Close() error                       { return nil }
func (b *bioConn) LocalAddr() net.Addr                { return bioAddr{} }
func (b *bioConn) RemoteAddr() net.Addr               { return bioAddr{} }
func (b *bioConn) SetDeadline(t time.Time) error      { return nil }
func (b *bioConn) SetReadDeadline(t time.Time) error  { return nil }
func (b *bioConn) SetWriteDeadline(t time.Time) error { return nil }

type bioAddr struct{}

func (bioAddr) Network() string { return "tls-bio" }
func (bioAddr) String() string  { return "tls-bio" }

var _ net.Conn = (*bioConn)(nil)
