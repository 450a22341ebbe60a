package transport

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

// loopbackCapacity bounds the descriptor-side send buffer so Send can
// exercise the would-block path.
const loopbackCapacity = 1 << 20

// Loopback is an in-memory transport. Pair hands out a descriptor for the
// layer side and a blocking net.Conn for the peer side, so a standard TLS
// client can talk to the layer without real sockets.
type Loopback struct {
	mu    sync.Mutex
	next  int
	socks map[int]*loopSock
}

// NewLoopback creates an empty loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{
		next:  3,
		socks: make(map[int]*loopSock),
	}
}

// Pair allocates a connected descriptor/peer pair.
func (l *Loopback) Pair() (fd int, peer net.Conn) {
	sock := newLoopSock()

	l.mu.Lock()
	fd = l.next
	l.next++
	l.socks[fd] = sock
	l.mu.Unlock()

	return fd, &loopPeer{sock: sock}
}

func (l *Loopback) sock(fd int) (*loopSock, bool) {
	l.mu.Lock()
	sock, ok := l.socks[fd]
	l.mu.Unlock()
	return sock, ok
}

// Recv implements Transport.
func (l *Loopback) Recv(fd int, p []byte) (int, error) {
	sock, ok := l.sock(fd)
	if !ok {
		return 0, ErrBadDescriptor
	}

	sock.mu.Lock()
	defer sock.mu.Unlock()

	if sock.fdClosed {
		return 0, ErrBadDescriptor
	}
	if sock.toFD.Len() == 0 {
		if sock.peerClosed {
			return 0, io.EOF
		}
		return 0, ErrAgain
	}
	n, _ := sock.toFD.Read(p)
	return n, nil
}

// Send implements Transport. It transfers at most the free buffer space
// and reports ErrAgain when the peer has not drained anything.
func (l *Loopback) Send(fd int, p []byte) (int, error) {
	sock, ok := l.sock(fd)
	if !ok {
		return 0, ErrBadDescriptor
	}

	sock.mu.Lock()
	defer sock.mu.Unlock()

	if sock.fdClosed {
		return 0, ErrBadDescriptor
	}
	if sock.peerClosed {
		return 0, io.ErrClosedPipe
	}

	free := loopbackCapacity - sock.toPeer.Len()
	if free <= 0 {
		return 0, ErrAgain
	}
	if len(p) > free {
		p = p[:free]
	}
	sock.toPeer.Write(p)
	sock.cond.Broadcast()
	return len(p), nil
}

// Close implements Transport.
func (l *Loopback) Close(fd int) error {
	sock, ok := l.sock(fd)
	if !ok {
		return ErrBadDescriptor
	}

	sock.mu.Lock()
	alreadyClosed := sock.fdClosed
	sock.fdClosed = true
	sock.cond.Broadcast()
	sock.mu.Unlock()

	if alreadyClosed {
		return ErrBadDescriptor
	}
	return nil
}

// loopSock is one bidirectional in-memory socket.
type loopSock struct {
	mu   sync.Mutex
	cond *sync.Cond

	toFD   bytes.Buffer // peer writes, descriptor side reads
	toPeer bytes.Buffer // descriptor side writes, peer reads

	fdClosed   bool
	peerClosed bool
}

func newLoopSock() *loopSock {
	s := &loopSock{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// loopPeer is the blocking net.Conn end handed to clients.
type loopPeer struct {
	sock *loopSock
}

// Read blocks until the layer sends bytes or closes.
func (p *loopPeer) Read(b []byte) (int, error) {
	s := p.sock
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.toPeer.Len() == 0 {
		if s.fdClosed {
			return 0, io.EOF
		}
		if s.peerClosed {
			return 0, net.ErrClosed
		}
		s.cond.Wait()
	}
	n, _ := s.toPeer.Read(b)
	s.cond.Broadcast()
	return n, nil
}

// Write delivers bytes to the descriptor side. It never blocks.
func (p *loopPeer) Write(b []byte) (int, error) {
	s := p.sock
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peerClosed {
		return 0, net.ErrClosed
	}
	if s.fdClosed {
		return 0, io.ErrClosedPipe
	}
	s.toFD.Write(b)
	s.cond.Broadcast()
	return len(b), nil
}

// Close closes the peer side; the descriptor side drains buffered bytes
// and then reads EOF.
func (p *loopPeer) Close() error {
	s := p.sock
	s.mu.Lock()
	s.peerClosed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return nil
}

func (p *loopPeer) LocalAddr() net.Addr                { return loopAddr{} }
func (p *loopPeer) RemoteAddr() net.Addr               { return loopAddr{} }
func (p *loopPeer) SetDeadline(t time.Time) error      { return nil }
func (p *loopPeer) SetReadDeadline(t time.Time) error  { return nil }
func (p *loopPeer) SetWriteDeadline(t time.Time) error { return nil }

type loopAddr struct{}

func (loopAddr) Network() string { return "loopback" }
func (loopAddr) String() string  { return "loopback" }

var (
	_ Transport = (*Loopback)(nil)
	_ net.Conn  = (*loopPeer)(nil)
)
