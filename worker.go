package tlsterm

import (
	"errors"
	"io"
	"net"

	"github.com/go-tlsterm/tlsterm/engine"
	"github.com/go-tlsterm/tlsterm/observability"
	"github.com/go-tlsterm/tlsterm/transport"
)

// Worker is one event-loop thread's private state: its connection-context
// pool and its adapter operations. A Worker must only be used from the
// loop that owns it; nothing here is safe for concurrent use.
type Worker struct {
	id      string
	logger  observability.Logger
	tr      transport.Transport
	pool    *pool
	metrics *Metrics
}

// context resolves the connection context bound to fd, creating one on
// first I/O for the descriptor.
func (w *Worker) context(fd int) *slot {
	if s, ok := w.pool.get(fd); ok {
		return s
	}
	s, reused := w.pool.acquire(fd)
	if w.metrics != nil {
		w.metrics.PoolSize.WithLabelValues(w.id).Set(float64(w.pool.size()))
		if reused {
			w.metrics.PoolReusesTotal.WithLabelValues(w.id).Inc()
		}
	}
	return s
}

// Read decrypts into p. On success N is the bytes copied and Buffered the
// plaintext already decrypted beyond p, so the host knows more data is
// immediately available without another readiness notification. No
// ciphertext yet is WouldBlock, an orderly peer close is Eof.
func (w *Worker) Read(fd int, p []byte) Result {
	s := w.context(fd)
	if len(p) > BufferSize {
		p = p[:BufferSize]
	}

	_ = s.eng.Feed()
	n, err := s.eng.Read(p)
	_ = s.eng.Flush()

	switch {
	case err == nil:
		w.countRead(n)
		return Data(n, s.eng.Buffered())
	case errors.Is(err, engine.ErrWantRead), errors.Is(err, engine.ErrWantWrite):
		w.countWouldBlock("read")
		return WouldBlock()
	case errors.Is(err, engine.ErrClosed):
		return Eof()
	default:
		w.countError("read", err)
		return Failure(err)
	}
}

// Write encrypts and sends p. A positive N is the exact count of
// plaintext consumed; the engine takes all of p or none of it.
func (w *Worker) Write(fd int, p []byte) Result {
	s := w.context(fd)

	n, err := s.eng.Write(p)
	_ = s.eng.Flush()

	switch {
	case err == nil:
		w.countWrite(n)
		return Data(n, 0)
	case errors.Is(err, engine.ErrWantWrite), errors.Is(err, engine.ErrWantRead):
		w.countWouldBlock("write")
		return WouldBlock()
	default:
		w.countError("write", err)
		return Failure(err)
	}
}

// Writev sends the scattered buffers as one unit. The engine encrypts one
// contiguous buffer per call, so the buffers are concatenated into a
// per-call scratch buffer first; the copy is the price of a single
// record boundary around the whole sequence.
func (w *Worker) Writev(fd int, bufs net.Buffers) Result {
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	scratch := make([]byte, 0, total)
	for _, b := range bufs {
		scratch = append(scratch, b...)
	}
	return w.Write(fd, scratch)
}

// SendFile encrypts and sends up to count bytes of src starting at
// *offset, advancing *offset past what was sent. src's own read cursor is
// never touched. It stops at end-of-file, on zero read progress, or when
// the engine refuses output, and never sends beyond count even when a
// read returns more than remains. If anything was sent the cumulative
// count is returned even when a later attempt failed; otherwise the
// translated outcome of the final attempt is.
func (w *Worker) SendFile(fd int, src io.ReaderAt, offset *int64, count int64) Result {
	s := w.context(fd)
	if count <= 0 {
		return Data(0, 0)
	}

	buf := make([]byte, BufferSize)
	var sent int64
	last := Data(0, 0)

	for remaining := count; remaining > 0; {
		chunk := int64(len(buf))
		if chunk > remaining {
			chunk = remaining
		}

		rn, rerr := src.ReadAt(buf[:chunk], *offset)
		if int64(rn) > remaining {
			rn = int(remaining)
		}
		if rn == 0 {
			if rerr != nil && rerr != io.EOF {
				last = Failure(rerr)
			}
			break
		}

		wn, werr := s.eng.Write(buf[:rn])
		_ = s.eng.Flush()
		if werr != nil {
			switch {
			case errors.Is(werr, engine.ErrWantWrite), errors.Is(werr, engine.ErrWantRead):
				w.countWouldBlock("sendfile")
				last = WouldBlock()
			case errors.Is(werr, engine.ErrClosed):
				last = Eof()
			default:
				w.countError("sendfile", werr)
				last = Failure(werr)
			}
			break
		}
		if wn <= 0 {
			break
		}

		sent += int64(wn)
		*offset += int64(wn)
		remaining -= int64(wn)

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			last = Failure(rerr)
			break
		}
	}

	if sent > 0 {
		w.countWrite(int(sent))
		return Data(int(sent), 0)
	}
	return last
}

// Close sends a best-effort close notification when a context is bound to
// fd, returns the context to the pool, and always closes the descriptor
// itself. A descriptor that never did I/O through the layer still gets
// its socket closed.
func (w *Worker) Close(fd int) error {
	if s, ok := w.pool.get(fd); ok {
		s.eng.CloseNotify()
		w.pool.release(fd, s)
	}
	if w.metrics != nil {
		w.metrics.ClosesTotal.WithLabelValues(w.id).Inc()
	}
	return w.tr.Close(fd)
}

// PoolSize reports how many connection contexts the worker holds, bound
// and free both.
func (w *Worker) PoolSize() int { return w.pool.size() }

// Shutdown destroys the worker's pool and every engine in it.
func (w *Worker) Shutdown() {
	w.pool.teardown()
	w.logger.Debug("worker shut down")
}

func (w *Worker) countRead(n int) {
	if w.metrics != nil {
		w.metrics.BytesReadTotal.WithLabelValues(w.id).Add(float64(n))
	}
}

func (w *Worker) countWrite(n int) {
	if w.metrics != nil {
		w.metrics.BytesWrittenTotal.WithLabelValues(w.id).Add(float64(n))
	}
}

func (w *Worker) countWouldBlock(op string) {
	if w.metrics != nil {
		w.metrics.WouldBlockTotal.WithLabelValues(w.id, op).Inc()
	}
}

func (w *Worker) countError(op string, err error) {
	if w.metrics != nil {
		w.metrics.ErrorsTotal.WithLabelValues(w.id, op).Inc()
	}
	w.logger.Error("connection error",
		observability.String("op", op),
		observability.Error(err),
	)
}
