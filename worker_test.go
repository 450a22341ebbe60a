package tlsterm

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/go-tlsterm/tlsterm/config"
	"github.com/go-tlsterm/tlsterm/engine"
	"github.com/go-tlsterm/tlsterm/observability"
	"github.com/go-tlsterm/tlsterm/transport"
)

// fakeEngine is a scriptable Engine for adapter-level tests.
type fakeEngine struct {
	plain  bytes.Buffer // plaintext the next Reads deliver
	wrote  bytes.Buffer // plaintext accepted by Write
	writes []int        // per-call accepted sizes

	peerClosed bool
	writeErr   error
	acceptCap  int // total bytes accepted before ErrWantWrite; 0 = unlimited

	notifies  int
	resets    int
	shutdowns int
}

func (f *fakeEngine) Feed() error  { return nil }
func (f *fakeEngine) Flush() error { return nil }

func (f *fakeEngine) Read(p []byte) (int, error) {
	if f.plain.Len() > 0 {
		return f.plain.Read(p)
	}
	if f.peerClosed {
		return 0, engine.ErrClosed
	}
	return 0, engine.ErrWantRead
}

func (f *fakeEngine) Buffered() int { return f.plain.Len() }

func (f *fakeEngine) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.acceptCap > 0 && f.wrote.Len()+len(p) > f.acceptCap {
		return 0, engine.ErrWantWrite
	}
	f.wrote.Write(p)
	f.writes = append(f.writes, len(p))
	return len(p), nil
}

func (f *fakeEngine) CloseNotify() { f.notifies++ }
func (f *fakeEngine) Reset()       { f.resets++ }
func (f *fakeEngine) Shutdown()    { f.shutdowns++ }

var _ engine.Engine = (*fakeEngine)(nil)

// fakeTransport records descriptor closes; reads and writes succeed
// trivially.
type fakeTransport struct {
	mu     sync.Mutex
	closed []int
}

func (f *fakeTransport) Recv(int, []byte) (int, error) { return 0, transport.ErrAgain }
func (f *fakeTransport) Send(_ int, p []byte) (int, error) {
	return len(p), nil
}

func (f *fakeTransport) Close(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, fd)
	return nil
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := &config.Settings{
		ConfDir: t.TempDir(),
		SessionCache: config.SessionCacheSettings{
			Backend: config.SessionBackendDisabled,
		},
	}
	s.ApplyDefaults()
	return s
}

// newFakeWorker builds a worker whose every engine is a fresh fakeEngine.
// The returned map tracks engines by creation order.
func newFakeWorker(t *testing.T, tr transport.Transport, logger observability.Logger) (*Worker, *[]*fakeEngine) {
	t.Helper()
	if logger == nil {
		logger = observability.NopLogger()
	}

	engines := &[]*fakeEngine{}
	layer, err := New(testSettings(t),
		WithLogger(logger),
		WithTransport(tr),
		WithEngineFactory(func(engine.Config, transport.Transport, func() int, observability.Logger) engine.Engine {
			fe := &fakeEngine{}
			*engines = append(*engines, fe)
			return fe
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = layer.Close() })

	w, err := layer.NewWorker(0)
	require.NoError(t, err)
	t.Cleanup(w.Shutdown)
	return w, engines
}

func TestWorker_AcquireThenGetReturnsSameContext(t *testing.T) {
	w, _ := newFakeWorker(t, &fakeTransport{}, nil)

	first := w.context(5)
	again, ok := w.pool.get(5)
	require.True(t, ok)
	assert.Same(t, first, again)
	assert.Equal(t, 1, w.PoolSize())
}

func TestWorker_FreedSlotIsReused(t *testing.T) {
	tr := &fakeTransport{}
	w, engines := newFakeWorker(t, tr, nil)

	w.context(5)
	require.NoError(t, w.Close(5))
	require.Equal(t, 1, (*engines)[0].resets)

	s := w.context(9)
	assert.Equal(t, 1, w.PoolSize())
	assert.Equal(t, 9, s.fd)
	assert.Len(t, *engines, 1)
}

func TestWorker_ReleaseMismatchIsLoggedNotFatal(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := observability.NewZapLogger(zap.New(core))
	w, _ := newFakeWorker(t, &fakeTransport{}, logger)

	s := w.context(5)
	w.pool.release(7, s)

	assert.Equal(t, 5, s.fd)
	require.Equal(t, 1, logs.FilterMessage("pool release descriptor mismatch").Len())
}

func TestWorker_ReadWithoutDataWouldBlocks(t *testing.T) {
	w, _ := newFakeWorker(t, &fakeTransport{}, nil)

	res := w.Read(5, make([]byte, 64))
	assert.Equal(t, StatusWouldBlock, res.Status)
	assert.Zero(t, res.N)
	assert.NoError(t, res.Err)
}

func TestWorker_ReadAfterPeerCloseIsEof(t *testing.T) {
	w, engines := newFakeWorker(t, &fakeTransport{}, nil)

	w.context(5)
	(*engines)[0].peerClosed = true

	res := w.Read(5, make([]byte, 64))
	assert.Equal(t, StatusEof, res.Status)
	assert.Zero(t, res.N)
}

func TestWorker_ReadReportsCopiedPlusBuffered(t *testing.T) {
	w, engines := newFakeWorker(t, &fakeTransport{}, nil)

	w.context(5)
	(*engines)[0].plain.Write(bytes.Repeat([]byte{'x'}, 100))

	res := w.Read(5, make([]byte, 40))
	require.Equal(t, StatusData, res.Status)
	assert.Equal(t, 40, res.N)
	assert.Equal(t, 60, res.Buffered)
	assert.Equal(t, 100, res.Total())
}

func TestWorker_WriteSurfacesEngineFailure(t *testing.T) {
	w, engines := newFakeWorker(t, &fakeTransport{}, nil)

	w.context(5)
	protoErr := errors.New("bad record mac")
	(*engines)[0].writeErr = protoErr

	res := w.Write(5, []byte("data"))
	require.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err, protoErr)
}

func TestWorker_WriteConsumesWholeBuffer(t *testing.T) {
	w, engines := newFakeWorker(t, &fakeTransport{}, nil)

	res := w.Write(5, []byte("hello"))
	require.Equal(t, StatusData, res.Status)
	assert.Equal(t, 5, res.N)
	assert.Equal(t, "hello", (*engines)[0].wrote.String())
}

func TestWorker_WriteBackpressureWouldBlocks(t *testing.T) {
	w, engines := newFakeWorker(t, &fakeTransport{}, nil)

	w.context(5)
	(*engines)[0].acceptCap = 4

	res := w.Write(5, []byte("too large"))
	assert.Equal(t, StatusWouldBlock, res.Status)
	assert.Zero(t, (*engines)[0].wrote.Len())
}

func TestWorker_WritevConcatenatesIntoOneEngineCall(t *testing.T) {
	w, engines := newFakeWorker(t, &fakeTransport{}, nil)

	res := w.Writev(5, net.Buffers{[]byte("ab"), []byte("cde"), []byte("f")})
	require.Equal(t, StatusData, res.Status)
	assert.Equal(t, 6, res.N)
	assert.Equal(t, []int{6}, (*engines)[0].writes)
	assert.Equal(t, "abcdef", (*engines)[0].wrote.String())
}

// countingReaderAt fails the test if read when no reads are expected.
type countingReaderAt struct {
	t     *testing.T
	inner *bytes.Reader
	reads int
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	c.reads++
	if c.inner == nil {
		c.t.Fatal("unexpected file read")
	}
	return c.inner.ReadAt(p, off)
}

func TestWorker_SendFileZeroCountReadsNothing(t *testing.T) {
	w, _ := newFakeWorker(t, &fakeTransport{}, nil)

	src := &countingReaderAt{t: t}
	offset := int64(0)
	res := w.SendFile(5, src, &offset, 0)

	assert.Equal(t, StatusData, res.Status)
	assert.Zero(t, res.N)
	assert.Zero(t, src.reads)
	assert.Zero(t, offset)
}

func TestWorker_SendFileStopsAtEndOfFile(t *testing.T) {
	w, engines := newFakeWorker(t, &fakeTransport{}, nil)

	content := bytes.Repeat([]byte{'f'}, 1000)
	offset := int64(0)
	res := w.SendFile(5, bytes.NewReader(content), &offset, 5000)

	require.Equal(t, StatusData, res.Status)
	assert.Equal(t, 1000, res.N)
	assert.Equal(t, int64(1000), offset)
	assert.Equal(t, content, (*engines)[0].wrote.Bytes())
}

func TestWorker_SendFileNeverExceedsCount(t *testing.T) {
	w, engines := newFakeWorker(t, &fakeTransport{}, nil)

	content := bytes.Repeat([]byte{'f'}, 1000)
	offset := int64(0)
	res := w.SendFile(5, bytes.NewReader(content), &offset, 300)

	require.Equal(t, StatusData, res.Status)
	assert.Equal(t, 300, res.N)
	assert.Equal(t, int64(300), offset)
	assert.Equal(t, 300, (*engines)[0].wrote.Len())
}

func TestWorker_SendFileRespectsOffset(t *testing.T) {
	w, engines := newFakeWorker(t, &fakeTransport{}, nil)

	offset := int64(6)
	res := w.SendFile(5, bytes.NewReader([]byte("headerpayload")), &offset, 100)

	require.Equal(t, StatusData, res.Status)
	assert.Equal(t, "payload", (*engines)[0].wrote.String())
	assert.Equal(t, int64(13), offset)
}

func TestWorker_SendFileReportsPartialProgressOverTrailingStall(t *testing.T) {
	w, engines := newFakeWorker(t, &fakeTransport{}, nil)

	w.context(5)
	(*engines)[0].acceptCap = BufferSize // exactly one chunk fits

	content := bytes.Repeat([]byte{'f'}, 2*BufferSize)
	offset := int64(0)
	res := w.SendFile(5, bytes.NewReader(content), &offset, int64(len(content)))

	require.Equal(t, StatusData, res.Status)
	assert.Equal(t, BufferSize, res.N)
	assert.Equal(t, int64(BufferSize), offset)
}

func TestWorker_SendFileWouldBlockWhenNothingSent(t *testing.T) {
	w, engines := newFakeWorker(t, &fakeTransport{}, nil)

	w.context(5)
	(*engines)[0].writeErr = engine.ErrWantWrite

	offset := int64(0)
	res := w.SendFile(5, bytes.NewReader([]byte("data")), &offset, 4)

	assert.Equal(t, StatusWouldBlock, res.Status)
	assert.Zero(t, offset)
}

func TestWorker_SendFileSurfacesReadFailure(t *testing.T) {
	w, _ := newFakeWorker(t, &fakeTransport{}, nil)

	offset := int64(0)
	res := w.SendFile(5, failingReaderAt{}, &offset, 10)

	require.Equal(t, StatusError, res.Status)
	assert.Error(t, res.Err)
}

type failingReaderAt struct{}

func (failingReaderAt) ReadAt([]byte, int64) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestWorker_CloseWithoutContextStillClosesDescriptor(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := observability.NewZapLogger(zap.New(core))
	tr := &fakeTransport{}
	w, _ := newFakeWorker(t, tr, logger)

	require.NoError(t, w.Close(42))

	assert.Equal(t, []int{42}, tr.closed)
	assert.Zero(t, w.PoolSize())
	assert.Zero(t, logs.FilterMessage("pool release descriptor mismatch").Len())
}

func TestWorker_CloseNotifiesReleasesAndClosesDescriptor(t *testing.T) {
	tr := &fakeTransport{}
	w, engines := newFakeWorker(t, tr, nil)

	s := w.context(5)
	require.NoError(t, w.Close(5))

	assert.Equal(t, 1, (*engines)[0].notifies)
	assert.Equal(t, 1, (*engines)[0].resets)
	assert.Equal(t, fdFree, s.fd)
	assert.Equal(t, []int{5}, tr.closed)
}

func TestWorkers_PoolsAreIsolated(t *testing.T) {
	tr := &fakeTransport{}
	layer, err := New(testSettings(t),
		WithTransport(tr),
		WithEngineFactory(func(engine.Config, transport.Transport, func() int, observability.Logger) engine.Engine {
			return &fakeEngine{}
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = layer.Close() })

	w1, err := layer.NewWorker(1)
	require.NoError(t, err)
	w2, err := layer.NewWorker(2)
	require.NoError(t, err)
	t.Cleanup(w1.Shutdown)
	t.Cleanup(w2.Shutdown)

	var wg sync.WaitGroup
	var s1, s2 *slot
	wg.Add(2)
	go func() {
		defer wg.Done()
		s1 = w1.context(5)
		for i := 0; i < 100; i++ {
			w1.Write(5, []byte("from w1"))
		}
	}()
	go func() {
		defer wg.Done()
		s2 = w2.context(5)
		for i := 0; i < 100; i++ {
			w2.Write(5, []byte("from w2"))
		}
	}()
	wg.Wait()

	require.NotSame(t, s1, s2)
	assert.Equal(t, 1, w1.PoolSize())
	assert.Equal(t, 1, w2.PoolSize())
	assert.Equal(t, bytes.Repeat([]byte("from w1"), 100), s1.eng.(*fakeEngine).wrote.Bytes())
	assert.Equal(t, bytes.Repeat([]byte("from w2"), 100), s2.eng.(*fakeEngine).wrote.Bytes())
}

func TestWorker_ShutdownDestroysEveryEngine(t *testing.T) {
	w, engines := newFakeWorker(t, &fakeTransport{}, nil)

	w.context(3)
	w.context(4)
	w.Shutdown()

	require.Len(t, *engines, 2)
	for _, fe := range *engines {
		assert.Equal(t, 1, fe.shutdowns)
	}
	assert.Zero(t, w.PoolSize())
}
