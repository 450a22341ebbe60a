package tlsterm

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/go-tlsterm/tlsterm/config"
	"github.com/go-tlsterm/tlsterm/credentials"
	"github.com/go-tlsterm/tlsterm/engine"
	"github.com/go-tlsterm/tlsterm/entropy"
	"github.com/go-tlsterm/tlsterm/observability"
	"github.com/go-tlsterm/tlsterm/session"
	"github.com/go-tlsterm/tlsterm/transport"
)

// EngineFactory builds the protocol engine for one connection context.
// fd yields the context's currently bound descriptor, so a recycled
// context drives the right socket after every rebind.
type EngineFactory func(cfg engine.Config, tr transport.Transport, fd func() int, logger observability.Logger) engine.Engine

// Layer is the process-wide state: credentials, entropy, the session
// store, and everything workers share. Construct it once at startup,
// before any worker runs; it is read-only afterwards.
type Layer struct {
	settings *config.Settings
	logger   observability.Logger
	metrics  *Metrics
	tr       transport.Transport
	factory  EngineFactory

	creds   *credentials.Credentials
	entropy *entropy.Source
	store   session.Store
	resumer *session.Resumer
}

// Option customizes Layer construction.
type Option func(*Layer)

// WithLogger sets the layer logger. The default discards everything.
func WithLogger(logger observability.Logger) Option {
	return func(l *Layer) { l.logger = logger }
}

// WithTransport sets the socket primitives. The default is the operating
// system's non-blocking descriptor calls.
func WithTransport(tr transport.Transport) Option {
	return func(l *Layer) { l.tr = tr }
}

// WithMetrics attaches Prometheus metrics. The default records nothing.
func WithMetrics(m *Metrics) Option {
	return func(l *Layer) { l.metrics = m }
}

// WithEngineFactory overrides how connection engines are built.
func WithEngineFactory(f EngineFactory) Option {
	return func(l *Layer) { l.factory = f }
}

// WithSessionStore overrides the resumption store the settings would
// otherwise select.
func WithSessionStore(store session.Store) Option {
	return func(l *Layer) { l.store = store }
}

// New loads credentials and shared crypto state per the settings and
// returns the layer the host creates workers from.
func New(settings *config.Settings, opts ...Option) (*Layer, error) {
	if settings == nil {
		return nil, fmt.Errorf("tlsterm: nil settings")
	}

	l := &Layer{
		settings: settings,
		logger:   observability.NopLogger(),
		tr:       transport.OS(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.factory == nil {
		l.factory = func(cfg engine.Config, tr transport.Transport, fd func() int, logger observability.Logger) engine.Engine {
			return engine.NewTLS(cfg, tr, fd, logger)
		}
	}

	creds, err := credentials.Load(settings, l.logger)
	if err != nil {
		return nil, err
	}
	l.creds = creds
	l.entropy = entropy.NewSource()

	if l.store == nil {
		store, err := openSessionStore(settings)
		if err != nil {
			return nil, err
		}
		l.store = store
	}
	if l.store != nil {
		l.resumer = session.NewResumer(l.store, l.entropy, l.logger)
	}

	l.logger.Info("tls layer initialized",
		observability.Bool("builtin_certificate", creds.UsingBuiltinCertificate()),
		observability.Int("dh_bits", creds.DHParams().BitLen()),
		observability.String("session_backend", settings.SessionCache.Backend),
	)
	return l, nil
}

func openSessionStore(settings *config.Settings) (session.Store, error) {
	sc := settings.SessionCache
	switch sc.Backend {
	case config.SessionBackendDisabled:
		return nil, nil
	case config.SessionBackendRedis:
		return session.NewRedis(context.Background(), sc.Redis, sc.TTL.Duration())
	default:
		return session.NewMemory(sc.Capacity, sc.TTL.Duration()), nil
	}
}

// NewWorker creates one worker's private state: its RNG, its copy of the
// key material, and an empty connection-context pool. A seeding or key
// failure aborts the worker; one must never run with a weak RNG.
func (l *Layer) NewWorker(id int) (*Worker, error) {
	rng, err := entropy.NewRNG(l.entropy)
	if err != nil {
		return nil, err
	}
	keyPEM, err := l.creds.LoadWorkerKey(l.settings.RSAKeyFile, l.logger)
	if err != nil {
		return nil, err
	}
	cert, err := tls.X509KeyPair(l.creds.CertChainPEM(), keyPEM)
	if err != nil {
		return nil, credentials.NewConfigErrorWithCause(l.settings.RSAKeyFile, "key does not match certificate", err)
	}

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		Rand:         &lockedRand{r: rng},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.NoClientCert,
	}
	if l.resumer != nil {
		tlsConf.WrapSession = l.resumer.Wrap
		tlsConf.UnwrapSession = l.resumer.Unwrap
	}

	logger := l.logger.With(observability.Int("worker", id))
	engCfg := engine.Config{
		TLS:           tlsConf,
		DH:            l.creds.DHParams(),
		MaxRecordSize: BufferSize,
	}
	worker := &Worker{
		id:      strconv.Itoa(id),
		logger:  logger,
		tr:      l.tr,
		metrics: l.metrics,
	}
	worker.pool = newPool(func(fd func() int) engine.Engine {
		return l.factory(engCfg, l.tr, fd, logger)
	}, logger)

	logger.Info("worker initialized")
	return worker, nil
}

// Resumer exposes the session-resumption component, mainly for its
// statistics. Nil when the cache backend is disabled.
func (l *Layer) Resumer() *session.Resumer { return l.resumer }

// Credentials exposes the loaded credential material.
func (l *Layer) Credentials() *credentials.Credentials { return l.creds }

// Close releases the process-wide state. Workers must be shut down
// first.
func (l *Layer) Close() error {
	var firstErr error
	if l.store != nil {
		if err := l.store.Close(); err != nil {
			firstErr = err
		}
	}
	_ = l.logger.Sync()
	return firstErr
}

// lockedRand serializes the worker RNG. Connections on one worker
// handshake concurrently inside the engine, and the generator mutates
// its keystream state on every read.
type lockedRand struct {
	mu sync.Mutex
	r  io.Reader
}

func (lr *lockedRand) Read(p []byte) (int, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.r.Read(p)
}
