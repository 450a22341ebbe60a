package tlsterm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "tlsterm"
	metricsSubsystem = "layer"
)

// Metrics holds the layer's Prometheus metrics. Labels: "worker" is the
// owning worker's identity, "op" the adapter operation name.
type Metrics struct {
	PoolSize          *prometheus.GaugeVec
	PoolReusesTotal   *prometheus.CounterVec
	BytesReadTotal    *prometheus.CounterVec
	BytesWrittenTotal *prometheus.CounterVec
	WouldBlockTotal   *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	ClosesTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers the layer metrics. A nil registerer
// falls back to the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "pool_size",
				Help:      "Connection contexts held by each worker's pool",
			},
			[]string{"worker"},
		),
		PoolReusesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "pool_reuses_total",
				Help:      "Connection contexts recycled instead of allocated",
			},
			[]string{"worker"},
		),
		BytesReadTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "bytes_read_total",
				Help:      "Plaintext bytes delivered to the host",
			},
			[]string{"worker"},
		),
		BytesWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "bytes_written_total",
				Help:      "Plaintext bytes accepted from the host",
			},
			[]string{"worker"},
		),
		WouldBlockTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "would_block_total",
				Help:      "Operations deferred until descriptor readiness",
			},
			[]string{"worker", "op"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "errors_total",
				Help:      "Operations failed with a hard connection error",
			},
			[]string{"worker", "op"},
		),
		ClosesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "closes_total",
				Help:      "Descriptors closed through the layer",
			},
			[]string{"worker"},
		),
	}
}
