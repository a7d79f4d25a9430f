// ABOUTME: Prometheus collectors for sessions, handshakes and ring health
// ABOUTME: All methods are no-ops on a nil *Metrics
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "netjam"

// Ring labels
const (
	RingInbound  = "inbound"
	RingOutbound = "outbound"
)

// Packet direction labels
const (
	DirectionRx = "rx"
	DirectionTx = "tx"
)

// Metrics holds every netjam collector
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive   prometheus.Gauge
	sessionsReleased *prometheus.CounterVec
	handshakes       *prometheus.CounterVec
	packets          *prometheus.CounterVec
	underruns        *prometheus.CounterVec
	overflows        *prometheus.CounterVec
	peerTimeouts     prometheus.Counter
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently streaming",
		}),
		sessionsReleased: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_released_total",
			Help:      "Sessions released back to the pool, by reason",
		}, []string{"reason"}),
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Handshakes answered by the listener, by result",
		}, []string{"result"}),
		packets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Audio datagrams moved, by direction",
		}, []string{"direction"}),
		underruns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ring_underruns_total",
			Help:      "Non-blocking reads that found a ring empty and produced silence",
		}, []string{"ring"}),
		overflows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ring_overflows_total",
			Help:      "Non-blocking writes dropped because a ring was full",
		}, []string{"ring"}),
		peerTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_timeouts_total",
			Help:      "Sessions ended because the peer went silent",
		}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionReleased(reason string) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionsReleased.WithLabelValues(reason).Inc()
}

func (m *Metrics) Handshake(result string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
}

func (m *Metrics) AddPackets(direction string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.packets.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) AddUnderruns(ring string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.underruns.WithLabelValues(ring).Add(float64(n))
}

func (m *Metrics) AddOverflows(ring string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.overflows.WithLabelValues(ring).Add(float64(n))
}

func (m *Metrics) PeerTimeout() {
	if m == nil {
		return
	}
	m.peerTimeouts.Inc()
}
