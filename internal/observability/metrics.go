// Package observability holds the tunnel's Prometheus instruments.
//
// Every Metrics value owns its own registry so that several servers (or
// tests) in one process never collide on registration.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sectun"

// Close reasons used as the "reason" label of sessions_closed_total.
const (
	ReasonPeerClosed = "peer_closed"
	ReasonStopped    = "stopped"
	ReasonIdle       = "idle"
	ReasonTransport  = "transport"
	ReasonDuplicate  = "duplicate"
)

type Metrics struct {
	registry *prometheus.Registry

	activeSessions    prometheus.Gauge
	sessionsOpened    prometheus.Counter
	sessionsClosed    *prometheus.CounterVec
	handshakeFailures prometheus.Counter
	acceptErrors      prometheus.Counter
	keepAlives        *prometheus.CounterVec
	payloads          *prometheus.CounterVec
	payloadBytes      *prometheus.CounterVec
	cipherFailures    *prometheus.CounterVec
	handlerDuration   prometheus.Histogram
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewMetrics registers a fresh instrument set. withRuntime adds the Go and
// process collectors, which only make sense once per process.
func NewMetrics(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_sessions",
			Help:      "Sessions currently registered.",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "sessions_opened_total",
			Help:      "Sessions that completed the handshake and were registered.",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "sessions_closed_total",
			Help:      "Sessions closed, by reason.",
		}, []string{"reason"}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "handshake_failures_total",
			Help:      "Accepted connections whose TLS handshake failed.",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "accept_errors_total",
			Help:      "Listener accept faults other than timeouts.",
		}),
		keepAlives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keepalives_total",
			Help:      "Keep-alive control frames, by side and direction.",
		}, []string{"side", "direction"}),
		payloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_total",
			Help:      "Encrypted payloads, by side and direction.",
		}, []string{"side", "direction"}),
		payloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Plaintext payload bytes, by side and direction.",
		}, []string{"side", "direction"}),
		cipherFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cipher_failures_total",
			Help:      "Payloads that failed to encrypt or decrypt, by side.",
		}, []string{"side"}),
		handlerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "payload_handler_duration_seconds",
			Help:      "Time spent in the payload handler per payload.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "http_requests_total",
			Help:      "Admin HTTP requests, by method, route and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "http_request_duration_seconds",
			Help:      "Admin HTTP request latency, by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	m.registry.MustRegister(
		m.activeSessions,
		m.sessionsOpened,
		m.sessionsClosed,
		m.handshakeFailures,
		m.acceptErrors,
		m.keepAlives,
		m.payloads,
		m.payloadBytes,
		m.cipherFailures,
		m.handlerDuration,
		m.httpRequests,
		m.httpDuration,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The recorders below are safe on a nil *Metrics so callers never need to
// guard optional instrumentation.

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.sessionsClosed.WithLabelValues(reason).Inc()
	m.activeSessions.Dec()
}

// SessionRejected counts a registration that never became active.
func (m *Metrics) SessionRejected(reason string) {
	if m == nil {
		return
	}
	m.sessionsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) HandshakeFailed() {
	if m == nil {
		return
	}
	m.handshakeFailures.Inc()
}

func (m *Metrics) AcceptError() {
	if m == nil {
		return
	}
	m.acceptErrors.Inc()
}

func (m *Metrics) KeepAlive(side, direction string) {
	if m == nil {
		return
	}
	m.keepAlives.WithLabelValues(side, direction).Inc()
}

func (m *Metrics) Payload(side, direction string, size int) {
	if m == nil {
		return
	}
	m.payloads.WithLabelValues(side, direction).Inc()
	m.payloadBytes.WithLabelValues(side, direction).Add(float64(size))
}

func (m *Metrics) CipherFailure(side string) {
	if m == nil {
		return
	}
	m.cipherFailures.WithLabelValues(side).Inc()
}

func (m *Metrics) ObserveHandler(d time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Label values for side and direction.
const (
	SideServer = "server"
	SideClient = "client"

	DirectionIn  = "in"
	DirectionOut = "out"
)
