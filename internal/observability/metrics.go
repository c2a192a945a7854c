package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for the transfer loops. Collectors
// are registered on a private registry so that two loops in one test binary
// do not collide.
type Metrics struct {
	registry *prometheus.Registry

	RecordsSentTotal     prometheus.Counter
	RecordsReceivedTotal prometheus.Counter
	RecordsDroppedTotal  *prometheus.CounterVec
	SendRetriesTotal     prometheus.Counter
	ReconnectsTotal      prometheus.Counter
	LinkPresent          prometheus.Gauge
	BytesTotal           *prometheus.CounterVec
	CryptoOpDuration     prometheus.Histogram
}

// NewMetrics creates and registers all transfer metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := prometheus.WrapRegistererWith(nil, registry)

	m := &Metrics{
		registry: registry,

		RecordsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coldstream_records_sent_total",
			Help: "Records confirmed written against a healthy link",
		}),

		RecordsReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coldstream_records_received_total",
			Help: "Records decoded, authenticated and yielded",
		}),

		RecordsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coldstream_records_dropped_total",
			Help: "Lines discarded by the receiver",
		}, []string{"reason"}),

		SendRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coldstream_send_retries_total",
			Help: "Record writes retried after a link fault",
		}),

		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coldstream_link_reconnects_total",
			Help: "Physical connections opened after the first",
		}),

		LinkPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coldstream_link_present",
			Help: "Whether the readiness handshake currently holds (0/1)",
		}),

		BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coldstream_bytes_total",
			Help: "Raw bytes moved across the link",
		}, []string{"direction"}),

		CryptoOpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coldstream_crypto_op_duration_seconds",
			Help:    "Seal/open latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
	}

	factory.MustRegister(
		m.RecordsSentTotal,
		m.RecordsReceivedTotal,
		m.RecordsDroppedTotal,
		m.SendRetriesTotal,
		m.ReconnectsTotal,
		m.LinkPresent,
		m.BytesTotal,
		m.CryptoOpDuration,
	)

	return m
}

// RecordSent updates counters for one confirmed record write.
func (m *Metrics) RecordSent(bytes int) {
	m.RecordsSentTotal.Inc()
	m.BytesTotal.WithLabelValues("sent").Add(float64(bytes))
}

// RecordReceived updates counters for one yielded record.
func (m *Metrics) RecordReceived(bytes int) {
	m.RecordsReceivedTotal.Inc()
	m.BytesTotal.WithLabelValues("received").Add(float64(bytes))
}

// RecordDropped counts a discarded line by reason.
func (m *Metrics) RecordDropped(reason string) {
	m.RecordsDroppedTotal.WithLabelValues(reason).Inc()
}

// SetLinkPresent mirrors the health monitor into the presence gauge.
func (m *Metrics) SetLinkPresent(present bool) {
	if present {
		m.LinkPresent.Set(1)
	} else {
		m.LinkPresent.Set(0)
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
