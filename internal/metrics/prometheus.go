package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMirror holds live Prometheus collectors mirroring an Aggregator's
// counters, so a long-running simulation can be scraped mid-run. It
// registers on its own isolated registry rather than the global default
// one, the same convention the teacher's pkg/p2pnet/metrics.go uses.
type PromMirror struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec // by source
	RequestLatency  *prometheus.HistogramVec
	UploadsServed   *prometheus.CounterVec // by peerId
	OriginActive    prometheus.Gauge
	OriginQueueLen  prometheus.Gauge
	PeersConnected  prometheus.Gauge
	BuildInfo       *prometheus.GaugeVec
}

// NewPromMirror creates a PromMirror with every collector registered.
func NewPromMirror(version string) *PromMirror {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &PromMirror{
		Registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmsim_requests_total",
				Help: "Total requests resolved, by source.",
			},
			[]string{"source"},
		),
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmsim_request_latency_ms",
				Help:    "Request latency in milliseconds, by source.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1ms to ~16s
			},
			[]string{"source"},
		),
		UploadsServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmsim_uploads_served_total",
				Help: "Chunks successfully served, by peer.",
			},
			[]string{"peer_id"},
		),
		OriginActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swarmsim_origin_active",
			Help: "Requests currently being served by the origin model.",
		}),
		OriginQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swarmsim_origin_queue_length",
			Help: "Requests currently waiting in the origin model's FIFO queue.",
		}),
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swarmsim_peers_connected",
			Help: "Peers currently connected to the swarm.",
		}),
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swarmsim_info",
				Help: "Build information for the running simulator.",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestLatency,
		m.UploadsServed,
		m.OriginActive,
		m.OriginQueueLen,
		m.PeersConnected,
		m.BuildInfo,
	)
	m.BuildInfo.WithLabelValues(version).Set(1)

	return m
}

// Observe mirrors one completed request into the live collectors.
func (m *PromMirror) Observe(r RequestRecord) {
	m.RequestsTotal.WithLabelValues(string(r.Source)).Inc()
	m.RequestLatency.WithLabelValues(string(r.Source)).Observe(r.LatencyMs)
}

// Handler serves the mirrored metrics for scraping.
func (m *PromMirror) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
