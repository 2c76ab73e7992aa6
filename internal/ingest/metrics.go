package ingest

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors an ingestor reports through.
type Metrics struct {
	Latency     *prometheus.HistogramVec
	Reconnects  *prometheus.CounterVec
	EventsTotal *prometheus.CounterVec
	Dropped     *prometheus.CounterVec
}

// NewMetrics builds and registers the ingestor's collectors against reg.
// A fresh prometheus.Registry is expected per process (see orchestrator.New)
// so tests can construct isolated Metrics without colliding with the
// global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptolake_ingest_latency_ms",
				Help:    "ts_recv - ts_event in milliseconds, by exchange and symbol",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"exchange", "symbol"},
		),
		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptolake_ingest_reconnects_total",
				Help: "Total websocket reconnect attempts, by exchange",
			},
			[]string{"exchange"},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptolake_ingest_events_total",
				Help: "Total canonical events decoded, by exchange and stream kind",
			},
			[]string{"exchange", "stream_kind"},
		),
		Dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptolake_ingest_dropped_total",
				Help: "Total events dropped, by exchange and reason",
			},
			[]string{"exchange", "reason"},
		),
	}
	reg.MustRegister(m.Latency, m.Reconnects, m.EventsTotal, m.Dropped)
	return m
}
