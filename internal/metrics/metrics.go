// Package metrics exposes the monitor's Prometheus instrumentation.
// One Metrics value is created at startup and threaded into the
// components that report through it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the monitor's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	FeedState         prometheus.Gauge
	FeedReconnects    prometheus.Counter
	MessagesReceived  *prometheus.CounterVec
	IntegrityDiscards prometheus.Counter
	TradesApplied     prometheus.Counter
	DuplicatesDropped prometheus.Counter
	Evaluations       prometheus.Counter
	BreachStatus      *prometheus.GaugeVec
	WriterFlushes     *prometheus.CounterVec
	WriterErrors      *prometheus.CounterVec
}

// New creates the collector set on a fresh registry.
func New(instance string) *Metrics {
	labels := prometheus.Labels{"instance_id": instance}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FeedState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "monitor_feed_connected",
			Help:        "1 when the stream connection is established, 0 otherwise.",
			ConstLabels: labels,
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "monitor_feed_reconnects_total",
			Help:        "Stream reconnection attempts.",
			ConstLabels: labels,
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "monitor_messages_received_total",
			Help:        "Raw messages received from the feed, by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		IntegrityDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "monitor_integrity_discards_total",
			Help:        "Frames dropped for checksum failure.",
			ConstLabels: labels,
		}),
		TradesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "monitor_trades_applied_total",
			Help:        "Execution reports folded into the portfolio book.",
			ConstLabels: labels,
		}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "monitor_trade_duplicates_total",
			Help:        "Replayed execution reports rejected by the dedup window.",
			ConstLabels: labels,
		}),
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "monitor_evaluations_total",
			Help:        "Exposure evaluations performed.",
			ConstLabels: labels,
		}),
		BreachStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "monitor_breach_status",
			Help:        "Current status per ticker: 0 safe, 1 warning, 2 breach.",
			ConstLabels: labels,
		}, []string{"ticker"}),
		WriterFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "monitor_writer_flushes_total",
			Help:        "Batch flushes per writer.",
			ConstLabels: labels,
		}, []string{"writer"}),
		WriterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "monitor_writer_errors_total",
			Help:        "Failed batch flushes per writer.",
			ConstLabels: labels,
		}, []string{"writer"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FeedState,
		m.FeedReconnects,
		m.MessagesReceived,
		m.IntegrityDiscards,
		m.TradesApplied,
		m.DuplicatesDropped,
		m.Evaluations,
		m.BreachStatus,
		m.WriterFlushes,
		m.WriterErrors,
	)

	return m
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
