// Package metrics exposes Prometheus metrics for alert delivery.
//
// Metric naming follows Prometheus conventions:
//   - alert_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alert-dispatch/pkg/alert"
)

// Metrics records dispatch results. It implements alert.Observer.
type Metrics struct {
	registry *prometheus.Registry

	ChannelTotal    *prometheus.CounterVec
	ChannelDuration *prometheus.HistogramVec
	DispatchTotal   *prometheus.CounterVec
	DispatchSeconds prometheus.Histogram
	StateChanges    *prometheus.CounterVec
}

// New creates the metrics and registers them on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ChannelTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_channel_sends_total",
				Help: "Total channel deliveries by alert type and result.",
			},
			[]string{"type", "success"},
		),
		ChannelDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alert_channel_duration_seconds",
				Help:    "Duration of a single channel delivery.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_dispatches_total",
				Help: "Total dispatches across all configured channels by result.",
			},
			[]string{"success"},
		),
		DispatchSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "alert_dispatch_duration_seconds",
				Help:    "Duration of a full dispatch.",
				Buckets: prometheus.DefBuckets,
			},
		),
		StateChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_application_state_changes_total",
				Help: "Application state transitions by target state.",
			},
			[]string{"state"},
		),
	}

	m.registry.MustRegister(
		m.ChannelTotal,
		m.ChannelDuration,
		m.DispatchTotal,
		m.DispatchSeconds,
		m.StateChanges,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveChannel records one channel delivery
func (m *Metrics) ObserveChannel(t alert.Type, success bool, elapsed time.Duration) {
	m.ChannelTotal.WithLabelValues(t.String(), strconv.FormatBool(success)).Inc()
	m.ChannelDuration.WithLabelValues(t.String()).Observe(elapsed.Seconds())
}

// ObserveDispatch records one full dispatch
func (m *Metrics) ObserveDispatch(success bool, elapsed time.Duration) {
	m.DispatchTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
	m.DispatchSeconds.Observe(elapsed.Seconds())
}

// ObserveState records an application state transition
func (m *Metrics) ObserveState(state string) {
	m.StateChanges.WithLabelValues(state).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
