package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and
// records nothing, so components can take one unconditionally.
type Metrics struct {
	registry prometheus.Gatherer

	remoteCallsTotal   *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec
	pollTicksTotal     *prometheus.CounterVec
	transfersTotal     *prometheus.CounterVec
	balanceMinorUnits  prometheus.Gauge
}

// NewMetrics registers the collectors on registry. A nil registry gets a
// fresh one, which keeps tests independent of the default registerer.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		remoteCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartwallet_remote_calls_total",
				Help: "Calls to the custody provider and relay by service, method and status",
			},
			[]string{"service", "method", "status"},
		),
		remoteCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartwallet_remote_call_duration_seconds",
				Help:    "Duration of calls to the custody provider and relay",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"service", "method"},
		),
		pollTicksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartwallet_balance_poll_ticks_total",
				Help: "Balance poll ticks by outcome",
			},
			[]string{"status"},
		),
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartwallet_transfers_total",
				Help: "Transfer attempts by terminal state",
			},
			[]string{"state"},
		),
		balanceMinorUnits: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "smartwallet_balance_minor_units",
				Help: "Last known smart account balance in minor units",
			},
		),
	}
}

func (m *Metrics) RecordRemoteCall(service, method string, err error, seconds float64) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.remoteCallsTotal.WithLabelValues(service, method, status).Inc()
	m.remoteCallDuration.WithLabelValues(service, method).Observe(seconds)
}

func (m *Metrics) RecordPollTick(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.pollTicksTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordTransfer(state string) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(state).Inc()
}

// SetBalance records the balance. Values beyond float64 precision are
// approximated, which is fine for a gauge.
func (m *Metrics) SetBalance(minor float64) {
	if m == nil {
		return
	}
	m.balanceMinorUnits.Set(minor)
}

// Handler serves the registered collectors.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
