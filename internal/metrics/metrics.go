// Package metrics collects Prometheus metrics for the gateway. All metrics
// live in a private registry exposed through Handler, so tests and embedded
// uses never fight over the global default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stackgate"

// Metrics is the gateway's metric set. The zero value is a no-op recorder,
// which keeps test wiring short.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	engineCalls     *prometheus.CounterVec
	engineDuration  *prometheus.HistogramVec
	faults          *prometheus.CounterVec
	inFlight        prometheus.Gauge

	registry *prometheus.Registry
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"action", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		engineCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_calls_total",
				Help:      "Total number of engine RPC calls",
			},
			[]string{"method", "outcome"},
		),
		engineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_call_duration_seconds",
				Help:      "Engine RPC duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "faults_total",
				Help:      "Total number of fault responses by code",
			},
			[]string{"code"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Current number of requests being served",
			},
		),
	}

	registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.engineCalls,
		m.engineDuration,
		m.faults,
		m.inFlight,
	)

	return m
}

// RecordRequest records one finished API request.
func (m *Metrics) RecordRequest(action, code string, duration time.Duration) {
	if m.requests == nil {
		return
	}
	m.requests.WithLabelValues(action, code).Inc()
	m.requestDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordFault counts one fault response by code.
func (m *Metrics) RecordFault(code string) {
	if m.faults == nil {
		return
	}
	m.faults.WithLabelValues(code).Inc()
}

// ObserveEngineCall records one engine RPC. It satisfies the engine client's
// observer hook.
func (m *Metrics) ObserveEngineCall(method, outcome string, elapsed time.Duration) {
	if m.engineCalls == nil {
		return
	}
	m.engineCalls.WithLabelValues(method, outcome).Inc()
	m.engineDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RequestStarted and RequestDone track the in-flight gauge.
func (m *Metrics) RequestStarted() {
	if m.inFlight == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) RequestDone() {
	if m.inFlight == nil {
		return
	}
	m.inFlight.Dec()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
