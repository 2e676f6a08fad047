package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhook holds the ingestion endpoint metrics. A nil *Webhook records nothing.
type Webhook struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	forwarded *prometheus.CounterVec
	inFlight  prometheus.Gauge
}

// NewWebhook registers the ingestion metrics on reg.
func NewWebhook(reg prometheus.Registerer) *Webhook {
	m := &Webhook{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_requests_total",
				Help: "Webhook requests by provider, method and outcome code.",
			},
			[]string{"provider", "method", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webhook_request_duration_seconds",
				Help:    "Time spent handling webhook requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "method"},
		),
		forwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_orders_forwarded_total",
				Help: "Normalized orders handed to the sink, by provider and result.",
			},
			[]string{"provider", "result"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "webhook_requests_in_flight",
				Help: "Webhook requests currently being processed.",
			},
		),
	}
	reg.MustRegister(m.requests, m.duration, m.forwarded, m.inFlight)
	return m
}

// ObserveRequest records one finished request.
func (m *Webhook) ObserveRequest(provider, method, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(provider, method, code).Inc()
	m.duration.WithLabelValues(provider, method).Observe(elapsed.Seconds())
}

// ObserveForward records one sink call. provider must come from the
// allow-list; payload fields are unbounded and never become labels.
func (m *Webhook) ObserveForward(provider string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.forwarded.WithLabelValues(provider, result).Inc()
}

// InFlight increments the in-flight gauge and returns the matching decrement.
func (m *Webhook) InFlight() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// Monitor holds the health monitor metrics. A nil *Monitor records nothing.
type Monitor struct {
	checks     *prometheus.CounterVec
	retries    prometheus.Counter
	status     *prometheus.GaugeVec
	errorCount prometheus.Gauge
	retryCount prometheus.Gauge
	latency    prometheus.Histogram
}

// NewMonitor registers the monitor metrics on reg.
func NewMonitor(reg prometheus.Registerer) *Monitor {
	m := &Monitor{
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_monitor_checks_total",
				Help: "Health checks by trigger and result.",
			},
			[]string{"trigger", "result"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "webhook_monitor_retries_scheduled_total",
				Help: "Backoff retries scheduled after failed checks.",
			},
		),
		status: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "webhook_monitor_status",
				Help: "1 for the current monitor status, 0 otherwise.",
			},
			[]string{"status"},
		),
		errorCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "webhook_monitor_error_count",
				Help: "Consecutive failed health checks.",
			},
		),
		retryCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "webhook_monitor_retry_count",
				Help: "Backoff retries used in the current failure streak.",
			},
		),
		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webhook_monitor_check_duration_seconds",
				Help:    "Health check round-trip time.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(m.checks, m.retries, m.status, m.errorCount, m.retryCount, m.latency)
	return m
}

// ObserveCheck records one finished health check.
func (m *Monitor) ObserveCheck(trigger string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.checks.WithLabelValues(trigger, result).Inc()
	m.latency.Observe(elapsed.Seconds())
}

// RetryScheduled counts one scheduled backoff retry.
func (m *Monitor) RetryScheduled() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// SetState publishes the current status and counters.
func (m *Monitor) SetState(status string, all []string, errorCount, retryCount int) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == status {
			v = 1
		}
		m.status.WithLabelValues(s).Set(v)
	}
	m.errorCount.Set(float64(errorCount))
	m.retryCount.Set(float64(retryCount))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
