package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "auth"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	operations   *prometheus.CounterVec
	emails       *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	invalidated  prometheus.Counter
}

// NewRegistry returns a registry preloaded with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Auth operations by name and outcome kind.",
		}, []string{"operation", "result"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Outbound emails by template and outcome.",
		}, []string{"template", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_invalidated_total",
			Help:      "Session ledger rows flipped to invalid.",
		}),
	}

	reg.MustRegister(m.operations, m.emails, m.httpDuration, m.invalidated)

	return m
}

func (m *Metrics) Operation(name, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, result).Inc()
}

func (m *Metrics) Email(template string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.emails.WithLabelValues(template, result).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, statusClass(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) SessionsInvalidated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidated.Add(float64(n))
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
