package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "verto"

// Metrics groups the service's collectors. A nil *Metrics records nothing, so components can
// be built without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	stockMutations  *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	httpRequests    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stockMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "inventory", Name: "stock_mutations_total",
			Help: "Committed stock mutations by audit action.",
		}, []string{"action"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "payment", Name: "settlements_total",
			Help: "Payment reconciliations by resulting status and whether side effects ran.",
		}, []string{"status", "applied"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "requests_total",
			Help: "Payment gateway calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "request_duration_seconds",
			Help: "Payment gateway call latency.", Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help: "HTTP request latency by route and status.", Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stockMutations,
		m.settlements,
		m.gatewayRequests,
		m.gatewayLatency,
		m.httpRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) StockMutation(action string) {
	if m == nil {
		return
	}
	m.stockMutations.WithLabelValues(action).Inc()
}

func (m *Metrics) Settlement(status string, applied bool) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(status, strconv.FormatBool(applied)).Inc()
}

func (m *Metrics) GatewayCall(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gatewayRequests.WithLabelValues(op, outcome).Inc()
	m.gatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
