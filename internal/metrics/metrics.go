package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tickets"

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	registry          *prometheus.Registry
	ordersCreated     prometheus.Counter
	paymentsConfirmed prometheus.Counter
	scans             *prometheus.CounterVec
	sideEffectFails   *prometheus.CounterVec
	gatewayLatency    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders created.",
		}),
		paymentsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_confirmed_total",
			Help:      "Orders moved to COMPLETED.",
		}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scan attempts by result.",
		}, []string{"result"}),
		sideEffectFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Post-commit side effects that failed.",
		}, []string{"effect"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_gateway_seconds",
			Help:      "Payment gateway call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
	}

	m.registry.MustRegister(
		m.ordersCreated,
		m.paymentsConfirmed,
		m.scans,
		m.sideEffectFails,
		m.gatewayLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

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

func (m *Metrics) OrderCreated() {
	if m != nil {
		m.ordersCreated.Inc()
	}
}

func (m *Metrics) PaymentConfirmed() {
	if m != nil {
		m.paymentsConfirmed.Inc()
	}
}

func (m *Metrics) Scan(allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.scans.WithLabelValues(result).Inc()
}

func (m *Metrics) SideEffectFailed(effect string) {
	if m != nil {
		m.sideEffectFails.WithLabelValues(effect).Inc()
	}
}

func (m *Metrics) ObserveGateway(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gatewayLatency.WithLabelValues(operation, outcome).Observe(seconds)
}
