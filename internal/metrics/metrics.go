package metrics

import (
    "net/http"
    "strconv"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/prometheus/client_golang/prometheus/promauto"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "afrisens"

// Metrics owns a private registry so tests and the process never share collectors.
type Metrics struct {
    registry *prometheus.Registry

    initiations     *prometheus.CounterVec
    webhooks        *prometheus.CounterVec
    payouts         *prometheus.CounterVec
    requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
    reg := prometheus.NewRegistry()
    reg.MustRegister(
        collectors.NewGoCollector(),
        collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
    )
    factory := promauto.With(reg)

    return &Metrics{
        registry: reg,
        initiations: factory.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "payment_initiations_total",
            Help:      "Payment initiation requests by outcome.",
        }, []string{"outcome"}),
        webhooks: factory.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "webhook_notifications_total",
            Help:      "Provider notifications by confirmation outcome.",
        }, []string{"outcome"}),
        payouts: factory.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "payout_actions_total",
            Help:      "Payout workflow actions by action and result.",
        }, []string{"action", "result"}),
        requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
            Namespace: namespace,
            Name:      "http_request_duration_seconds",
            Help:      "HTTP request latency.",
            Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5, 15},
        }, []string{"method", "route", "status"}),
    }
}

func (m *Metrics) Initiation(outcome string) {
    m.initiations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Webhook(outcome string) {
    m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Payout(action, result string) {
    m.payouts.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
    m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
    return m.registry
}

func (m *Metrics) Handler() http.Handler {
    return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
