// pkg/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's Prometheus collectors. All methods are safe
// on a nil receiver so wiring stays optional in tests.
type Metrics struct {
	checksTotal     *prometheus.CounterVec
	claimsTotal     *prometheus.CounterVec
	releasesTotal   prometheus.Counter
	webhookTotal    *prometheus.CounterVec
	authTotal       *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	claimsActive    prometheus.Gauge
}

func New(service string) *Metrics {
	m := &Metrics{
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "subdomain_checks_total",
			Help:      "Availability checks by outcome reason.",
		}, []string{"result"}),
		claimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "claims_total",
			Help:      "Claim attempts by outcome.",
		}, []string{"outcome"}),
		releasesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: service,
			Name:      "claim_releases_total",
			Help:      "Claims released by subscription downgrades.",
		}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "webhook_events_total",
			Help:      "Subscription webhook deliveries by result.",
		}, []string{"result"}),
		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "auth_decisions_total",
			Help:      "Bearer token decisions by outcome.",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
		claimsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: service,
			Name:      "claims_active",
			Help:      "Claims currently held.",
		}),
	}
	register(m.checksTotal, m.claimsTotal, m.releasesTotal, m.webhookTotal, m.authTotal, m.requestDuration, m.claimsActive)
	return m
}

func register(cs ...prometheus.Collector) {
	for _, c := range cs {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}

// Handler serves the default registry for GET /metrics.
func Handler() http.Handler { return promhttp.Handler() }

func (m *Metrics) CheckResult(result string) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ClaimOutcome(outcome string) {
	if m == nil {
		return
	}
	m.claimsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ClaimsReleased(n int) {
	if m == nil {
		return
	}
	m.releasesTotal.Add(float64(n))
}

func (m *Metrics) WebhookResult(result string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) AuthDecision(outcome string) {
	if m == nil {
		return
	}
	m.authTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRequest(route, method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, method, code).Observe(d.Seconds())
}

func (m *Metrics) SetActiveClaims(n int) {
	if m == nil {
		return
	}
	m.claimsActive.Set(float64(n))
}
