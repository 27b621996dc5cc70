package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics records calls to the CasaDeEle REST API.
type UpstreamMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	breaker  *prometheus.GaugeVec
}

// NewUpstreamMetrics registers the upstream metrics on the provided registerer.
func NewUpstreamMetrics(reg prometheus.Registerer, namespace string) *UpstreamMetrics {
	if reg == nil {
		return &UpstreamMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Requests sent to the backend api by path and status.",
	}, []string{"path", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Backend api latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path"})
	breaker := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"name"})
	reg.MustRegister(requests, latency, breaker)
	return &UpstreamMetrics{requests: requests, latency: latency, breaker: breaker}
}

// ObserveRequest records one backend call; status 0 means the request never got an answer.
func (u *UpstreamMetrics) ObserveRequest(path string, status int, elapsed time.Duration) {
	if u == nil || u.requests == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	path = normalizeLabel(path)
	u.requests.WithLabelValues(path, label).Inc()
	u.latency.WithLabelValues(path).Observe(elapsed.Seconds())
}

// SetBreakerState publishes the numeric breaker state.
func (u *UpstreamMetrics) SetBreakerState(name string, state int) {
	if u == nil || u.breaker == nil {
		return
	}
	u.breaker.WithLabelValues(normalizeLabel(name)).Set(float64(state))
}
