package metrics

import "github.com/prometheus/client_golang/prometheus"

// CartMetrics counts cart persistence outcomes and live providers.
type CartMetrics struct {
	persistFailures *prometheus.CounterVec
	loads           *prometheus.CounterVec
	mutations       *prometheus.CounterVec
	active          prometheus.Gauge
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer, namespace string) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	persistFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "persist_failures_total",
		Help:      "Cart slot reads or writes that failed and were swallowed.",
	}, []string{"op"})
	loads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "loads_total",
		Help:      "Cart loads by the source the initial state came from.",
	}, []string{"source"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "mutations_total",
		Help:      "Cart mutations by operation.",
	}, []string{"op"})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "active_sessions",
		Help:      "Cart providers currently held in memory.",
	})
	reg.MustRegister(persistFailures, loads, mutations, active)
	return &CartMetrics{
		persistFailures: persistFailures,
		loads:           loads,
		mutations:       mutations,
		active:          active,
	}
}

// IncPersistFailure counts a swallowed slot failure for op (load or save).
func (c *CartMetrics) IncPersistFailure(op string) {
	if c == nil || c.persistFailures == nil {
		return
	}
	c.persistFailures.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncLoad counts a provider start by its load source.
func (c *CartMetrics) IncLoad(source string) {
	if c == nil || c.loads == nil {
		return
	}
	c.loads.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncMutation counts one store mutation.
func (c *CartMetrics) IncMutation(op string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(op)).Inc()
}

// SetActive reports the number of providers held by the registry.
func (c *CartMetrics) SetActive(n int) {
	if c == nil || c.active == nil {
		return
	}
	c.active.Set(float64(n))
}
