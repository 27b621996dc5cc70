package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics tracks the checkout state machine.
type CheckoutMetrics struct {
	transitions *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer, namespace string) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "transitions_total",
		Help:      "Checkout state transitions.",
	}, []string{"from", "to"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "outcomes_total",
		Help:      "Checkout attempts by final state.",
	}, []string{"state"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "attempt_duration_seconds",
		Help:      "Wall time from proceed to the final state.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800},
	}, []string{"state"})
	reg.MustRegister(transitions, outcomes, duration)
	return &CheckoutMetrics{
		transitions: transitions,
		outcomes:    outcomes,
		duration:    duration,
	}
}

// IncTransition counts one state change.
func (c *CheckoutMetrics) IncTransition(from, to string) {
	if c == nil || c.transitions == nil {
		return
	}
	c.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// ObserveOutcome records the final state of an attempt and how long it took.
func (c *CheckoutMetrics) ObserveOutcome(state string, elapsed time.Duration) {
	if c == nil || c.outcomes == nil {
		return
	}
	state = normalizeLabel(state)
	c.outcomes.WithLabelValues(state).Inc()
	c.duration.WithLabelValues(state).Observe(elapsed.Seconds())
}
