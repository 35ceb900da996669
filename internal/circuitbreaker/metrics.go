package circuitbreaker

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	breakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_circuit_breaker_requests_total",
			Help: "Requests routed through a circuit breaker",
		},
		[]string{"name", "state", "result"},
	)

	breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// instrument chains a metrics hook onto the breaker's state change callback.
func instrument(cfg Config) Config {
	prev := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to State) {
		if prev != nil {
			prev(name, from, to)
		}
		breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		breakerState.WithLabelValues(name).Set(float64(to))
	}
	return cfg
}

// guard runs fn through the breaker and records the outcome.
func guard(ctx context.Context, b *Breaker, fn func() error) error {
	var inner error
	ran := false
	err := b.Execute(ctx, func() error {
		ran = true
		inner = fn()
		return inner
	})

	result := "success"
	switch {
	case !ran:
		result = "rejected"
	case inner != nil:
		result = "failure"
	}
	breakerRequests.WithLabelValues(b.name, b.State().String(), result).Inc()
	return err
}
