package policy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	policyEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_policy_evaluations_total",
			Help: "Total number of policy evaluations",
		},
		[]string{"decision", "mode"},
	)

	policyEvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_policy_evaluation_duration_seconds",
			Help:    "Time spent evaluating policies",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
		[]string{"mode"},
	)

	policyErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_policy_errors_total",
			Help: "Total number of policy evaluation errors",
		},
		[]string{"error_type", "mode"},
	)

	policyDryRunDivergence = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_policy_dry_run_divergence_total",
			Help: "Requests allowed in dry-run that enforce mode would deny",
		},
	)

	policyCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_policy_cache_lookups_total",
			Help: "Policy decision cache lookups",
		},
		[]string{"mode", "result"},
	)

	policyCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_policy_cache_size",
			Help: "Entries in the policy decision cache",
		},
	)

	policyVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_policy_version_info",
			Help: "Loaded policy version (value is always 1)",
		},
		[]string{"version"},
	)
)

func recordEvaluation(d *Decision, mode string, seconds float64) {
	label := "allow"
	if !d.Allow {
		label = "deny"
	}
	policyEvaluations.WithLabelValues(label, mode).Inc()
	policyEvaluationDuration.WithLabelValues(mode).Observe(seconds)
	if d.Allow && d.Denied {
		policyDryRunDivergence.Inc()
	}
}

func recordCache(mode string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	policyCacheLookups.WithLabelValues(mode, result).Inc()
}

func recordError(errorType, mode string) {
	policyErrors.WithLabelValues(errorType, mode).Inc()
}

func recordPolicyVersion(version string) {
	policyVersion.WithLabelValues(version).Set(1)
}
