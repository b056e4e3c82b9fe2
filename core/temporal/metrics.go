package temporal

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/loom/core/model"
)

var (
	ruleMutations *prometheus.CounterVec
	hookFailures  *prometheus.CounterVec
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec) {
	mut := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_rule_mutations_total",
			Help: "Intent and exception mutations by outcome",
		},
		[]string{"entity", "action", "outcome"},
	)
	hooks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_post_commit_hook_failures_total",
			Help: "Best-effort post-commit hooks that failed",
		},
		[]string{"hook"},
	)
	return mut, hooks
}

func init() {
	ruleMutations, hookFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers rule metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(ruleMutations, hookFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	ruleMutations, hookFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case model.IsValidation(err):
		return "invalid"
	case model.IsConflict(err):
		return "conflict"
	case model.IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}

func recordMutation(entity, action string, err error) {
	ruleMutations.WithLabelValues(entity, action, outcome(err)).Inc()
}
