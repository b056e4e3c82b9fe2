package cards

import "github.com/prometheus/client_golang/prometheus"

var (
	cardsGenerated       prometheus.Counter
	regenerationFailures prometheus.Counter
)

func newCollectors() (prometheus.Counter, prometheus.Counter) {
	gen := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loom_cards_generated_total",
		Help: "Number of cards written by regeneration",
	})
	fail := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loom_card_regeneration_failures_total",
		Help: "Number of failed card regenerations",
	})
	return gen, fail
}

func init() {
	cardsGenerated, regenerationFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers card metrics on reg, defaulting to
// prometheus.DefaultRegisterer.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(cardsGenerated, regenerationFailures)
}

// ResetMetrics recreates the collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	cardsGenerated, regenerationFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
