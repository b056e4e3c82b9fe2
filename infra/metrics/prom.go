package metrics

import (
	"errors"

	coremetrics "github.com/kilianp07/loom/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records scheduling events in Prometheus metrics.
type PromSink struct {
	rolls      *prometheus.CounterVec
	rollTime   prometheus.Histogram
	margin     prometheus.Gauge
	revenue    prometheus.Gauge
	instances  *prometheus.CounterVec
	shortfalls *prometheus.CounterVec
	splits     *prometheus.CounterVec
	cards      *prometheus.CounterVec
	hooks      *prometheus.CounterVec
}

// NewPromSink registers the sink's metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Metrics
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		rolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_rolls_total",
			Help: "Rolls over the window by trigger",
		}, []string{"trigger"}),
		rollTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "loom_roll_duration_seconds",
			Help:    "Wall time of a roll over the window",
			Buckets: prometheus.DefBuckets,
		}),
		margin: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_roll_mean_margin",
			Help: "Mean margin of the instances allocated by the last roll",
		}),
		revenue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_roll_revenue",
			Help: "Revenue of the instances allocated by the last roll",
		}),
		instances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_instances_processed_total",
			Help: "Program dates handled by the pipeline by outcome",
		}, []string{"outcome"}),
		shortfalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_shortfall_events_total",
			Help: "Shortfall warnings by resource",
		}, []string{"resource"}),
		splits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_route_split_events_total",
			Help: "Route splits by direction",
		}, []string{"direction"}),
		cards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_cards_total",
			Help: "Generated cards by type",
		}, []string{"type"}),
		hooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_hook_failure_events_total",
			Help: "Failed post-commit hooks",
		}, []string{"hook"}),
	}
	var err error
	if s.rolls, err = register(reg, s.rolls); err != nil {
		return nil, err
	}
	if s.rollTime, err = register(reg, s.rollTime); err != nil {
		return nil, err
	}
	if s.margin, err = register(reg, s.margin); err != nil {
		return nil, err
	}
	if s.revenue, err = register(reg, s.revenue); err != nil {
		return nil, err
	}
	if s.instances, err = register(reg, s.instances); err != nil {
		return nil, err
	}
	if s.shortfalls, err = register(reg, s.shortfalls); err != nil {
		return nil, err
	}
	if s.splits, err = register(reg, s.splits); err != nil {
		return nil, err
	}
	if s.cards, err = register(reg, s.cards); err != nil {
		return nil, err
	}
	if s.hooks, err = register(reg, s.hooks); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRoll counts the roll and publishes its financial summary.
func (s *PromSink) RecordRoll(ev coremetrics.RollEvent) error {
	s.rolls.WithLabelValues(ev.Trigger).Inc()
	s.rollTime.Observe(ev.Duration.Seconds())
	s.margin.Set(ev.MeanMargin)
	s.revenue.Set(ev.Revenue)
	return nil
}

// RecordInstance counts a pipeline outcome.
func (s *PromSink) RecordInstance(ev coremetrics.InstanceEvent) error {
	s.instances.WithLabelValues(ev.Outcome).Inc()
	return nil
}

// RecordShortfall counts a shortfall.
func (s *PromSink) RecordShortfall(ev coremetrics.ShortfallEvent) error {
	s.shortfalls.WithLabelValues(string(ev.Resource)).Inc()
	return nil
}

// RecordRouteSplit counts a route split.
func (s *PromSink) RecordRouteSplit(ev coremetrics.RouteSplitEvent) error {
	s.splits.WithLabelValues(string(ev.Direction)).Inc()
	return nil
}

// RecordCards adds the generated cards per type.
func (s *PromSink) RecordCards(ev coremetrics.CardsEvent) error {
	for typ, n := range ev.Counts {
		s.cards.WithLabelValues(string(typ)).Add(float64(n))
	}
	return nil
}

// RecordHookFailure counts a failed hook.
func (s *PromSink) RecordHookFailure(ev coremetrics.HookFailureEvent) error {
	s.hooks.WithLabelValues(ev.Hook).Inc()
	return nil
}
