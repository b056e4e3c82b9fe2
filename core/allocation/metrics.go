package allocation

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	allocationLatency *prometheus.HistogramVec
	shortfallsTotal   *prometheus.CounterVec
	routeSplitsTotal  *prometheus.CounterVec
	requiredStaff     prometheus.Histogram
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Histogram) {
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loom_allocation_duration_seconds",
			Help:    "Time spent allocating resources to one instance",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	short := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_allocation_shortfalls_total",
			Help: "Number of shortfall warnings raised during allocation",
		},
		[]string{"resource"},
	)
	splits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_route_splits_total",
			Help: "Number of routes split because they exceeded the run ceiling",
		},
		[]string{"direction"},
	)
	req := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loom_required_staff",
			Help:    "Staff required per allocated instance",
			Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 12},
		},
	)
	return lat, short, splits, req
}

func init() {
	allocationLatency, shortfallsTotal, routeSplitsTotal, requiredStaff = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers allocation metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(allocationLatency, shortfallsTotal, routeSplitsTotal, requiredStaff)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	allocationLatency, shortfallsTotal, routeSplitsTotal, requiredStaff = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
