package allocation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/kilianp07/loom/core/model"
)

const (
	kmPerDegreeLat = 110.574
	kmPerDegreeLng = 111.320
)

// Rider is a participant travelling on a vehicle run.
type Rider struct {
	ParticipantID string
	Location      model.Location
	Wheelchair    bool
}

// RoutePlan is an ordered sequence of stops for one vehicle.
type RoutePlan struct {
	VehicleID        string
	Direction        model.Direction
	Stops            []Rider
	EstimatedMinutes float64
	// Overflow holds riders that did not fit the vehicle.
	Overflow []Rider
}

// Manifest returns the participant ids in stop order.
func (p RoutePlan) Manifest() []string {
	out := make([]string, len(p.Stops))
	for i, s := range p.Stops {
		out[i] = s.ParticipantID
	}
	return out
}

// project maps a location onto a local plane in kilometres. The
// equirectangular approximation is accurate enough at metro scale.
func project(l model.Location, ref float64) r2.Vec {
	return r2.Vec{
		X: l.Lng * kmPerDegreeLng * math.Cos(ref*math.Pi/180),
		Y: l.Lat * kmPerDegreeLat,
	}
}

func distance(a, b r2.Vec) float64 { return r2.Norm(r2.Sub(a, b)) }

// EstimateMinutes returns travel time for visiting stops in order starting
// from depot, plus dwell time per stop.
func EstimateMinutes(depot model.Location, stops []Rider, cfg model.AllocationConfig) float64 {
	if len(stops) == 0 {
		return 0
	}
	speed := cfg.AverageSpeedKmh
	if speed <= 0 {
		speed = 30
	}
	legs := make([]float64, 0, len(stops))
	prev := project(depot, depot.Lat)
	for _, s := range stops {
		p := project(s.Location, depot.Lat)
		legs = append(legs, distance(prev, p))
		prev = p
	}
	return floats.Sum(legs)/speed*60 + float64(len(stops))*cfg.StopDwellMinutes
}

// OptimizeRoute orders riders with a nearest-neighbour tour from the venue,
// loading riders while the vehicle has capacity. Pickup runs travel the tour
// in reverse so the vehicle finishes at the venue.
func OptimizeRoute(riders []Rider, vehicle model.Vehicle, depot model.Location, dir model.Direction, cfg model.AllocationConfig) RoutePlan {
	plan := RoutePlan{VehicleID: vehicle.ID, Direction: dir}
	pending := append([]Rider(nil), riders...)
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].ParticipantID < pending[j].ParticipantID })

	seats, chairs := 0, 0
	cur := project(depot, depot.Lat)
	for len(pending) > 0 {
		best := -1
		bestDist := math.Inf(1)
		for i, r := range pending {
			s, c := seats, chairs
			if r.Wheelchair {
				c++
			} else {
				s++
			}
			if !vehicle.CanCarry(s, c) {
				continue
			}
			if d := distance(cur, project(r.Location, depot.Lat)); d < bestDist {
				best, bestDist = i, d
			}
		}
		if best < 0 {
			break
		}
		r := pending[best]
		if r.Wheelchair {
			chairs++
		} else {
			seats++
		}
		plan.Stops = append(plan.Stops, r)
		cur = project(r.Location, depot.Lat)
		pending = append(pending[:best], pending[best+1:]...)
	}
	plan.Overflow = pending
	plan.EstimatedMinutes = EstimateMinutes(depot, plan.Stops, cfg)
	if dir == model.DirectionPickup {
		for i, j := 0, len(plan.Stops)-1; i < j; i, j = i+1, j-1 {
			plan.Stops[i], plan.Stops[j] = plan.Stops[j], plan.Stops[i]
		}
	}
	return plan
}

// RunCount returns how many runs a route needs. Routes within the ceiling
// keep the proposed count; longer routes need at least ceil(minutes/ceiling).
func RunCount(routeMinutes, ceiling float64, proposed int) int {
	if ceiling <= 0 || routeMinutes <= ceiling {
		return proposed
	}
	n := int(math.Ceil(routeMinutes / ceiling))
	if n < proposed {
		return proposed
	}
	return n
}

// SplitStops partitions stops into n contiguous chunks of near-equal size.
func SplitStops[T any](stops []T, n int) [][]T {
	if n <= 1 || len(stops) <= 1 {
		return [][]T{stops}
	}
	if n > len(stops) {
		n = len(stops)
	}
	out := make([][]T, 0, n)
	size, extra := len(stops)/n, len(stops)%n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < extra {
			end++
		}
		out = append(out, stops[start:end])
		start = end
	}
	return out
}

// SplitRoute breaks a plan exceeding the ceiling into contiguous runs on the
// same vehicle. It returns nil when no split is needed.
func SplitRoute(plan RoutePlan, depot model.Location, cfg model.AllocationConfig) ([]RoutePlan, *model.OptimizationWarning) {
	n := RunCount(plan.EstimatedMinutes, cfg.RouteCeilingMinutes, 1)
	if n <= 1 {
		return nil, nil
	}
	chunks := SplitStops(plan.Stops, n)
	out := make([]RoutePlan, 0, len(chunks))
	for _, chunk := range chunks {
		stops := append([]Rider(nil), chunk...)
		travel := stops
		if plan.Direction == model.DirectionPickup {
			travel = reversed(stops)
		}
		out = append(out, RoutePlan{
			VehicleID:        plan.VehicleID,
			Direction:        plan.Direction,
			Stops:            stops,
			EstimatedMinutes: EstimateMinutes(depot, travel, cfg),
		})
	}
	return out, &model.OptimizationWarning{
		VehicleID:        plan.VehicleID,
		Direction:        plan.Direction,
		EstimatedMinutes: plan.EstimatedMinutes,
		CeilingMinutes:   cfg.RouteCeilingMinutes,
		Runs:             len(out),
	}
}

func reversed(in []Rider) []Rider {
	out := make([]Rider, len(in))
	for i, r := range in {
		out[len(in)-1-i] = r
	}
	return out
}

// PlanRuns distributes riders over the vehicle pool in order and splits
// any route exceeding the ceiling. Riders without a seat are returned.
func PlanRuns(riders []Rider, vehicles []model.Vehicle, depot model.Location, dir model.Direction, cfg model.AllocationConfig) ([]RoutePlan, []model.OptimizationWarning, []Rider) {
	var (
		plans    []RoutePlan
		warnings []model.OptimizationWarning
	)
	remaining := riders
	for _, v := range vehicles {
		if len(remaining) == 0 {
			break
		}
		plan := OptimizeRoute(remaining, v, depot, dir, cfg)
		remaining = plan.Overflow
		plan.Overflow = nil
		if len(plan.Stops) == 0 {
			continue
		}
		if split, warn := SplitRoute(plan, depot, cfg); warn != nil {
			plans = append(plans, split...)
			warnings = append(warnings, *warn)
			continue
		}
		plans = append(plans, plan)
	}
	return plans, warnings, remaining
}
