// Package allocation assigns staff and vehicles to instances and computes
// their financial snapshot.
package allocation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/loom/core/logger"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
)

// Source is the catalog and booking view the engine reads from. A store.Tx
// satisfies it.
type Source interface {
	GetParticipant(ctx context.Context, id string) (model.Participant, error)
	ListStaff(ctx context.Context) ([]model.Staff, error)
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
	GetVenue(ctx context.Context, id string) (model.Venue, error)
	GetBillingCode(ctx context.Context, code string) (model.BillingCode, error)
	StaffBookings(ctx context.Context, date time.Time, excludeInstanceID string) ([]store.Booking, error)
	VehicleBookings(ctx context.Context, date time.Time, excludeInstanceID string) ([]store.Booking, error)
}

// Result carries the warnings raised while allocating one instance.
type Result struct {
	Shortfalls []model.ShortfallWarning
	Splits     []model.OptimizationWarning
}

// Engine allocates resources to instances.
type Engine struct {
	ranker StaffRanker
	logger logger.Logger
}

// NewEngine returns an Engine using the default staff ranker.
func NewEngine(log logger.Logger) *Engine {
	return &Engine{ranker: NewStaffRanker(), logger: log}
}

// Allocate fills participants, shifts, runs and financials of inst. Missing
// capacity is reported as shortfalls; only store failures return an error.
func (e *Engine) Allocate(ctx context.Context, src Source, inst *model.Instance, cfg model.AllocationConfig) (res Result, err error) {
	started := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		} else if len(res.Shortfalls) > 0 {
			outcome = "shortfall"
		}
		allocationLatency.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	}()

	locations, err := e.enrichParticipants(ctx, src, inst)
	if err != nil {
		return res, err
	}

	inst.RequiredStaff = CalculateStaffRequirement(inst.Participants, cfg)
	requiredStaff.Observe(float64(inst.RequiredStaff))

	pool, err := src.ListStaff(ctx)
	if err != nil {
		return res, fmt.Errorf("list staff: %w", err)
	}
	staffBookings, err := src.StaffBookings(ctx, inst.Date, inst.ID)
	if err != nil {
		return res, fmt.Errorf("staff bookings: %w", err)
	}
	shifts, short, err := e.ranker.Assign(*inst, pool, staffBookings, inst.RequiredStaff, cfg)
	if err != nil {
		return res, err
	}
	inst.Shifts = shifts
	if short != nil {
		res.Shortfalls = append(res.Shortfalls, *short)
	}

	shortfalls, splits, err := e.planTransport(ctx, src, inst, pool, locations, cfg)
	if err != nil {
		return res, err
	}
	res.Shortfalls = append(res.Shortfalls, shortfalls...)
	res.Splits = splits

	rates, err := e.billingRates(ctx, src, inst)
	if err != nil {
		return res, err
	}
	inst.Financials = CalculateFinancialMetrics(*inst, rates, cfg)
	inst.Shortfalls = res.Shortfalls

	for _, s := range res.Shortfalls {
		shortfallsTotal.WithLabelValues(string(s.Resource)).Inc()
	}
	for _, w := range res.Splits {
		routeSplitsTotal.WithLabelValues(string(w.Direction)).Inc()
	}
	return res, nil
}

func (e *Engine) enrichParticipants(ctx context.Context, src Source, inst *model.Instance) (map[string]model.Location, error) {
	locations := make(map[string]model.Location, len(inst.Participants))
	defaultHours := model.Span(inst.StartTime, inst.EndTime).Hours()
	for i := range inst.Participants {
		a := &inst.Participants[i]
		p, err := src.GetParticipant(ctx, a.ParticipantID)
		switch {
		case model.IsNotFound(err):
			e.logger.Warnf("instance %s: participant %s not in catalog", inst.ID, a.ParticipantID)
			if a.Weight <= 0 {
				a.Weight = 1
			}
		case err != nil:
			return nil, fmt.Errorf("participant %s: %w", a.ParticipantID, err)
		default:
			a.Weight = p.Weight()
			a.NeedsTransport = p.NeedsTransport
			a.Wheelchair = p.Wheelchair
			if a.BillingCode == "" {
				a.BillingCode = p.DefaultBillingCode
			}
			locations[p.ID] = p.Location
		}
		if a.Hours <= 0 {
			a.Hours = defaultHours
		}
		if a.Status == "" {
			a.Status = model.AllocationPlanned
		}
	}
	sort.SliceStable(inst.Participants, func(i, j int) bool {
		return inst.Participants[i].ParticipantID < inst.Participants[j].ParticipantID
	})
	return locations, nil
}

// vehiclePool returns program vehicles first, then the rest of the fleet by
// capacity. Vehicles booked in an overlapping window are skipped.
func vehiclePool(inst model.Instance, fleet []model.Vehicle, bookings []store.Booking, start, end int) []model.Vehicle {
	busy := make(map[string]bool)
	for _, b := range bookings {
		if overlaps(start, end, b) {
			busy[b.ResourceID] = true
		}
	}
	byID := make(map[string]model.Vehicle, len(fleet))
	for _, v := range fleet {
		if v.Active && !busy[v.ID] {
			byID[v.ID] = v
		}
	}
	var out []model.Vehicle
	for _, id := range inst.VehicleIDs {
		if v, ok := byID[id]; ok {
			out = append(out, v)
			delete(byID, id)
		}
	}
	rest := make([]model.Vehicle, 0, len(byID))
	for _, v := range byID {
		rest = append(rest, v)
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].Seats != rest[j].Seats {
			return rest[i].Seats > rest[j].Seats
		}
		return rest[i].ID < rest[j].ID
	})
	return append(out, rest...)
}

func (e *Engine) planTransport(ctx context.Context, src Source, inst *model.Instance, pool []model.Staff, locations map[string]model.Location, cfg model.AllocationConfig) ([]model.ShortfallWarning, []model.OptimizationWarning, error) {
	inst.Runs = nil
	inst.RouteMinutes = 0

	var riders []Rider
	for _, p := range inst.Attending() {
		if !p.NeedsTransport {
			continue
		}
		riders = append(riders, Rider{ParticipantID: p.ParticipantID, Location: locations[p.ParticipantID], Wheelchair: p.Wheelchair})
	}
	if len(riders) == 0 {
		return nil, nil, nil
	}

	var depot model.Location
	if inst.VenueID != "" {
		venue, err := src.GetVenue(ctx, inst.VenueID)
		switch {
		case model.IsNotFound(err):
			e.logger.Warnf("instance %s: venue %s not in catalog", inst.ID, inst.VenueID)
		case err != nil:
			return nil, nil, fmt.Errorf("venue %s: %w", inst.VenueID, err)
		default:
			depot = venue.Location
		}
	}

	fleet, err := src.ListVehicles(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list vehicles: %w", err)
	}
	bookings, err := src.VehicleBookings(ctx, inst.Date, inst.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("vehicle bookings: %w", err)
	}
	start, end, err := ShiftWindow(*inst)
	if err != nil {
		return nil, nil, err
	}
	vehicles := vehiclePool(*inst, fleet, bookings, start, end)

	var shortfalls []model.ShortfallWarning
	pickups, splits, unplaced := PlanRuns(riders, vehicles, depot, model.DirectionPickup, cfg)
	if len(unplaced) > 0 {
		shortfalls = append(shortfalls, model.ShortfallWarning{
			Resource: model.ResourceVehicle,
			Required: len(riders),
			Assigned: len(riders) - len(unplaced),
			Detail:   fmt.Sprintf("%d participants without a seat", len(unplaced)),
		})
	}
	if len(pickups) == 0 {
		return shortfalls, splits, nil
	}

	vehicleByID := make(map[string]model.Vehicle, len(vehicles))
	for _, v := range vehicles {
		vehicleByID[v.ID] = v
	}
	dropoffs := make([]RoutePlan, 0, len(pickups))
	for _, p := range pickups {
		dropoffs = append(dropoffs, OptimizeRoute(p.Stops, vehicleByID[p.VehicleID], depot, model.DirectionDropoff, cfg))
	}

	for _, w := range splits {
		inst.RouteMinutes = maxFloat(inst.RouteMinutes, w.EstimatedMinutes)
	}
	for _, p := range pickups {
		inst.RouteMinutes = maxFloat(inst.RouteMinutes, p.EstimatedMinutes)
	}

	drivers := driversFor(inst.Shifts, pool)
	if len(drivers) == 0 {
		shortfalls = append(shortfalls, model.ShortfallWarning{
			Resource: model.ResourceStaff,
			Required: 1,
			Assigned: 0,
			Detail:   "no driver among assigned staff",
		})
	}
	inst.Runs = append(scheduleRuns(pickups, inst.StartTime, drivers), scheduleRuns(dropoffs, inst.EndTime, drivers)...)
	return shortfalls, splits, nil
}

func maxFloat(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}

func driversFor(shifts []model.StaffShift, pool []model.Staff) []string {
	canDrive := make(map[string]bool, len(pool))
	for _, s := range pool {
		canDrive[s.ID] = s.CanDrive
	}
	var out []string
	for _, s := range shifts {
		if canDrive[s.StaffID] {
			out = append(out, s.StaffID)
		}
	}
	return out
}

// scheduleRuns times runs against anchor. Pickup runs arrive at anchor, with
// earlier runs of the same vehicle stacked before; dropoff runs leave at
// anchor with later runs stacked after.
func scheduleRuns(plans []RoutePlan, anchor model.TimeOfDay, drivers []string) []model.VehicleRun {
	at, err := anchor.Minutes()
	if err != nil {
		at = 0
	}
	runs := make([]model.VehicleRun, len(plans))
	cursor := make(map[string]float64)
	order := make([]int, len(plans))
	for i := range order {
		order[i] = i
	}
	pickup := len(plans) > 0 && plans[0].Direction == model.DirectionPickup
	if pickup {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}
	for _, i := range order {
		p := plans[i]
		c, ok := cursor[p.VehicleID]
		if !ok {
			c = float64(at)
		}
		run := model.VehicleRun{
			VehicleID:        p.VehicleID,
			Direction:        p.Direction,
			Sequence:         i + 1,
			Manifest:         p.Manifest(),
			EstimatedMinutes: round(p.EstimatedMinutes, 1),
			Status:           model.AllocationPlanned,
		}
		if len(drivers) > 0 {
			run.DriverID = drivers[i%len(drivers)]
		}
		if pickup {
			run.End = model.ClockAt(int(c))
			run.Start = model.ClockAt(int(c - p.EstimatedMinutes))
			cursor[p.VehicleID] = c - p.EstimatedMinutes
		} else {
			run.Start = model.ClockAt(int(c))
			run.End = model.ClockAt(int(c + p.EstimatedMinutes))
			cursor[p.VehicleID] = c + p.EstimatedMinutes
		}
		runs[i] = run
	}
	return runs
}

func (e *Engine) billingRates(ctx context.Context, src Source, inst *model.Instance) (map[string]float64, error) {
	rates := make(map[string]float64)
	for _, p := range inst.Attending() {
		if p.BillingCode == "" {
			continue
		}
		if _, ok := rates[p.BillingCode]; ok {
			continue
		}
		code, err := src.GetBillingCode(ctx, p.BillingCode)
		switch {
		case model.IsNotFound(err):
			e.logger.Warnf("instance %s: billing code %s not in catalog", inst.ID, p.BillingCode)
			rates[p.BillingCode] = 0
		case err != nil:
			return nil, fmt.Errorf("billing code %s: %w", p.BillingCode, err)
		default:
			rates[p.BillingCode] = code.HourlyRate
		}
	}
	return rates, nil
}
