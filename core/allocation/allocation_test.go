package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
	"github.com/kilianp07/loom/infra/logger"
)

type fakeSource struct {
	participants  map[string]model.Participant
	staff         []model.Staff
	vehicles      []model.Vehicle
	venues        map[string]model.Venue
	codes         map[string]model.BillingCode
	staffBooked   []store.Booking
	vehicleBooked []store.Booking
}

func (f *fakeSource) GetParticipant(_ context.Context, id string) (model.Participant, error) {
	p, ok := f.participants[id]
	if !ok {
		return p, model.ErrNotFound
	}
	return p, nil
}

func (f *fakeSource) ListStaff(context.Context) ([]model.Staff, error) { return f.staff, nil }

func (f *fakeSource) ListVehicles(context.Context) ([]model.Vehicle, error) { return f.vehicles, nil }

func (f *fakeSource) GetVenue(_ context.Context, id string) (model.Venue, error) {
	v, ok := f.venues[id]
	if !ok {
		return v, model.ErrNotFound
	}
	return v, nil
}

func (f *fakeSource) GetBillingCode(_ context.Context, code string) (model.BillingCode, error) {
	b, ok := f.codes[code]
	if !ok {
		return b, model.ErrNotFound
	}
	return b, nil
}

func (f *fakeSource) StaffBookings(context.Context, time.Time, string) ([]store.Booking, error) {
	return f.staffBooked, nil
}

func (f *fakeSource) VehicleBookings(context.Context, time.Time, string) ([]store.Booking, error) {
	return f.vehicleBooked, nil
}

func defaultConfig() model.AllocationConfig {
	var cfg model.AllocationConfig
	cfg.SetDefaults()
	return cfg
}

func attendees(weights ...float64) []model.ParticipantAllocation {
	out := make([]model.ParticipantAllocation, len(weights))
	for i, w := range weights {
		out[i] = model.ParticipantAllocation{
			ParticipantID: string(rune('a' + i)),
			Weight:        w,
			Status:        model.AllocationPlanned,
		}
	}
	return out
}

func baseInstance() model.Instance {
	return model.Instance{
		ID:        "inst-1",
		ProgramID: "prog-1",
		Date:      time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC),
		StartTime: "09:00",
		EndTime:   "12:00",
	}
}

func TestCalculateStaffRequirement(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, 2, CalculateStaffRequirement(attendees(1, 1, 2, 1), cfg))
	assert.Equal(t, 2, CalculateStaffRequirement(attendees(2, 2, 2, 2), cfg))
	assert.Equal(t, 1, CalculateStaffRequirement(attendees(0, 0), cfg))
	assert.Equal(t, 0, CalculateStaffRequirement(nil, cfg))

	ps := attendees(4, 1)
	ps[1].Status = model.AllocationCancelled
	assert.Equal(t, 1, CalculateStaffRequirement(ps, cfg))
}

func TestRunCount(t *testing.T) {
	cases := []struct {
		minutes  float64
		proposed int
		want     int
	}{
		{50, 1, 1},
		{60, 1, 1},
		{95, 1, 2},
		{130, 1, 3},
		{95, 3, 3},
		{0, 0, 0},
	}
	for _, c := range cases {
		if got := RunCount(c.minutes, 60, c.proposed); got != c.want {
			t.Fatalf("RunCount(%v, 60, %d) = %d, want %d", c.minutes, c.proposed, got, c.want)
		}
	}
}

func TestAssignPrefersPinnedStaff(t *testing.T) {
	inst := baseInstance()
	inst.Participants = attendees(1, 1)
	inst.Pins = []model.StaffPin{{StaffID: "s2", Strategy: model.StrategyPreferred}}
	pool := []model.Staff{
		{ID: "s1", CanLead: true, HourlyRate: 30, Active: true},
		{ID: "s2", HourlyRate: 45, Active: true},
		{ID: "s3", Active: false},
	}
	shifts, short, err := AssignStaffToInstance(inst, pool, nil, defaultConfig())
	require.NoError(t, err)
	assert.Nil(t, short)
	require.Len(t, shifts, 1)
	assert.Equal(t, "s2", shifts[0].StaffID)
	assert.Equal(t, model.RoleLead, shifts[0].Role)
	assert.True(t, shifts[0].Pinned)
	assert.Equal(t, 45.0, shifts[0].PayRate)
	assert.Equal(t, model.TimeOfDay("09:00"), shifts[0].Start)
	assert.Equal(t, model.TimeOfDay("12:00"), shifts[0].End)
}

func TestAssignFixedPinExceedsRequirement(t *testing.T) {
	inst := baseInstance()
	inst.Participants = attendees(1)
	inst.Pins = []model.StaffPin{{StaffID: "s2", Strategy: model.StrategyFixed, Role: model.RoleSupport}}
	pool := []model.Staff{
		{ID: "s1", CanLead: true, Active: true},
		{ID: "s2", Active: true},
	}
	shifts, short, err := AssignStaffToInstance(inst, pool, nil, defaultConfig())
	require.NoError(t, err)
	assert.Nil(t, short)
	require.Len(t, shifts, 1)
	assert.Equal(t, "s2", shifts[0].StaffID)
}

func TestAssignReportsShortfall(t *testing.T) {
	inst := baseInstance()
	inst.Participants = attendees(1, 1, 1, 1, 1)
	pool := []model.Staff{
		{ID: "s1", Active: true},
		{ID: "s2", Active: true},
	}
	bookings := []store.Booking{{InstanceID: "other", ResourceID: "s2", Start: "11:00", End: "13:00"}}
	shifts, short, err := AssignStaffToInstance(inst, pool, bookings, defaultConfig())
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, "s1", shifts[0].StaffID)
	require.NotNil(t, short)
	assert.Equal(t, model.ResourceStaff, short.Resource)
	assert.Equal(t, 2, short.Required)
	assert.Equal(t, 1, short.Assigned)
}

func TestAssignIsDeterministic(t *testing.T) {
	inst := baseInstance()
	inst.Participants = attendees(1, 1, 1, 1, 1, 1, 1, 1, 1)
	pool := []model.Staff{
		{ID: "c", CanLead: true, Active: true},
		{ID: "a", Active: true},
		{ID: "b", Active: true},
		{ID: "d", Active: true},
	}
	first, _, err := AssignStaffToInstance(inst, pool, nil, defaultConfig())
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, "c", first[0].StaffID)
	assert.Equal(t, model.RoleLead, first[0].Role)
	for i := 0; i < 5; i++ {
		again, _, err := AssignStaffToInstance(inst, pool, nil, defaultConfig())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAssignRespectsQualifications(t *testing.T) {
	inst := baseInstance()
	inst.Participants = attendees(1)
	inst.Qualifications = []string{"first-aid"}
	pool := []model.Staff{
		{ID: "a", Active: true},
		{ID: "b", Active: true, Qualifications: []string{"first-aid"}},
	}
	shifts, short, err := AssignStaffToInstance(inst, pool, nil, defaultConfig())
	require.NoError(t, err)
	assert.Nil(t, short)
	require.Len(t, shifts, 1)
	assert.Equal(t, "b", shifts[0].StaffID)
}

func TestCalculateFinancialMetrics(t *testing.T) {
	inst := baseInstance()
	inst.Participants = []model.ParticipantAllocation{{ParticipantID: "p1", BillingCode: "CORE", Status: model.AllocationPlanned}}
	inst.Shifts = []model.StaffShift{{StaffID: "s1", Start: "09:00", End: "12:00", PayRate: 35}}
	f := CalculateFinancialMetrics(inst, map[string]float64{"CORE": 50}, defaultConfig())
	assert.InDelta(t, 150, f.Revenue, 0.001)
	assert.InDelta(t, 105, f.StaffCost, 0.001)
	assert.InDelta(t, 27, f.AdminCost, 0.001)
	assert.InDelta(t, 18, f.ProfitLoss, 0.001)
	assert.InDelta(t, 0.12, f.Margin, 0.0001)
}

func TestCalculateFinancialMetricsZeroRevenue(t *testing.T) {
	inst := baseInstance()
	inst.Shifts = []model.StaffShift{{StaffID: "s1", Start: "09:00", End: "10:00", PayRate: 40}}
	f := CalculateFinancialMetrics(inst, nil, defaultConfig())
	assert.Zero(t, f.Revenue)
	assert.Zero(t, f.Margin)
	assert.InDelta(t, -40, f.ProfitLoss, 0.001)
}

func TestOptimizeRouteCapacity(t *testing.T) {
	riders := []Rider{
		{ParticipantID: "p1", Location: model.Location{Lat: 0.01}},
		{ParticipantID: "p2", Location: model.Location{Lat: 0.02}},
		{ParticipantID: "p3", Location: model.Location{Lat: 0.03}},
		{ParticipantID: "p4", Location: model.Location{Lat: 0.04}, Wheelchair: true},
	}
	v := model.Vehicle{ID: "v1", Seats: 2, WheelchairSpaces: 1, Active: true}
	plan := OptimizeRoute(riders, v, model.Location{}, model.DirectionDropoff, defaultConfig())
	assert.Equal(t, []string{"p1", "p2", "p4"}, plan.Manifest())
	require.Len(t, plan.Overflow, 1)
	assert.Equal(t, "p3", plan.Overflow[0].ParticipantID)

	pickup := OptimizeRoute(riders, v, model.Location{}, model.DirectionPickup, defaultConfig())
	assert.Equal(t, []string{"p4", "p2", "p1"}, pickup.Manifest())
	assert.InDelta(t, plan.EstimatedMinutes, pickup.EstimatedMinutes, 1e-9)
}

func TestPlanRunsSplitsLongRoute(t *testing.T) {
	riders := []Rider{
		{ParticipantID: "p1", Location: model.Location{Lat: 0.05}},
		{ParticipantID: "p2", Location: model.Location{Lat: 0.10}},
		{ParticipantID: "p3", Location: model.Location{Lat: 0.15}},
		{ParticipantID: "p4", Location: model.Location{Lat: 0.20}},
	}
	cfg := defaultConfig()
	cfg.RouteCeilingMinutes = 30
	vehicles := []model.Vehicle{{ID: "bus", Seats: 10, Active: true}}
	plans, warnings, unplaced := PlanRuns(riders, vehicles, model.Location{}, model.DirectionPickup, cfg)
	assert.Empty(t, unplaced)
	require.Len(t, warnings, 1)
	assert.Equal(t, 2, warnings[0].Runs)
	assert.Greater(t, warnings[0].EstimatedMinutes, 30.0)
	require.Len(t, plans, 2)
	assert.Equal(t, []string{"p4", "p3"}, plans[0].Manifest())
	assert.Equal(t, []string{"p2", "p1"}, plans[1].Manifest())
}

func TestSplitStops(t *testing.T) {
	chunks := SplitStops([]int{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5}}, chunks)
	assert.Len(t, SplitStops([]int{1, 2}, 5), 2)
	assert.Equal(t, [][]int{{1}}, SplitStops([]int{1}, 3))
}

func TestEngineAllocate(t *testing.T) {
	src := &fakeSource{
		participants: map[string]model.Participant{
			"p1": {ID: "p1", NeedsTransport: true, Location: model.Location{Lat: -33.80, Lng: 151.00}, DefaultBillingCode: "CORE", Active: true},
			"p2": {ID: "p2", SupervisionWeight: 2, NeedsTransport: true, Location: model.Location{Lat: -33.81, Lng: 151.01}, DefaultBillingCode: "CORE", Active: true},
			"p3": {ID: "p3", DefaultBillingCode: "CORE", Active: true},
		},
		staff: []model.Staff{
			{ID: "s1", CanLead: true, CanDrive: true, HourlyRate: 40, Active: true},
		},
		vehicles: []model.Vehicle{{ID: "v1", Seats: 8, Active: true}},
		venues:   map[string]model.Venue{"hall": {ID: "hall", Location: model.Location{Lat: -33.79, Lng: 151.00}}},
		codes:    map[string]model.BillingCode{"CORE": {Code: "CORE", HourlyRate: 60}},
	}
	inst := baseInstance()
	inst.VenueID = "hall"
	inst.Participants = []model.ParticipantAllocation{{ParticipantID: "p3"}, {ParticipantID: "p2"}, {ParticipantID: "p1"}}

	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	t.Cleanup(func() { ResetMetrics(nil) })

	res, err := NewEngine(logger.NopLogger{}).Allocate(context.Background(), src, &inst, defaultConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Shortfalls)
	assert.Empty(t, res.Splits)

	assert.Equal(t, "p1", inst.Participants[0].ParticipantID)
	assert.Equal(t, 2.0, inst.Participants[1].Weight)
	assert.Equal(t, "CORE", inst.Participants[2].BillingCode)
	assert.Equal(t, 3.0, inst.Participants[2].Hours)
	assert.Equal(t, 1, inst.RequiredStaff)
	require.Len(t, inst.Shifts, 1)

	pickups := inst.RunsFor(model.DirectionPickup)
	dropoffs := inst.RunsFor(model.DirectionDropoff)
	require.Len(t, pickups, 1)
	require.Len(t, dropoffs, 1)
	assert.Equal(t, "s1", pickups[0].DriverID)
	assert.Equal(t, model.TimeOfDay("09:00"), pickups[0].End)
	assert.Equal(t, model.TimeOfDay("12:00"), dropoffs[0].Start)
	assert.ElementsMatch(t, []string{"p1", "p2"}, pickups[0].Manifest)
	assert.Greater(t, inst.RouteMinutes, 0.0)

	assert.InDelta(t, 540, inst.Financials.Revenue, 0.001)
	assert.InDelta(t, 120, inst.Financials.StaffCost, 0.001)
}

func TestEngineVehicleShortfall(t *testing.T) {
	src := &fakeSource{
		participants: map[string]model.Participant{
			"p1": {ID: "p1", NeedsTransport: true, Active: true},
			"p2": {ID: "p2", NeedsTransport: true, Wheelchair: true, Active: true},
		},
		staff:    []model.Staff{{ID: "s1", CanDrive: true, Active: true}},
		vehicles: []model.Vehicle{{ID: "v1", Seats: 4, Active: true}},
	}
	inst := baseInstance()
	inst.Participants = []model.ParticipantAllocation{{ParticipantID: "p1"}, {ParticipantID: "p2"}}

	res, err := NewEngine(logger.NopLogger{}).Allocate(context.Background(), src, &inst, defaultConfig())
	require.NoError(t, err)
	require.Len(t, res.Shortfalls, 1)
	assert.Equal(t, model.ResourceVehicle, res.Shortfalls[0].Resource)
	assert.Equal(t, 1, res.Shortfalls[0].Assigned)
	assert.Equal(t, res.Shortfalls, inst.Shortfalls)
	assert.True(t, inst.Flagged())
}

func TestMetricsRegistration(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	allocationLatency.WithLabelValues("ok").Observe(0.01)
	shortfallsTotal.WithLabelValues("staff").Inc()
	routeSplitsTotal.WithLabelValues("PICKUP").Inc()
	requiredStaff.Observe(2)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[*mf.Name] = true
	}
	for _, n := range []string{
		"loom_allocation_duration_seconds",
		"loom_allocation_shortfalls_total",
		"loom_route_splits_total",
		"loom_required_staff",
	} {
		if !names[n] {
			t.Errorf("metric %s not registered", n)
		}
	}
}
