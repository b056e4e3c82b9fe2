package cards

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/loom/core/events"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
	"github.com/kilianp07/loom/infra/logger"
	"github.com/kilianp07/loom/infra/sqlite"
	"github.com/kilianp07/loom/internal/eventbus"
)

func testConfig() model.AllocationConfig {
	var cfg model.AllocationConfig
	cfg.SetDefaults()
	return cfg
}

func allocated() model.Instance {
	ps := make([]model.ParticipantAllocation, 0, 5)
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		ps = append(ps, model.ParticipantAllocation{ParticipantID: id, Weight: 1, Status: model.AllocationPlanned})
	}
	return model.Instance{
		ID:          "inst-1",
		ProgramID:   "prog-1",
		ProgramName: "Art club",
		Date:        time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC),
		StartTime:   "09:00",
		EndTime:     "12:00",
		PickupTime:  "08:15",
		DropoffTime: "12:45",
		VenueID:     "hall",
		Status:      model.StatusDraft,
		Stage:       model.StageAllocated,
		CardsDirty:  true,
		Shifts: []model.StaffShift{
			{StaffID: "s1", Role: model.RoleLead, Start: "08:15", End: "12:45"},
			{StaffID: "s2", Role: model.RoleSupport, Start: "08:15", End: "12:45"},
			{StaffID: "s3", Role: model.RoleSupport, Start: "08:15", End: "12:45"},
		},
		Runs: []model.VehicleRun{
			{VehicleID: "bus", DriverID: "s1", Direction: model.DirectionPickup, Sequence: 1, Start: "08:20", End: "09:00", Manifest: []string{"p1", "p2"}, EstimatedMinutes: 40},
			{VehicleID: "bus", DriverID: "s1", Direction: model.DirectionDropoff, Sequence: 1, Start: "12:00", End: "12:40", Manifest: []string{"p1", "p2"}, EstimatedMinutes: 40},
		},
		Participants: ps,
		RouteMinutes: 40,
	}
}

func TestDecomposeCardSet(t *testing.T) {
	cards := Decompose(allocated(), "Town hall", testConfig())
	counts := Count(cards)
	assert.Equal(t, 1, counts[model.CardMaster])
	assert.Equal(t, 1, counts[model.CardActivity])
	assert.Equal(t, 1, counts[model.CardPickup])
	assert.Equal(t, 1, counts[model.CardDropoff])
	assert.Equal(t, 2, counts[model.CardRoster])
	require.Len(t, cards, 6)

	assert.Equal(t, model.CardMaster, cards[0].Type)
	assert.Equal(t, model.TimeOfDay("08:15"), cards[0].StartTime)
	assert.Equal(t, model.TimeOfDay("12:45"), cards[0].EndTime)
	assert.Equal(t, 2, cards[0].Meta.RequiredStaff)
	assert.Equal(t, "Town hall", cards[0].Location)

	var rosters []model.Card
	seen := map[string]bool{}
	for _, c := range cards {
		assert.False(t, seen[c.ID], "duplicate card id")
		seen[c.ID] = true
		if c.Type == model.CardRoster {
			rosters = append(rosters, c)
		}
	}
	require.Len(t, rosters, 2)
	assert.Equal(t, []string{"s1"}, rosters[0].StaffIDs)
	assert.Equal(t, model.RoleLead, rosters[0].Meta.Role)
	assert.Equal(t, []string{"s3"}, rosters[0].Meta.ExtraStaffIDs)
	assert.Empty(t, rosters[1].Meta.ExtraStaffIDs)
}

func TestDecomposeSplitsLongRoute(t *testing.T) {
	inst := allocated()
	inst.RouteMinutes = 95
	inst.Runs = []model.VehicleRun{
		{VehicleID: "bus", DriverID: "s2", Direction: model.DirectionPickup, Sequence: 1, Manifest: []string{"p1", "p2", "p3", "p4"}, EstimatedMinutes: 95},
		{VehicleID: "bus", DriverID: "s2", Direction: model.DirectionDropoff, Sequence: 1, Manifest: []string{"p1", "p2", "p3", "p4"}, EstimatedMinutes: 95},
	}
	cards := Decompose(inst, "", testConfig())
	counts := Count(cards)
	assert.Equal(t, 2, counts[model.CardPickup])
	assert.Equal(t, 2, counts[model.CardDropoff])

	var pickups []model.Card
	for _, c := range cards {
		if c.Type == model.CardPickup {
			pickups = append(pickups, c)
		}
	}
	assert.Equal(t, []string{"p1", "p2"}, pickups[0].ParticipantIDs)
	assert.Equal(t, []string{"p3", "p4"}, pickups[1].ParticipantIDs)
	assert.Equal(t, model.TimeOfDay("08:15"), pickups[1].StartTime)
	assert.Equal(t, model.TimeOfDay("09:00"), pickups[1].EndTime)
	assert.Equal(t, "bus", pickups[1].VehicleID)
	assert.Equal(t, "hall", pickups[0].Location)
}

func TestDecomposeEmitsOnePairPerBusRun(t *testing.T) {
	inst := allocated()
	inst.RouteMinutes = 95
	inst.Runs = []model.VehicleRun{
		{VehicleID: "bus", DriverID: "s2", Direction: model.DirectionPickup, Sequence: 1, Manifest: []string{"p1"}, EstimatedMinutes: 95},
		{VehicleID: "bus", DriverID: "s2", Direction: model.DirectionDropoff, Sequence: 1, Manifest: []string{"p1"}, EstimatedMinutes: 95},
	}
	cfg := testConfig()
	runs := BusRunCount(inst, cfg)
	require.Equal(t, 2, runs)

	cards := Decompose(inst, "", cfg)
	counts := Count(cards)
	assert.Equal(t, runs, counts[model.CardPickup])
	assert.Equal(t, runs, counts[model.CardDropoff])

	var pickups, dropoffs []model.Card
	for _, c := range cards {
		switch c.Type {
		case model.CardPickup:
			pickups = append(pickups, c)
		case model.CardDropoff:
			dropoffs = append(dropoffs, c)
		}
	}
	assert.Equal(t, []string{"p1"}, pickups[0].ParticipantIDs)
	assert.Empty(t, pickups[1].ParticipantIDs)
	assert.Equal(t, model.TimeOfDay("08:15"), pickups[1].StartTime)
	assert.Equal(t, model.TimeOfDay("09:00"), pickups[1].EndTime)
	assert.Equal(t, "bus", pickups[1].VehicleID)
	assert.Empty(t, dropoffs[1].ParticipantIDs)
	assert.Equal(t, model.TimeOfDay("12:00"), dropoffs[1].StartTime)
	assert.Equal(t, model.TimeOfDay("12:45"), dropoffs[1].EndTime)
	assert.NotEqual(t, pickups[0].ID, pickups[1].ID)
}

func TestDecomposeWithoutStaff(t *testing.T) {
	inst := allocated()
	inst.Shifts = nil
	inst.Runs = nil
	inst.RouteMinutes = 0
	inst.Shortfalls = []model.ShortfallWarning{{Resource: model.ResourceStaff, Required: 2}}
	cards := Decompose(inst, "", testConfig())
	require.Len(t, cards, 2)
	assert.True(t, cards[0].Flagged)
	assert.NotEmpty(t, cards[0].Meta.Notes)
}

func TestCardIDIsStable(t *testing.T) {
	a := CardID("inst-1", model.CardPickup, 1)
	assert.Equal(t, a, CardID("inst-1", model.CardPickup, 1))
	assert.NotEqual(t, a, CardID("inst-1", model.CardDropoff, 1))
	assert.NotEqual(t, a, CardID("inst-2", model.CardPickup, 1))
}

func newService(t *testing.T) (*Service, *sqlite.Store, eventbus.EventBus) {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "loom.db"), sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	return NewService(s, testConfig(), bus, logger.NopLogger{}), s, bus
}

func TestGenerateReplacesPreviousSet(t *testing.T) {
	svc, s, bus := newService(t)
	ctx := context.Background()
	sub := bus.Subscribe()
	inst := allocated()
	require.NoError(t, s.SaveInstance(ctx, inst))

	first, err := svc.Generate(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, first, 6)

	ev := <-sub
	generated, ok := ev.(events.CardsGenerated)
	require.True(t, ok)
	assert.Equal(t, 2, generated.Counts[model.CardRoster])

	inst.Shifts = inst.Shifts[:1]
	inst.Runs = nil
	inst.RouteMinutes = 0
	require.NoError(t, s.SaveInstance(ctx, inst))
	second, err := svc.Generate(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, second, 3)

	stored, err := s.ListCards(ctx, store.CardFilter{InstanceID: inst.ID})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	got := Count(stored)
	assert.Equal(t, 0, got[model.CardPickup])
	assert.Equal(t, 1, got[model.CardRoster])

	after, err := s.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageCardsGenerated, after.Stage)
	assert.False(t, after.CardsDirty)
}

func TestGenerateMissingInstanceKeepsCards(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Generate(context.Background(), "missing")
	assert.True(t, model.IsNotFound(err))
}

func TestRegenerateDirtyAndQueries(t *testing.T) {
	svc, s, _ := newService(t)
	ctx := context.Background()
	a := allocated()
	b := allocated()
	b.ID = "inst-2"
	b.Date = a.Date.AddDate(0, 0, 7)
	require.NoError(t, s.SaveInstance(ctx, a))
	require.NoError(t, s.SaveInstance(ctx, b))

	n, err := svc.RegenerateDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.RegenerateDirty(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	day, err := svc.ForDate(ctx, a.Date)
	require.NoError(t, err)
	assert.Len(t, day, 6)

	forP, err := svc.ForParticipant(ctx, "p3", a.Date, b.Date.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, forP, 4)

	forS, err := svc.ForStaff(ctx, "s3", a.Date, a.Date.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, forS, 3)
}
