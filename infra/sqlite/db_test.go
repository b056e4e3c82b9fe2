package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "loom.db"), Options{})
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func date(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func datep(s string) *time.Time {
	d := date(s)
	return &d
}

func TestSchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.db")
	s, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	s, err = Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOverlappingIntents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := model.Intent{
		ID: "i1", Kind: model.IntentAddParticipant, ProgramID: "p1", ParticipantID: "alice",
		Start: date("2025-01-01"), End: datep("2025-03-01"),
		Payload:   model.AddParticipantPayload{BillingCode: "SUP01", Hours: 3},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, s.CreateIntent(ctx, first))

	key := model.IntentKey{Kind: model.IntentAddParticipant, ProgramID: "p1", ParticipantID: "alice"}
	hits, err := s.OverlappingIntents(ctx, key, model.NewInterval(date("2025-02-01"), nil), "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "i1", hits[0].ID)

	hits, err = s.OverlappingIntents(ctx, key, model.NewInterval(date("2025-03-01"), nil), "")
	require.NoError(t, err)
	assert.Empty(t, hits, "adjacent range must not overlap")

	hits, err = s.OverlappingIntents(ctx, key, model.NewInterval(date("2025-02-01"), nil), "i1")
	require.NoError(t, err)
	assert.Empty(t, hits, "own id must be excluded")

	other := key
	other.ParticipantID = "bob"
	hits, err = s.OverlappingIntents(ctx, other, model.NewInterval(date("2025-02-01"), nil), "")
	require.NoError(t, err)
	assert.Empty(t, hits)

	got, err := s.GetIntent(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, model.AddParticipantPayload{BillingCode: "SUP01", Hours: 3}, got.Payload)
	require.NotNil(t, got.End)
	assert.Equal(t, date("2025-03-01"), *got.End)
}

func TestOverlappingIntentsProgramKeyIgnoresOtherRefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIntent(ctx, model.Intent{
		ID: "m1", Kind: model.IntentModifyTime, ProgramID: "p1", ParticipantID: "alice",
		Start: date("2025-01-01"), Payload: model.ModifyTimePayload{StartTime: "10:00"},
	}))

	key := model.IntentKey{Kind: model.IntentModifyTime, ProgramID: "p1"}
	hits, err := s.OverlappingIntents(ctx, key, model.NewInterval(date("2025-02-01"), nil), "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m1", hits[0].ID)
}

func TestListIntentsActiveOn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, in := range []model.Intent{
		{ID: "a", Kind: model.IntentChangeVenue, ProgramID: "p1", VenueID: "v2", Start: date("2025-01-01"), End: datep("2025-01-10")},
		{ID: "b", Kind: model.IntentModifyTime, ProgramID: "p1", Start: date("2025-01-05"), Payload: model.ModifyTimePayload{StartTime: "10:00", EndTime: "13:00"}},
		{ID: "c", Kind: model.IntentModifyTime, ProgramID: "p2", Start: date("2025-01-01")},
	} {
		require.NoError(t, s.CreateIntent(ctx, in))
	}
	on := date("2025-01-10")
	res, err := s.ListIntents(ctx, store.IntentFilter{ProgramID: "p1", ActiveOn: &on})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].ID)
}

func TestIntentNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.GetIntent(ctx, "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.True(t, model.IsNotFound(s.DeleteIntent(ctx, "missing")))
	assert.True(t, model.IsNotFound(s.UpdateIntent(ctx, model.Intent{ID: "missing", Kind: model.IntentModifyTime})))
}

func TestExceptionUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ex := model.Exception{ID: "e1", Kind: model.ExceptionProgramCancellation, ProgramID: "p1", Date: date("2025-02-03"), CreatedAt: time.Now()}
	require.NoError(t, s.CreateException(ctx, ex))
	ex.ID = "e2"
	err := s.CreateException(ctx, ex)
	assert.True(t, model.IsConflict(err), "expected conflict, got %v", err)

	list, err := s.ListExceptions(ctx, store.ExceptionFilter{ProgramID: "p1", Date: datep("2025-02-03")})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "e1", list[0].ID)
}

func sampleInstance(id, program, day string) model.Instance {
	return model.Instance{
		ID: id, ProgramID: program, ProgramName: "Art", Date: date(day),
		StartTime: "09:00", EndTime: "12:00", VenueID: "hall",
		Status: model.StatusDraft, Stage: model.StageAllocated, CardsDirty: true,
		Participants: []model.ParticipantAllocation{
			{ParticipantID: "alice", BillingCode: "SUP01", Hours: 3, Weight: 1, Status: model.AllocationConfirmed},
		},
		Shifts: []model.StaffShift{
			{StaffID: "sam", Role: model.RoleLead, Start: "09:00", End: "12:00", PayRate: 40, Status: model.AllocationPlanned},
		},
		Runs: []model.VehicleRun{
			{VehicleID: "bus1", Direction: model.DirectionPickup, Sequence: 0, Manifest: []string{"alice"}, Status: model.AllocationPlanned},
		},
		Financials: model.Financials{Revenue: 180, StaffCost: 120, AdminCost: 32.4, ProfitLoss: 27.6, Margin: 0.1533},
		UpdatedAt:  time.Now(),
	}
}

func TestSaveInstanceUpsertsByProgramAndDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := sampleInstance("inst-1", "p1", "2025-02-03")
	require.NoError(t, s.SaveInstance(ctx, inst))

	inst.Participants = append(inst.Participants, model.ParticipantAllocation{ParticipantID: "bob", Weight: 2, Status: model.AllocationConfirmed})
	inst.Shifts = nil
	require.NoError(t, s.SaveInstance(ctx, inst))

	got, err := s.FindInstance(ctx, "p1", date("2025-02-03"))
	require.NoError(t, err)
	assert.Len(t, got.Participants, 2)
	assert.Empty(t, got.Shifts)
	require.Len(t, got.Runs, 1)
	assert.Equal(t, []string{"alice"}, got.Runs[0].Manifest)
	assert.InDelta(t, 27.6, got.Financials.ProfitLoss, 1e-9)

	all, err := s.ListInstances(ctx, store.InstanceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMarkStaleSkipsFinalised(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := sampleInstance("a", "p1", "2025-02-03")
	b := sampleInstance("b", "p1", "2025-02-04")
	b.Status = model.StatusFinalised
	require.NoError(t, s.SaveInstance(ctx, a))
	require.NoError(t, s.SaveInstance(ctx, b))

	n, err := s.MarkStale(ctx, "p1", model.NewInterval(date("2025-02-01"), nil))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale := true
	list, err := s.ListInstances(ctx, store.InstanceFilter{Stale: &stale})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)

	pruned, err := s.PruneInstances(ctx, model.NewInterval(date("2025-01-01"), datep("2025-03-01")))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	_, err = s.GetInstance(ctx, "b")
	assert.NoError(t, err, "finalised instance must survive pruning")
}

func TestBookingsExcludeOwnInstance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveInstance(ctx, sampleInstance("a", "p1", "2025-02-03")))
	require.NoError(t, s.SaveInstance(ctx, sampleInstance("b", "p2", "2025-02-03")))

	staff, err := s.StaffBookings(ctx, date("2025-02-03"), "a")
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, "b", staff[0].InstanceID)
	assert.Equal(t, "sam", staff[0].ResourceID)

	vehicles, err := s.VehicleBookings(ctx, date("2025-02-03"), "")
	require.NoError(t, err)
	assert.Len(t, vehicles, 2)
}

func TestReplaceCardsAndQueryByMember(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := sampleInstance("inst-1", "p1", "2025-02-03")
	require.NoError(t, s.SaveInstance(ctx, inst))

	first := []model.Card{
		{ID: "c1", InstanceID: "inst-1", ProgramID: "p1", Date: inst.Date, Type: model.CardMaster, ParticipantIDs: []string{"alice"}, StaffIDs: []string{"sam"}},
		{ID: "c2", InstanceID: "inst-1", ProgramID: "p1", Date: inst.Date, Type: model.CardRoster, StaffIDs: []string{"sam"}, Meta: model.CardMeta{ExtraStaffIDs: []string{"kim"}}},
	}
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.ReplaceCards(ctx, "inst-1", first) }))

	byStaff, err := s.ListCards(ctx, store.CardFilter{StaffID: "kim", From: datep("2025-02-01"), To: datep("2025-02-10")})
	require.NoError(t, err)
	require.Len(t, byStaff, 1)
	assert.Equal(t, "c2", byStaff[0].ID)

	second := []model.Card{
		{ID: "c3", InstanceID: "inst-1", ProgramID: "p1", Date: inst.Date, Type: model.CardActivity, ParticipantIDs: []string{"bob"}},
	}
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.ReplaceCards(ctx, "inst-1", second) }))
	all, err := s.ListCards(ctx, store.CardFilter{InstanceID: "inst-1"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "c3", all[0].ID)

	byParticipant, err := s.ListCards(ctx, store.CardFilter{ParticipantID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, byParticipant)
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.SetSetting(ctx, store.KeyWindowWeeks, "6"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = s.GetSetting(ctx, store.KeyWindowWeeks)
	assert.True(t, model.IsNotFound(err))
}

func TestSettingsHelpers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	weeks, err := store.WindowWeeks(ctx, s, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, weeks)

	base := model.AllocationConfig{}
	base.SetDefaults()
	require.NoError(t, store.SeedSettings(ctx, s, 6, base))
	require.NoError(t, s.SetSetting(ctx, store.KeyStaffRatio, "3"))
	require.NoError(t, store.SeedSettings(ctx, s, 8, base))

	weeks, err = store.WindowWeeks(ctx, s, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, weeks, "seeding must not overwrite")

	cfg, err := store.AllocationConfig(ctx, s, base)
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.StaffRatio)
	assert.Equal(t, 0.18, cfg.AdminOverhead)
}

func TestAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendAudit(ctx, model.AuditEntry{Action: "create", EntityType: "intent", EntityID: "i1", Details: map[string]any{"kind": "MODIFY_TIME"}}))
	entries, err := s.ListAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.SeverityInfo, entries[0].Severity)
	assert.Equal(t, "MODIFY_TIME", entries[0].Details["kind"])
}
