// Package cards projects allocated instances into UI cards.
package cards

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kilianp07/loom/core/allocation"
	"github.com/kilianp07/loom/core/model"
)

var cardNamespace = uuid.MustParse("4d0a5c1e-8f0b-4e2a-9b59-6c1f3e0d7a21")

// CardID derives a stable card id from its instance, type and sequence.
func CardID(instanceID string, typ model.CardType, seq int) string {
	return uuid.NewSHA1(cardNamespace, []byte(fmt.Sprintf("%s|%s|%d", instanceID, typ, seq))).String()
}

type leg struct {
	vehicleID string
	driverID  string
	start     model.TimeOfDay
	end       model.TimeOfDay
	manifest  []string
	minutes   float64
}

func legsFrom(runs []model.VehicleRun) []leg {
	out := make([]leg, len(runs))
	for i, r := range runs {
		out[i] = leg{
			vehicleID: r.VehicleID,
			driverID:  r.DriverID,
			start:     r.Start,
			end:       r.End,
			manifest:  r.Manifest,
			minutes:   r.EstimatedMinutes,
		}
	}
	return out
}

// repartition spreads the riders of legs over exactly n runs, keeping rider
// order. Runs beyond the rider count get an empty manifest. Vehicles and
// drivers are reused cyclically; times are left unset so the instance-level
// times apply.
func repartition(legs []leg, n int) []leg {
	var riders []string
	for _, l := range legs {
		riders = append(riders, l.manifest...)
	}
	chunks := allocation.SplitStops(riders, n)
	out := make([]leg, max(n, len(chunks)))
	for i := range out {
		if i < len(chunks) {
			out[i].manifest = chunks[i]
		}
		if len(legs) > 0 {
			src := legs[i%len(legs)]
			out[i].vehicleID = src.vehicleID
			out[i].driverID = src.driverID
		}
	}
	return out
}

func orDefault(v, def model.TimeOfDay) model.TimeOfDay {
	if v.IsZero() {
		return def
	}
	return v
}

func staffIDs(shifts []model.StaffShift) []string {
	out := make([]string, len(shifts))
	for i, s := range shifts {
		out[i] = s.StaffID
	}
	return out
}

func participantIDs(ps []model.ParticipantAllocation) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ParticipantID
	}
	return out
}

func single(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}

// BusRunCount returns the number of pickup/dropoff pairs for inst.
func BusRunCount(inst model.Instance, cfg model.AllocationConfig) int {
	return allocation.RunCount(inst.RouteMinutes, cfg.RouteCeilingMinutes, len(inst.RunsFor(model.DirectionPickup)))
}

// Decompose builds the full card set for an allocated instance: one MASTER,
// one ACTIVITY, a PICKUP and DROPOFF card per bus run and one ROSTER card per
// assigned staff member up to the staffing requirement.
func Decompose(inst model.Instance, location string, cfg model.AllocationConfig) []model.Card {
	if location == "" {
		location = inst.VenueID
	}
	attending := participantIDs(inst.Attending())
	staff := staffIDs(inst.Shifts)
	required := allocation.CalculateStaffRequirement(inst.Participants, cfg)

	newCard := func(typ model.CardType, seq int) model.Card {
		return model.Card{
			ID:         CardID(inst.ID, typ, seq),
			InstanceID: inst.ID,
			ProgramID:  inst.ProgramID,
			Date:       inst.Date,
			Type:       typ,
			Sequence:   seq,
			Location:   location,
			Flagged:    inst.Flagged(),
		}
	}

	master := newCard(model.CardMaster, 0)
	master.StartTime = orDefault(inst.PickupTime, inst.StartTime)
	master.EndTime = orDefault(inst.DropoffTime, inst.EndTime)
	master.ParticipantIDs = attending
	master.StaffIDs = staff
	master.Meta = model.CardMeta{Title: inst.ProgramName, RequiredStaff: required}
	for _, s := range inst.Shortfalls {
		master.Meta.Notes = append(master.Meta.Notes, fmt.Sprintf("%s shortfall: %d of %d assigned", s.Resource, s.Assigned, s.Required))
	}
	if inst.Overridden {
		master.Meta.Notes = append(master.Meta.Notes, "manually overridden")
	}

	pickups := legsFrom(inst.RunsFor(model.DirectionPickup))
	dropoffs := legsFrom(inst.RunsFor(model.DirectionDropoff))
	runs := BusRunCount(inst, cfg)
	if runs != len(pickups) {
		pickups = repartition(pickups, runs)
		dropoffs = repartition(dropoffs, runs)
	}

	cards := []model.Card{master}
	for i, p := range pickups {
		c := newCard(model.CardPickup, i+1)
		c.StartTime = orDefault(p.start, inst.PickupTime)
		c.EndTime = orDefault(p.end, inst.StartTime)
		c.ParticipantIDs = p.manifest
		c.StaffIDs = single(p.driverID)
		c.VehicleID = p.vehicleID
		c.Meta.EstimatedMinutes = p.minutes
		cards = append(cards, c)
	}

	activity := newCard(model.CardActivity, 0)
	activity.StartTime = inst.StartTime
	activity.EndTime = inst.EndTime
	activity.ParticipantIDs = attending
	activity.StaffIDs = staff
	activity.Meta.Title = inst.ProgramName
	cards = append(cards, activity)

	for i := range pickups {
		c := newCard(model.CardDropoff, i+1)
		var d leg
		if i < len(dropoffs) {
			d = dropoffs[i]
		} else {
			d = leg{vehicleID: pickups[i].vehicleID, driverID: pickups[i].driverID, manifest: pickups[i].manifest}
		}
		c.StartTime = orDefault(d.start, inst.EndTime)
		c.EndTime = orDefault(d.end, inst.DropoffTime)
		c.ParticipantIDs = d.manifest
		c.StaffIDs = single(d.driverID)
		c.VehicleID = d.vehicleID
		c.Meta.EstimatedMinutes = d.minutes
		cards = append(cards, c)
	}

	rosters := required
	if len(inst.Shifts) < rosters {
		rosters = len(inst.Shifts)
	}
	first := len(cards)
	for i := 0; i < rosters; i++ {
		s := inst.Shifts[i]
		c := newCard(model.CardRoster, i+1)
		c.StartTime = s.Start
		c.EndTime = s.End
		c.StaffIDs = []string{s.StaffID}
		c.Meta.Role = s.Role
		cards = append(cards, c)
	}
	for i, s := range inst.Shifts[rosters:] {
		if rosters == 0 {
			cards[0].Meta.ExtraStaffIDs = append(cards[0].Meta.ExtraStaffIDs, s.StaffID)
			continue
		}
		c := &cards[first+i%rosters]
		c.Meta.ExtraStaffIDs = append(c.Meta.ExtraStaffIDs, s.StaffID)
	}
	return cards
}

// Count tallies cards by type.
func Count(cards []model.Card) map[model.CardType]int {
	out := make(map[model.CardType]int)
	for _, c := range cards {
		out[c.Type]++
	}
	return out
}
