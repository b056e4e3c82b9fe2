package roller

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/loom/core/model"
)

var instanceNamespace = uuid.MustParse("9b1f3c52-7e44-4d8e-a0b3-2f6d5c8e1a07")

// InstanceID derives the stable id of a program occurrence.
func InstanceID(programID string, date time.Time) string {
	return uuid.NewSHA1(instanceNamespace, []byte(programID+"|"+model.FormatDate(date))).String()
}

// materialize builds the base instance of p on date. Identity and operator
// status carry over from prev when it exists.
func materialize(p model.Program, date time.Time, prev *model.Instance) model.Instance {
	inst := model.Instance{
		ID:             InstanceID(p.ID, date),
		ProgramID:      p.ID,
		ProgramName:    p.Name,
		Date:           model.Day(date),
		StartTime:      p.StartTime,
		EndTime:        p.EndTime,
		PickupTime:     p.PickupTime,
		DropoffTime:    p.DropoffTime,
		VenueID:        p.VenueID,
		Qualifications: slices.Clone(p.Qualifications),
		Status:         model.StatusDraft,
		Stage:          model.StageMaterialized,
		VehicleIDs:     slices.Clone(p.VehicleIDs),
	}
	if prev != nil {
		inst.ID = prev.ID
		inst.Status = prev.Status
	}
	for _, pp := range p.Participants {
		inst.Participants = append(inst.Participants, model.ParticipantAllocation{
			ParticipantID: pp.ParticipantID,
			BillingCode:   pp.BillingCode,
			Hours:         pp.Hours,
			Status:        model.AllocationPlanned,
		})
	}
	for _, id := range p.StaffIDs {
		inst.Pins = append(inst.Pins, model.StaffPin{StaffID: id, Strategy: model.StrategyPreferred})
	}
	return inst
}

// intentAppliers apply one intent kind to an instance. Applying the same
// intent twice yields the same instance.
var intentAppliers = map[model.IntentKind]func(inst *model.Instance, in model.Intent){
	model.IntentAddParticipant: func(inst *model.Instance, in model.Intent) {
		p, _ := in.Payload.(model.AddParticipantPayload)
		alloc := model.ParticipantAllocation{
			ParticipantID: in.ParticipantID,
			BillingCode:   p.BillingCode,
			Hours:         p.Hours,
			Status:        model.AllocationConfirmed,
		}
		for i := range inst.Participants {
			if inst.Participants[i].ParticipantID == in.ParticipantID {
				inst.Participants[i] = alloc
				return
			}
		}
		inst.Participants = append(inst.Participants, alloc)
	},
	model.IntentRemoveParticipant: func(inst *model.Instance, in model.Intent) {
		inst.Participants = slices.DeleteFunc(inst.Participants, func(a model.ParticipantAllocation) bool {
			return a.ParticipantID == in.ParticipantID
		})
	},
	model.IntentAssignStaff: func(inst *model.Instance, in model.Intent) {
		p, _ := in.Payload.(model.AssignStaffPayload)
		pin := model.StaffPin{StaffID: in.StaffID, Role: p.Role, Strategy: p.Strategy, IntentID: in.ID}
		if pin.Strategy == "" {
			pin.Strategy = model.StrategyFixed
		}
		for i := range inst.Pins {
			if inst.Pins[i].StaffID == in.StaffID {
				inst.Pins[i] = pin
				return
			}
		}
		inst.Pins = append(inst.Pins, pin)
	},
	model.IntentChangeVenue: func(inst *model.Instance, in model.Intent) {
		inst.VenueID = in.VenueID
	},
	model.IntentModifyTime: func(inst *model.Instance, in model.Intent) {
		p, _ := in.Payload.(model.ModifyTimePayload)
		setTime(&inst.StartTime, p.StartTime)
		setTime(&inst.EndTime, p.EndTime)
		setTime(&inst.PickupTime, p.PickupTime)
		setTime(&inst.DropoffTime, p.DropoffTime)
	},
	// The program row already reflects its defining intent.
	model.IntentCreateProgram: func(*model.Instance, model.Intent) {},
}

func setTime(dst *model.TimeOfDay, v model.TimeOfDay) {
	if v != "" {
		*dst = v
	}
}

// sortIntents orders intents by kind precedence, then start date and id so
// application is deterministic.
func sortIntents(list []model.Intent) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if pa, pb := a.Kind.Precedence(), b.Kind.Precedence(); pa != pb {
			return pa < pb
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})
}

func sortExceptions(list []model.Exception) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if pa, pb := a.Kind.Precedence(), b.Kind.Precedence(); pa != pb {
			return pa < pb
		}
		return a.ID < b.ID
	})
}

// applyRules applies intents then exceptions. It reports whether a program
// cancellation removed the occurrence.
func applyRules(inst *model.Instance, intents []model.Intent, exceptions []model.Exception) (cancelled bool) {
	sortIntents(intents)
	for _, in := range intents {
		apply, ok := intentAppliers[in.Kind]
		if !ok || !in.ActiveOn(inst.Date) {
			continue
		}
		apply(inst, in)
		inst.Rules = append(inst.Rules, "intent:"+in.ID)
	}

	sortExceptions(exceptions)
	for _, ex := range exceptions {
		if !ex.Date.Equal(inst.Date) {
			continue
		}
		switch ex.Kind {
		case model.ExceptionParticipantCancellation:
			for i := range inst.Participants {
				if inst.Participants[i].ParticipantID == ex.ParticipantID {
					inst.Participants[i].Status = model.AllocationCancelled
				}
			}
		case model.ExceptionOneOffChange:
			setTime(&inst.StartTime, ex.Details.StartTime)
			setTime(&inst.EndTime, ex.Details.EndTime)
			if ex.Details.VenueID != "" {
				inst.VenueID = ex.Details.VenueID
			}
			inst.Overridden = true
		case model.ExceptionProgramCancellation:
			cancelled = true
		}
		inst.Rules = append(inst.Rules, "exception:"+ex.ID)
	}
	return cancelled
}

// programFromIntent derives the program defined by a CREATE_PROGRAM intent.
func programFromIntent(in model.Intent) (model.Program, error) {
	p, ok := in.Payload.(model.CreateProgramPayload)
	if !ok || in.Kind != model.IntentCreateProgram {
		return model.Program{}, fmt.Errorf("intent %s is not a %s intent", in.ID, model.IntentCreateProgram)
	}
	prog := model.Program{
		ID:             in.ProgramID,
		Name:           p.Name,
		VenueID:        in.VenueID,
		StartTime:      p.StartTime,
		EndTime:        p.EndTime,
		PickupTime:     p.PickupTime,
		DropoffTime:    p.DropoffTime,
		Repeat:         p.Repeat,
		StartDate:      in.Start,
		EndDate:        in.End,
		Participants:   p.Participants,
		StaffIDs:       p.StaffIDs,
		VehicleIDs:     p.VehicleIDs,
		Qualifications: p.Qualifications,
		Active:         true,
		SourceIntentID: in.ID,
	}
	if in.VehicleID != "" && !slices.Contains(prog.VehicleIDs, in.VehicleID) {
		prog.VehicleIDs = append(prog.VehicleIDs, in.VehicleID)
	}
	if in.StaffID != "" && !slices.Contains(prog.StaffIDs, in.StaffID) {
		prog.StaffIDs = append(prog.StaffIDs, in.StaffID)
	}
	return prog, nil
}
