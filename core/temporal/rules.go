package temporal

import (
	"time"

	"github.com/kilianp07/loom/core/model"
)

// intentRule is the per-kind capability set: the reference fields the kind
// reads, field validation and the conflict key. Application lives in the
// roller.
type intentRule struct {
	refs     refField
	validate func(in model.Intent, v *model.ValidationError)
	key      func(in model.Intent) model.IntentKey
}

// refField is a bit set of the intent's optional reference columns.
type refField uint8

const (
	refParticipant refField = 1 << iota
	refStaff
	refVehicle
	refVenue
)

var intentRules = map[model.IntentKind]intentRule{
	model.IntentAddParticipant: {
		refs: refParticipant,
		validate: func(in model.Intent, v *model.ValidationError) {
			requireProgram(in, v)
			requireField(v, "participant_id", in.ParticipantID)
			p, _ := in.Payload.(model.AddParticipantPayload)
			requireField(v, "payload.billing_code", p.BillingCode)
			if p.Hours <= 0 {
				v.Add("payload.hours", "must be positive")
			}
		},
		key: func(in model.Intent) model.IntentKey {
			return model.IntentKey{Kind: in.Kind, ProgramID: in.ProgramID, ParticipantID: in.ParticipantID}
		},
	},
	model.IntentRemoveParticipant: {
		refs: refParticipant,
		validate: func(in model.Intent, v *model.ValidationError) {
			requireProgram(in, v)
			requireField(v, "participant_id", in.ParticipantID)
		},
		key: func(in model.Intent) model.IntentKey {
			return model.IntentKey{Kind: in.Kind, ProgramID: in.ProgramID, ParticipantID: in.ParticipantID}
		},
	},
	model.IntentModifyTime: {
		validate: func(in model.Intent, v *model.ValidationError) {
			requireProgram(in, v)
			p, _ := in.Payload.(model.ModifyTimePayload)
			if p.StartTime == "" && p.EndTime == "" && p.PickupTime == "" && p.DropoffTime == "" {
				v.Add("payload", "at least one time must be set")
			}
			checkTime(v, "payload.start_time", p.StartTime)
			checkTime(v, "payload.end_time", p.EndTime)
			checkTime(v, "payload.pickup_time", p.PickupTime)
			checkTime(v, "payload.dropoff_time", p.DropoffTime)
			checkOrder(v, "payload.end_time", p.StartTime, p.EndTime)
		},
		key: programKey,
	},
	model.IntentChangeVenue: {
		refs: refVenue,
		validate: func(in model.Intent, v *model.ValidationError) {
			requireProgram(in, v)
			requireField(v, "venue_id", in.VenueID)
		},
		key: programKey,
	},
	model.IntentAssignStaff: {
		refs: refStaff,
		validate: func(in model.Intent, v *model.ValidationError) {
			requireProgram(in, v)
			requireField(v, "staff_id", in.StaffID)
			p, _ := in.Payload.(model.AssignStaffPayload)
			switch p.Role {
			case "", model.RoleLead, model.RoleSupport:
			default:
				v.Add("payload.role", "unknown role %q", p.Role)
			}
			switch p.Strategy {
			case "", model.StrategyFixed, model.StrategyPreferred:
			default:
				v.Add("payload.strategy", "unknown strategy %q", p.Strategy)
			}
		},
		key: func(in model.Intent) model.IntentKey {
			return model.IntentKey{Kind: in.Kind, ProgramID: in.ProgramID, StaffID: in.StaffID}
		},
	},
	model.IntentCreateProgram: {
		refs: refStaff | refVehicle | refVenue,
		validate: func(in model.Intent, v *model.ValidationError) {
			p, _ := in.Payload.(model.CreateProgramPayload)
			requireField(v, "payload.name", p.Name)
			requireField(v, "payload.start_time", string(p.StartTime))
			requireField(v, "payload.end_time", string(p.EndTime))
			checkTime(v, "payload.start_time", p.StartTime)
			checkTime(v, "payload.end_time", p.EndTime)
			checkTime(v, "payload.pickup_time", p.PickupTime)
			checkTime(v, "payload.dropoff_time", p.DropoffTime)
			checkOrder(v, "payload.end_time", p.StartTime, p.EndTime)
			for _, d := range p.Repeat.Weekdays {
				if d < time.Sunday || d > time.Saturday {
					v.Add("payload.repeat.weekdays", "invalid weekday %d", d)
				}
			}
			if p.Repeat.IntervalWeeks < 0 {
				v.Add("payload.repeat.interval_weeks", "cannot be negative")
			}
			for i, pp := range p.Participants {
				if pp.ParticipantID == "" {
					v.Add("payload.participants", "entry %d has no participant_id", i)
				}
			}
		},
	},
}

// checkUnusedRefs rejects reference fields the kind does not read. A stray
// id would otherwise be stored and split the conflict key of the kind.
func checkUnusedRefs(in model.Intent, refs refField, v *model.ValidationError) {
	for _, f := range []struct {
		bit   refField
		field string
		value string
	}{
		{refParticipant, "participant_id", in.ParticipantID},
		{refStaff, "staff_id", in.StaffID},
		{refVehicle, "vehicle_id", in.VehicleID},
		{refVenue, "venue_id", in.VenueID},
	} {
		if f.value != "" && refs&f.bit == 0 {
			v.Add(f.field, "is not used by %s intents", in.Kind)
		}
	}
}

func programKey(in model.Intent) model.IntentKey {
	return model.IntentKey{Kind: in.Kind, ProgramID: in.ProgramID}
}

func requireField(v *model.ValidationError, field, value string) {
	if value == "" {
		v.Add(field, "is required")
	}
}

func requireProgram(in model.Intent, v *model.ValidationError) {
	requireField(v, "program_id", in.ProgramID)
}

func checkTime(v *model.ValidationError, field string, t model.TimeOfDay) {
	if t != "" && !t.Valid() {
		v.Add(field, "must be HH:MM")
	}
}

func checkOrder(v *model.ValidationError, field string, start, end model.TimeOfDay) {
	if start == "" || end == "" || !start.Valid() || !end.Valid() {
		return
	}
	if model.Span(start, end) <= 0 {
		v.Add(field, "must be after start_time")
	}
}

// validateIntent checks the common fields and the kind-specific shape.
// checkStart and checkEnd gate the not-in-the-past rule so updates only
// enforce it on dates that changed.
func validateIntent(in model.Intent, today time.Time, checkStart, checkEnd bool) error {
	v := &model.ValidationError{}
	rule, ok := intentRules[in.Kind]
	if !ok {
		v.Add("kind", "unknown intent kind %q", in.Kind)
		return v
	}
	if in.Payload != nil && in.Payload.Kind() != in.Kind {
		v.Add("payload", "payload of kind %s does not match %s", in.Payload.Kind(), in.Kind)
	}
	if in.Start.IsZero() {
		v.Add("start_date", "is required")
	} else if checkStart && in.Start.Before(today) {
		v.Add("start_date", "cannot be before %s", model.FormatDate(today))
	}
	if in.End != nil {
		if !in.Start.IsZero() && !in.End.After(in.Start) {
			v.Add("end_date", "must be after start_date")
		} else if checkEnd && in.End.Before(today) {
			v.Add("end_date", "cannot be before %s", model.FormatDate(today))
		}
	}
	checkUnusedRefs(in, rule.refs, v)
	rule.validate(in, v)
	return v.OrNil()
}

// checkResolvedSpan rejects a one-sided time override whose result on top
// of base would end before it starts. Two-sided overrides are checked by
// checkOrder.
func checkResolvedSpan(prefix string, base [2]model.TimeOfDay, start, end model.TimeOfDay) error {
	if (start == "") == (end == "") {
		return nil
	}
	field := prefix + "start_time"
	if start == "" {
		field = prefix + "end_time"
		start = base[0]
	}
	if end == "" {
		end = base[1]
	}
	if !start.Valid() || !end.Valid() || model.Span(start, end) > 0 {
		return nil
	}
	v := &model.ValidationError{}
	v.Add(field, "resolves to %s-%s, which does not end after it starts", start, end)
	return v
}

func validateException(ex model.Exception, today time.Time) error {
	v := &model.ValidationError{}
	if !ex.Kind.Valid() {
		v.Add("kind", "unknown exception kind %q", ex.Kind)
	}
	requireField(v, "program_id", ex.ProgramID)
	if ex.Date.IsZero() {
		v.Add("date", "is required")
	} else if ex.Date.Before(today) {
		v.Add("date", "cannot be before %s", model.FormatDate(today))
	}
	switch ex.Kind {
	case model.ExceptionParticipantCancellation:
		requireField(v, "participant_id", ex.ParticipantID)
	case model.ExceptionOneOffChange:
		if ex.Details.Empty() {
			v.Add("details", "at least one of start_time, end_time or venue_id must be set")
		}
		checkTime(v, "details.start_time", ex.Details.StartTime)
		checkTime(v, "details.end_time", ex.Details.EndTime)
		checkOrder(v, "details.end_time", ex.Details.StartTime, ex.Details.EndTime)
	}
	return v.OrNil()
}
