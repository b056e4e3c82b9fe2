package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// IntentKind enumerates the persistent rule kinds.
type IntentKind string

const (
	IntentAddParticipant    IntentKind = "ADD_PARTICIPANT"
	IntentRemoveParticipant IntentKind = "REMOVE_PARTICIPANT"
	IntentModifyTime        IntentKind = "MODIFY_TIME"
	IntentChangeVenue       IntentKind = "CHANGE_VENUE"
	IntentAssignStaff       IntentKind = "ASSIGN_STAFF"
	IntentCreateProgram     IntentKind = "CREATE_PROGRAM"
)

// IntentKinds lists every kind in application precedence order.
var IntentKinds = []IntentKind{
	IntentAddParticipant,
	IntentRemoveParticipant,
	IntentAssignStaff,
	IntentChangeVenue,
	IntentModifyTime,
	IntentCreateProgram,
}

// Valid reports whether k is a known kind.
func (k IntentKind) Valid() bool {
	for _, known := range IntentKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Precedence orders kinds for application: participant, staff, venue and
// time changes come before program-level changes.
func (k IntentKind) Precedence() int {
	for i, known := range IntentKinds {
		if k == known {
			return i
		}
	}
	return len(IntentKinds)
}

// Intent is a persistent rule change effective from Start until End.
type Intent struct {
	ID            string
	Kind          IntentKind
	ProgramID     string
	ParticipantID string
	StaffID       string
	VehicleID     string
	VenueID       string
	Start         time.Time
	End           *time.Time
	Payload       Payload
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Interval returns the effective date range of the intent.
func (in Intent) Interval() Interval { return NewInterval(in.Start, in.End) }

// ActiveOn reports whether the intent covers date d.
func (in Intent) ActiveOn(d time.Time) bool { return in.Interval().Contains(d) }

// Key identifies the conflict scope of an intent.
type IntentKey struct {
	Kind          IntentKind
	ProgramID     string
	ParticipantID string
	StaffID       string
}

// Payload is the kind-specific body of an Intent.
type Payload interface {
	Kind() IntentKind
}

// AddParticipantPayload enrols a participant on a program.
type AddParticipantPayload struct {
	BillingCode string  `json:"billing_code"`
	Hours       float64 `json:"hours"`
}

func (AddParticipantPayload) Kind() IntentKind { return IntentAddParticipant }

// RemoveParticipantPayload withdraws a participant from a program.
type RemoveParticipantPayload struct {
	Reason string `json:"reason,omitempty"`
}

func (RemoveParticipantPayload) Kind() IntentKind { return IntentRemoveParticipant }

// ModifyTimePayload moves the program's time slot.
type ModifyTimePayload struct {
	StartTime   TimeOfDay `json:"start_time"`
	EndTime     TimeOfDay `json:"end_time"`
	PickupTime  TimeOfDay `json:"pickup_time,omitempty"`
	DropoffTime TimeOfDay `json:"dropoff_time,omitempty"`
}

func (ModifyTimePayload) Kind() IntentKind { return IntentModifyTime }

// ChangeVenuePayload moves the program to the intent's venue.
type ChangeVenuePayload struct {
	Notes string `json:"notes,omitempty"`
}

func (ChangeVenuePayload) Kind() IntentKind { return IntentChangeVenue }

// AssignmentStrategy controls how a pinned staff member is used.
type AssignmentStrategy string

const (
	// StrategyFixed always places the staff member on the instance.
	StrategyFixed AssignmentStrategy = "fixed"
	// StrategyPreferred ranks the staff member first but lets hard
	// constraints drop them.
	StrategyPreferred AssignmentStrategy = "preferred"
)

// AssignStaffPayload pins a staff member to a program.
type AssignStaffPayload struct {
	Role     ShiftRole          `json:"role,omitempty"`
	Strategy AssignmentStrategy `json:"strategy,omitempty"`
}

func (AssignStaffPayload) Kind() IntentKind { return IntentAssignStaff }

// CreateProgramPayload defines a new recurring program.
type CreateProgramPayload struct {
	Name           string               `json:"name"`
	StartTime      TimeOfDay            `json:"start_time"`
	EndTime        TimeOfDay            `json:"end_time"`
	PickupTime     TimeOfDay            `json:"pickup_time,omitempty"`
	DropoffTime    TimeOfDay            `json:"dropoff_time,omitempty"`
	Repeat         RepeatPattern        `json:"repeat"`
	Participants   []ProgramParticipant `json:"participants,omitempty"`
	StaffIDs       []string             `json:"staff_ids,omitempty"`
	VehicleIDs     []string             `json:"vehicle_ids,omitempty"`
	Qualifications []string             `json:"qualifications,omitempty"`
}

func (CreateProgramPayload) Kind() IntentKind { return IntentCreateProgram }

// DecodePayload decodes raw JSON into the payload type matching kind. An
// empty body yields the zero payload of that kind.
func DecodePayload(kind IntentKind, raw []byte) (Payload, error) {
	var p Payload
	switch kind {
	case IntentAddParticipant:
		var v AddParticipantPayload
		if err := unmarshalOptional(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case IntentRemoveParticipant:
		var v RemoveParticipantPayload
		if err := unmarshalOptional(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case IntentModifyTime:
		var v ModifyTimePayload
		if err := unmarshalOptional(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case IntentChangeVenue:
		var v ChangeVenuePayload
		if err := unmarshalOptional(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case IntentAssignStaff:
		var v AssignStaffPayload
		if err := unmarshalOptional(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case IntentCreateProgram:
		var v CreateProgramPayload
		if err := unmarshalOptional(raw, &v); err != nil {
			return nil, err
		}
		p = v
	default:
		return nil, fmt.Errorf("unknown intent kind %q", kind)
	}
	return p, nil
}

func unmarshalOptional(raw []byte, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
