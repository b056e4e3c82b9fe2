package model

import "time"

// InstanceStatus is the operator-facing lifecycle of an instance.
type InstanceStatus string

const (
	StatusDraft     InstanceStatus = "draft"
	StatusConfirmed InstanceStatus = "confirmed"
	StatusFinalised InstanceStatus = "finalised"
)

// Valid reports whether s is a known status.
func (s InstanceStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusConfirmed, StatusFinalised:
		return true
	}
	return false
}

// Stage tracks how far the roll pipeline got for an instance.
type Stage string

const (
	StageMaterialized   Stage = "MATERIALIZED"
	StageAllocated      Stage = "ALLOCATED"
	StageCardsGenerated Stage = "CARDS_GENERATED"
)

// AllocationStatus is carried by every child row of an instance.
type AllocationStatus string

const (
	AllocationConfirmed AllocationStatus = "CONFIRMED"
	AllocationPlanned   AllocationStatus = "PLANNED"
	AllocationCancelled AllocationStatus = "CANCELLED"
)

// ShiftRole is the function a staff member fills on an instance.
type ShiftRole string

const (
	RoleLead    ShiftRole = "LEAD"
	RoleSupport ShiftRole = "SUPPORT"
)

// Direction of a vehicle run.
type Direction string

const (
	DirectionPickup  Direction = "PICKUP"
	DirectionDropoff Direction = "DROPOFF"
)

// ParticipantAllocation is confirmed attendance of one participant.
type ParticipantAllocation struct {
	ParticipantID  string           `json:"participant_id"`
	BillingCode    string           `json:"billing_code"`
	Hours          float64          `json:"hours"`
	Weight         float64          `json:"weight"`
	NeedsTransport bool             `json:"needs_transport"`
	Wheelchair     bool             `json:"wheelchair"`
	Status         AllocationStatus `json:"status"`
}

// Attending reports whether the allocation counts towards the instance.
func (a ParticipantAllocation) Attending() bool { return a.Status != AllocationCancelled }

// StaffPin records a staff member explicitly assigned by an intent.
type StaffPin struct {
	StaffID  string             `json:"staff_id"`
	Role     ShiftRole          `json:"role,omitempty"`
	Strategy AssignmentStrategy `json:"strategy,omitempty"`
	IntentID string             `json:"intent_id"`
}

// StaffShift is a staff work block on an instance.
type StaffShift struct {
	StaffID string           `json:"staff_id"`
	Role    ShiftRole        `json:"role"`
	Start   TimeOfDay        `json:"start"`
	End     TimeOfDay        `json:"end"`
	PayRate float64          `json:"pay_rate"`
	Pinned  bool             `json:"pinned"`
	Status  AllocationStatus `json:"status"`
}

// Hours returns the shift duration in hours.
func (s StaffShift) Hours() float64 { return Span(s.Start, s.End).Hours() }

// VehicleRun is one vehicle leg carrying a manifest of participants.
type VehicleRun struct {
	VehicleID        string           `json:"vehicle_id"`
	DriverID         string           `json:"driver_id,omitempty"`
	Direction        Direction        `json:"direction"`
	Sequence         int              `json:"sequence"`
	Start            TimeOfDay        `json:"start,omitempty"`
	End              TimeOfDay        `json:"end,omitempty"`
	Manifest         []string         `json:"manifest"`
	EstimatedMinutes float64          `json:"estimated_minutes"`
	Status           AllocationStatus `json:"status"`
}

// Financials is the per-instance cost snapshot.
type Financials struct {
	Revenue    float64 `json:"revenue"`
	StaffCost  float64 `json:"staff_cost"`
	AdminCost  float64 `json:"admin_cost"`
	ProfitLoss float64 `json:"profit_loss"`
	Margin     float64 `json:"margin"`
}

// Instance is the materialized occurrence of a program on a date.
type Instance struct {
	ID             string
	ProgramID      string
	ProgramName    string
	Date           time.Time
	StartTime      TimeOfDay
	EndTime        TimeOfDay
	PickupTime     TimeOfDay
	DropoffTime    TimeOfDay
	VenueID        string
	Qualifications []string
	Status         InstanceStatus
	Stage          Stage
	Stale          bool
	CardsDirty     bool
	Overridden     bool
	Rules          []string
	Pins           []StaffPin
	VehicleIDs     []string
	Participants   []ParticipantAllocation
	Shifts         []StaffShift
	Runs           []VehicleRun
	RequiredStaff  int
	RouteMinutes   float64
	Financials     Financials
	Shortfalls     []ShortfallWarning
	UpdatedAt      time.Time
}

// Attending returns the participants that count towards the instance.
func (i Instance) Attending() []ParticipantAllocation {
	out := make([]ParticipantAllocation, 0, len(i.Participants))
	for _, p := range i.Participants {
		if p.Attending() {
			out = append(out, p)
		}
	}
	return out
}

// RunsFor returns the runs of one direction in sequence order.
func (i Instance) RunsFor(dir Direction) []VehicleRun {
	var out []VehicleRun
	for _, r := range i.Runs {
		if r.Direction == dir {
			out = append(out, r)
		}
	}
	return out
}

// Flagged reports whether the instance needs operator attention.
func (i Instance) Flagged() bool { return i.Overridden || len(i.Shortfalls) > 0 }
