package model

import "time"

// CardType is the UI role of a card.
type CardType string

const (
	CardMaster   CardType = "MASTER"
	CardPickup   CardType = "PICKUP"
	CardActivity CardType = "ACTIVITY"
	CardDropoff  CardType = "DROPOFF"
	CardRoster   CardType = "ROSTER"
)

// CardMeta holds display details that do not drive queries.
type CardMeta struct {
	Title            string    `json:"title,omitempty"`
	Role             ShiftRole `json:"role,omitempty"`
	RequiredStaff    int       `json:"required_staff,omitempty"`
	ExtraStaffIDs    []string  `json:"extra_staff_ids,omitempty"`
	EstimatedMinutes float64   `json:"estimated_minutes,omitempty"`
	Notes            []string  `json:"notes,omitempty"`
}

// Card is a disposable UI projection of an instance.
type Card struct {
	ID             string
	InstanceID     string
	ProgramID      string
	Date           time.Time
	Type           CardType
	Sequence       int
	StartTime      TimeOfDay
	EndTime        TimeOfDay
	Location       string
	ParticipantIDs []string
	StaffIDs       []string
	VehicleID      string
	Flagged        bool
	Meta           CardMeta
}
