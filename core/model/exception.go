package model

import "time"

// ExceptionKind enumerates single-date overrides.
type ExceptionKind string

const (
	ExceptionParticipantCancellation ExceptionKind = "PARTICIPANT_CANCELLATION"
	ExceptionProgramCancellation     ExceptionKind = "PROGRAM_CANCELLATION"
	ExceptionOneOffChange            ExceptionKind = "ONE_OFF_CHANGE"
)

// ExceptionKinds lists every kind in application order. Program
// cancellation runs last so it wins over every other override.
var ExceptionKinds = []ExceptionKind{
	ExceptionParticipantCancellation,
	ExceptionOneOffChange,
	ExceptionProgramCancellation,
}

// Valid reports whether k is a known kind.
func (k ExceptionKind) Valid() bool {
	for _, known := range ExceptionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Precedence orders exceptions for application.
func (k ExceptionKind) Precedence() int {
	for i, known := range ExceptionKinds {
		if k == known {
			return i
		}
	}
	return len(ExceptionKinds)
}

// ExceptionDetails carries the overridden fields of a OneOffChange.
type ExceptionDetails struct {
	StartTime TimeOfDay `json:"start_time,omitempty"`
	EndTime   TimeOfDay `json:"end_time,omitempty"`
	VenueID   string    `json:"venue_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Empty reports whether no field is overridden.
func (d ExceptionDetails) Empty() bool {
	return d.StartTime == "" && d.EndTime == "" && d.VenueID == ""
}

// Exception is a one-off override for exactly one date.
type Exception struct {
	ID            string
	Kind          ExceptionKind
	ProgramID     string
	ParticipantID string
	Date          time.Time
	Details       ExceptionDetails
	CreatedBy     string
	CreatedAt     time.Time
}
