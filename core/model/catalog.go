package model

import (
	"slices"
	"time"
)

// RepeatPattern describes on which dates a program recurs. An empty Weekdays
// list means the weekday of the anchor date.
type RepeatPattern struct {
	Weekdays      []time.Weekday `json:"weekdays,omitempty"`
	IntervalWeeks int            `json:"interval_weeks,omitempty"`
}

// ProgramParticipant is a default attendee of a program.
type ProgramParticipant struct {
	ParticipantID string  `json:"participant_id"`
	BillingCode   string  `json:"billing_code"`
	Hours         float64 `json:"hours"`
}

// Program is the base definition from which instances are materialized.
type Program struct {
	ID             string
	Name           string
	VenueID        string
	StartTime      TimeOfDay
	EndTime        TimeOfDay
	PickupTime     TimeOfDay
	DropoffTime    TimeOfDay
	Repeat         RepeatPattern
	StartDate      time.Time
	EndDate        *time.Time
	Participants   []ProgramParticipant
	StaffIDs       []string
	VehicleIDs     []string
	Qualifications []string
	Active         bool
	SourceIntentID string
}

// OccursOn reports whether the program has an occurrence on date d.
func (p Program) OccursOn(d time.Time) bool {
	d = Day(d)
	if !p.Active || !NewInterval(p.StartDate, p.EndDate).Contains(d) {
		return false
	}
	days := p.Repeat.Weekdays
	if len(days) == 0 {
		days = []time.Weekday{p.StartDate.Weekday()}
	}
	if !slices.Contains(days, d.Weekday()) {
		return false
	}
	interval := p.Repeat.IntervalWeeks
	if interval <= 1 {
		return true
	}
	anchor := Day(p.StartDate)
	anchor = anchor.AddDate(0, 0, -int(anchor.Weekday()))
	weeks := int(d.Sub(anchor).Hours()/24) / 7
	return weeks%interval == 0
}

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Participant is a person attending programs.
type Participant struct {
	ID                 string
	Name               string
	SupervisionWeight  float64
	Wheelchair         bool
	NeedsTransport     bool
	Location           Location
	DefaultBillingCode string
	Active             bool
}

// Weight returns the supervision weight, defaulting to 1.
func (p Participant) Weight() float64 {
	if p.SupervisionWeight <= 0 {
		return 1
	}
	return p.SupervisionWeight
}

// AvailabilityWindow is a weekly slot in which a staff member can work.
type AvailabilityWindow struct {
	Weekday time.Weekday `json:"weekday" yaml:"weekday"`
	Start   TimeOfDay    `json:"start" yaml:"start"`
	End     TimeOfDay    `json:"end" yaml:"end"`
}

// Covers reports whether the window contains [start, end) on weekday.
func (w AvailabilityWindow) Covers(weekday time.Weekday, start, end int) bool {
	if w.Weekday != weekday {
		return false
	}
	ws, err := w.Start.Minutes()
	if err != nil {
		return false
	}
	we, err := w.End.Minutes()
	if err != nil {
		return false
	}
	return ws <= start && end <= we
}

// Staff is a worker that can be rostered onto instances.
type Staff struct {
	ID                  string
	Name                string
	ClassificationLevel int
	HourlyRate          float64
	Qualifications      []string
	CanLead             bool
	CanDrive            bool
	Availability        []AvailabilityWindow
	Active              bool
}

// HasQualifications reports whether s holds every required qualification.
func (s Staff) HasQualifications(required []string) bool {
	for _, q := range required {
		if !slices.Contains(s.Qualifications, q) {
			return false
		}
	}
	return true
}

// AvailableFor reports whether s can work [start, end) minutes on weekday.
// Staff without declared windows are always available.
func (s Staff) AvailableFor(weekday time.Weekday, start, end int) bool {
	if len(s.Availability) == 0 {
		return true
	}
	for _, w := range s.Availability {
		if w.Covers(weekday, start, end) {
			return true
		}
	}
	return false
}

// Venue is where an activity takes place.
type Venue struct {
	ID       string
	Name     string
	Address  string
	Location Location
}

// BillingCode prices participant attendance per hour.
type BillingCode struct {
	Code        string
	Description string
	HourlyRate  float64
}
