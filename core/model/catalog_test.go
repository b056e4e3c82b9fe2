package model

import (
	"testing"
	"time"
)

func TestProgramOccursOn(t *testing.T) {
	p := Program{
		ID:        "p1",
		StartDate: d("2025-01-06"), // Monday
		Repeat:    RepeatPattern{Weekdays: []time.Weekday{time.Monday, time.Wednesday}},
		Active:    true,
	}
	if !p.OccursOn(d("2025-01-08")) {
		t.Fatalf("expected wednesday occurrence")
	}
	if p.OccursOn(d("2025-01-07")) {
		t.Fatalf("tuesday should not occur")
	}
	if p.OccursOn(d("2024-12-30")) {
		t.Fatalf("dates before start must not occur")
	}

	p.Repeat = RepeatPattern{IntervalWeeks: 2}
	if !p.OccursOn(d("2025-01-20")) {
		t.Fatalf("expected fortnightly occurrence")
	}
	if p.OccursOn(d("2025-01-13")) {
		t.Fatalf("off week should not occur")
	}

	p.EndDate = dp("2025-01-20")
	if p.OccursOn(d("2025-01-20")) {
		t.Fatalf("end date is exclusive")
	}
	p.Active = false
	if p.OccursOn(d("2025-01-06")) {
		t.Fatalf("inactive program should not occur")
	}
}

func TestStaffAvailability(t *testing.T) {
	s := Staff{Qualifications: []string{"first_aid", "manual_handling"}}
	if !s.HasQualifications([]string{"first_aid"}) {
		t.Fatalf("expected qualification match")
	}
	if s.HasQualifications([]string{"driver"}) {
		t.Fatalf("unexpected qualification match")
	}
	if !s.AvailableFor(time.Monday, 540, 720) {
		t.Fatalf("staff without windows is always available")
	}
	s.Availability = []AvailabilityWindow{{Weekday: time.Monday, Start: "08:00", End: "13:00"}}
	if !s.AvailableFor(time.Monday, 540, 720) {
		t.Fatalf("expected availability inside window")
	}
	if s.AvailableFor(time.Monday, 540, 800) {
		t.Fatalf("shift past window end accepted")
	}
	if s.AvailableFor(time.Tuesday, 540, 720) {
		t.Fatalf("wrong weekday accepted")
	}
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload(IntentAddParticipant, []byte(`{"billing_code":"SUP01","hours":3}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	add, ok := p.(AddParticipantPayload)
	if !ok || add.BillingCode != "SUP01" || add.Hours != 3 {
		t.Fatalf("unexpected payload %#v", p)
	}
	if _, err := DecodePayload(IntentModifyTime, nil); err != nil {
		t.Fatalf("empty body should decode: %v", err)
	}
	if _, err := DecodePayload("BOGUS", nil); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
