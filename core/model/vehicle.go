package model

import "fmt"

// Vehicle is a bus or van used for pickup and dropoff runs.
type Vehicle struct {
	ID               string
	Name             string
	Seats            int
	WheelchairSpaces int
	Active           bool
}

// Validate checks that the vehicle configuration is sound.
// In particular Seats must be positive.
func (v Vehicle) Validate() error {
	if v.Seats <= 0 {
		return fmt.Errorf("vehicle %s: seats must be positive", v.ID)
	}
	if v.WheelchairSpaces < 0 {
		return fmt.Errorf("vehicle %s: wheelchair spaces cannot be negative", v.ID)
	}
	return nil
}

// CanCarry reports whether the vehicle fits the given seat and wheelchair
// demand. A wheelchair user occupies a wheelchair space, not a seat.
func (v Vehicle) CanCarry(seats, wheelchairs int) bool {
	return v.Active && seats <= v.Seats && wheelchairs <= v.WheelchairSpaces
}
