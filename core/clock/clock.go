// Package clock answers "what day is it" in the service time zone.
package clock

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/kilianp07/loom/core/model"
)

// Clock returns the current time in the operating region.
type Clock interface {
	Now() time.Time
	// Today is the current calendar date as a UTC midnight.
	Today() time.Time
}

type zoneClock struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Clock for the named IANA zone. An empty name means UTC.
func New(zone string) (Clock, error) {
	loc := time.UTC
	if zone != "" {
		l, err := time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %s: %w", zone, err)
		}
		loc = l
	}
	return zoneClock{loc: loc, now: time.Now}, nil
}

func (c zoneClock) Now() time.Time   { return c.now().In(c.loc) }
func (c zoneClock) Today() time.Time { return model.Day(c.Now()) }

// Fixed is a Clock frozen at a given instant, used by tests and replays.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time   { return f.At }
func (f Fixed) Today() time.Time { return model.Day(f.At) }
