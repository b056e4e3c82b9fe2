package model

import "time"

// Interval is a half-open date range [Start, End). A nil End is unbounded.
type Interval struct {
	Start time.Time
	End   *time.Time
}

// NewInterval builds an interval, truncating both bounds to dates.
func NewInterval(start time.Time, end *time.Time) Interval {
	iv := Interval{Start: Day(start)}
	if end != nil {
		e := Day(*end)
		iv.End = &e
	}
	return iv
}

// Contains reports whether d falls inside the interval.
func (i Interval) Contains(d time.Time) bool {
	d = Day(d)
	if d.Before(i.Start) {
		return false
	}
	return i.End == nil || d.Before(*i.End)
}

// Overlaps reports whether the two intervals share at least one date.
func (i Interval) Overlaps(o Interval) bool {
	if i.End != nil && !o.Start.Before(*i.End) {
		return false
	}
	if o.End != nil && !i.Start.Before(*o.End) {
		return false
	}
	return true
}

// Intersect returns the common part of both intervals.
func (i Interval) Intersect(o Interval) (Interval, bool) {
	if !i.Overlaps(o) {
		return Interval{}, false
	}
	out := Interval{Start: i.Start}
	if o.Start.After(out.Start) {
		out.Start = o.Start
	}
	switch {
	case i.End == nil:
		out.End = o.End
	case o.End == nil:
		out.End = i.End
	case i.End.Before(*o.End):
		out.End = i.End
	default:
		out.End = o.End
	}
	return out, true
}

// Hull returns the smallest interval covering both.
func (i Interval) Hull(o Interval) Interval {
	out := Interval{Start: i.Start}
	if o.Start.Before(out.Start) {
		out.Start = o.Start
	}
	if i.End != nil && o.End != nil {
		end := *i.End
		if o.End.After(end) {
			end = *o.End
		}
		out.End = &end
	}
	return out
}

// Dates lists the dates of a bounded interval. Unbounded intervals return nil.
func (i Interval) Dates() []time.Time {
	if i.End == nil {
		return nil
	}
	return Dates(i.Start, *i.End)
}
