package model

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used on every boundary.
const DateLayout = "2006-01-02"

// Day returns the UTC midnight of t's calendar date in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// FormatDate renders d as YYYY-MM-DD.
func FormatDate(d time.Time) string { return d.Format(DateLayout) }

// Dates lists every calendar date in [from, to).
func Dates(from, to time.Time) []time.Time {
	from, to = Day(from), Day(to)
	var out []time.Time
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// TimeOfDay is a wall-clock time formatted as HH:MM.
type TimeOfDay string

// Minutes returns the number of minutes since midnight.
func (t TimeOfDay) Minutes() (int, error) {
	parsed, err := time.Parse("15:04", string(t))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", string(t), err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// Valid reports whether t parses as HH:MM.
func (t TimeOfDay) Valid() bool {
	_, err := t.Minutes()
	return err == nil
}

// IsZero reports whether t is unset.
func (t TimeOfDay) IsZero() bool { return t == "" }

// ClockAt converts minutes since midnight to a TimeOfDay, clamped to the day.
func ClockAt(minutes int) TimeOfDay {
	if minutes < 0 {
		minutes = 0
	}
	if minutes > 23*60+59 {
		minutes = 23*60 + 59
	}
	return TimeOfDay(fmt.Sprintf("%02d:%02d", minutes/60, minutes%60))
}

// Span returns the duration between two times of day. Invalid or inverted
// spans yield zero.
func Span(start, end TimeOfDay) time.Duration {
	s, err := start.Minutes()
	if err != nil {
		return 0
	}
	e, err := end.Minutes()
	if err != nil || e <= s {
		return 0
	}
	return time.Duration(e-s) * time.Minute
}
