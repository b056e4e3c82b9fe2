package model

import (
	"fmt"
	"time"
)

// DefaultWindowWeeks is used when no window size has been persisted.
const DefaultWindowWeeks = 4

// WindowContext is a snapshot of the rolling window taken once per roll.
type WindowContext struct {
	Today time.Time
	Weeks int
	// End is exclusive.
	End time.Time
}

// NewWindowContext snapshots the window starting today.
func NewWindowContext(today time.Time, weeks int) WindowContext {
	today = Day(today)
	return WindowContext{Today: today, Weeks: weeks, End: today.AddDate(0, 0, 7*weeks)}
}

// Interval returns the window as a date interval.
func (w WindowContext) Interval() Interval {
	end := w.End
	return Interval{Start: w.Today, End: &end}
}

// Contains reports whether d falls inside the window.
func (w WindowContext) Contains(d time.Time) bool { return w.Interval().Contains(d) }

// Dates lists every date of the window.
func (w WindowContext) Dates() []time.Time { return Dates(w.Today, w.End) }

// Clip intersects iv with the window.
func (w WindowContext) Clip(iv Interval) (Interval, bool) { return iv.Intersect(w.Interval()) }

// AllocationConfig parameterises staffing, routing and costing.
type AllocationConfig struct {
	StaffRatio          float64         `json:"staff_ratio"`
	AdminOverhead       float64         `json:"admin_overhead"`
	RouteCeilingMinutes float64         `json:"route_ceiling_minutes"`
	AverageSpeedKmh     float64         `json:"average_speed_kmh"`
	StopDwellMinutes    float64         `json:"stop_dwell_minutes"`
	DefaultPayRate      float64         `json:"default_pay_rate"`
	PayRates            map[int]float64 `json:"pay_rates"`
}

// SetDefaults fills unset values.
func (c *AllocationConfig) SetDefaults() {
	if c.StaffRatio <= 0 {
		c.StaffRatio = 4
	}
	if c.AdminOverhead == 0 {
		c.AdminOverhead = 0.18
	}
	if c.RouteCeilingMinutes <= 0 {
		c.RouteCeilingMinutes = 60
	}
	if c.AverageSpeedKmh <= 0 {
		c.AverageSpeedKmh = 30
	}
	if c.StopDwellMinutes <= 0 {
		c.StopDwellMinutes = 3
	}
	if c.DefaultPayRate <= 0 {
		c.DefaultPayRate = 35
	}
}

// Validate checks value ranges.
func (c AllocationConfig) Validate() error {
	if c.StaffRatio <= 0 {
		return fmt.Errorf("staff_ratio must be positive")
	}
	if c.AdminOverhead < 0 || c.AdminOverhead >= 1 {
		return fmt.Errorf("admin_overhead must be in [0,1)")
	}
	if c.RouteCeilingMinutes <= 0 {
		return fmt.Errorf("route_ceiling_minutes must be positive")
	}
	return nil
}

// PayRate selects the hourly rate for a staff member.
func (c AllocationConfig) PayRate(s Staff) float64 {
	if s.HourlyRate > 0 {
		return s.HourlyRate
	}
	if r, ok := c.PayRates[s.ClassificationLevel]; ok {
		return r
	}
	return c.DefaultPayRate
}
