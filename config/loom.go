package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/loom/core/model"
)

// DatabaseConfig locates the sqlite store.
type DatabaseConfig struct {
	Path          string `json:"path"`
	BusyTimeoutMS int    `json:"busy_timeout_ms"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "loom.db"
	}
	if c.BusyTimeoutMS <= 0 {
		c.BusyTimeoutMS = 5000
	}
}

func (c DatabaseConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// LoomConfig drives the rolling window. WindowWeeks only seeds the settings
// table; the persisted value wins once it exists. RollAt takes precedence
// over RollInterval.
type LoomConfig struct {
	Timezone       string          `json:"timezone"`
	WindowWeeks    int             `json:"window_weeks"`
	RollInterval   time.Duration   `json:"roll_interval"`
	RollAt         model.TimeOfDay `json:"roll_at"`
	RetainPastDays int             `json:"retain_past_days"`
	RollOnStart    bool            `json:"roll_on_start"`
}

func (c *LoomConfig) SetDefaults() {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.WindowWeeks == 0 {
		c.WindowWeeks = model.DefaultWindowWeeks
	}
	// Without either setting the roll runs daily at 02:00; an explicit
	// roll_interval alone runs on that period instead.
	if c.RollAt == "" && c.RollInterval == 0 {
		c.RollAt = "02:00"
	}
	if c.RollInterval == 0 {
		c.RollInterval = 24 * time.Hour
	}
	if c.RetainPastDays == 0 {
		c.RetainPastDays = 7
	}
}

func (c LoomConfig) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if c.WindowWeeks < 1 {
		return fmt.Errorf("window_weeks must be at least 1")
	}
	if c.RollInterval < 0 {
		return fmt.Errorf("roll_interval must not be negative")
	}
	if c.RollAt != "" && !c.RollAt.Valid() {
		return fmt.Errorf("roll_at %q is not HH:MM", c.RollAt)
	}
	if c.RetainPastDays < 0 {
		return fmt.Errorf("retain_past_days must not be negative")
	}
	return nil
}

// HTTPConfig configures the REST listener.
type HTTPConfig struct {
	Addr           string        `json:"addr"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
}

func (c HTTPConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	return nil
}
