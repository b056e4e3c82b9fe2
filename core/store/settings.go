package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kilianp07/loom/core/model"
)

// Setting keys.
const (
	KeyWindowWeeks         = "loom_window_weeks"
	KeyStaffRatio          = "loom_staff_ratio"
	KeyAdminOverhead       = "loom_admin_overhead"
	KeyRouteCeilingMinutes = "loom_route_ceiling_minutes"
)

// WindowWeeks reads the persisted window size, falling back to def.
func WindowWeeks(ctx context.Context, s SettingsStore, def int) (int, error) {
	v, err := s.GetSetting(ctx, KeyWindowWeeks)
	if errors.Is(err, model.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return 0, err
	}
	weeks, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("setting %s: %w", KeyWindowWeeks, err)
	}
	return weeks, nil
}

// SetWindowWeeks persists the window size.
func SetWindowWeeks(ctx context.Context, s SettingsStore, weeks int) error {
	return s.SetSetting(ctx, KeyWindowWeeks, strconv.Itoa(weeks))
}

// AllocationConfig overlays persisted allocation settings onto base.
func AllocationConfig(ctx context.Context, s SettingsStore, base model.AllocationConfig) (model.AllocationConfig, error) {
	cfg := base
	for key, dst := range map[string]*float64{
		KeyStaffRatio:          &cfg.StaffRatio,
		KeyAdminOverhead:       &cfg.AdminOverhead,
		KeyRouteCeilingMinutes: &cfg.RouteCeilingMinutes,
	} {
		v, err := s.GetSetting(ctx, key)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return cfg, err
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("setting %s: %w", key, err)
		}
		*dst = f
	}
	cfg.SetDefaults()
	return cfg, cfg.Validate()
}

// SeedSettings writes defaults for keys that are not yet present.
func SeedSettings(ctx context.Context, s SettingsStore, weeks int, cfg model.AllocationConfig) error {
	values := map[string]string{
		KeyWindowWeeks:         strconv.Itoa(weeks),
		KeyStaffRatio:          strconv.FormatFloat(cfg.StaffRatio, 'f', -1, 64),
		KeyAdminOverhead:       strconv.FormatFloat(cfg.AdminOverhead, 'f', -1, 64),
		KeyRouteCeilingMinutes: strconv.FormatFloat(cfg.RouteCeilingMinutes, 'f', -1, 64),
	}
	for k, v := range values {
		_, err := s.GetSetting(ctx, k)
		if err == nil {
			continue
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		if err := s.SetSetting(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}
