// Package catalog loads reference data (programs, participants, staff,
// vehicles, venues and billing codes) from YAML and upserts it into a store.
package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
)

type ProgramParticipantDef struct {
	ParticipantID string  `yaml:"participant_id"`
	BillingCode   string  `yaml:"billing_code"`
	Hours         float64 `yaml:"hours"`
}

type ProgramDef struct {
	ID             string                  `yaml:"id"`
	Name           string                  `yaml:"name"`
	VenueID        string                  `yaml:"venue_id"`
	StartTime      string                  `yaml:"start_time"`
	EndTime        string                  `yaml:"end_time"`
	PickupTime     string                  `yaml:"pickup_time,omitempty"`
	DropoffTime    string                  `yaml:"dropoff_time,omitempty"`
	Weekdays       []string                `yaml:"weekdays"`
	IntervalWeeks  int                     `yaml:"interval_weeks,omitempty"`
	StartDate      string                  `yaml:"start_date"`
	EndDate        string                  `yaml:"end_date,omitempty"`
	Participants   []ProgramParticipantDef `yaml:"participants"`
	StaffIDs       []string                `yaml:"staff_ids,omitempty"`
	VehicleIDs     []string                `yaml:"vehicle_ids,omitempty"`
	Qualifications []string                `yaml:"qualifications,omitempty"`
	Inactive       bool                    `yaml:"inactive,omitempty"`
}

func (p ProgramDef) ToModel() (model.Program, error) {
	start, err := model.ParseDate(p.StartDate)
	if err != nil {
		return model.Program{}, fmt.Errorf("program %s: start_date: %w", p.ID, err)
	}
	out := model.Program{
		ID:             p.ID,
		Name:           p.Name,
		VenueID:        p.VenueID,
		StartTime:      model.TimeOfDay(p.StartTime),
		EndTime:        model.TimeOfDay(p.EndTime),
		PickupTime:     model.TimeOfDay(p.PickupTime),
		DropoffTime:    model.TimeOfDay(p.DropoffTime),
		Repeat:         model.RepeatPattern{IntervalWeeks: p.IntervalWeeks},
		StartDate:      start,
		StaffIDs:       p.StaffIDs,
		VehicleIDs:     p.VehicleIDs,
		Qualifications: p.Qualifications,
		Active:         !p.Inactive,
	}
	if p.EndDate != "" {
		end, err := model.ParseDate(p.EndDate)
		if err != nil {
			return model.Program{}, fmt.Errorf("program %s: end_date: %w", p.ID, err)
		}
		out.EndDate = &end
	}
	for _, d := range p.Weekdays {
		wd, err := ParseWeekday(d)
		if err != nil {
			return model.Program{}, fmt.Errorf("program %s: %w", p.ID, err)
		}
		out.Repeat.Weekdays = append(out.Repeat.Weekdays, wd)
	}
	for _, pp := range p.Participants {
		out.Participants = append(out.Participants, model.ProgramParticipant{
			ParticipantID: pp.ParticipantID,
			BillingCode:   pp.BillingCode,
			Hours:         pp.Hours,
		})
	}
	for _, t := range []model.TimeOfDay{out.StartTime, out.EndTime} {
		if !t.Valid() {
			return model.Program{}, fmt.Errorf("program %s: invalid time %q", p.ID, t)
		}
	}
	return out, nil
}

type ParticipantDef struct {
	ID                 string         `yaml:"id"`
	Name               string         `yaml:"name"`
	SupervisionWeight  float64        `yaml:"supervision_weight,omitempty"`
	Wheelchair         bool           `yaml:"wheelchair,omitempty"`
	NeedsTransport     bool           `yaml:"needs_transport,omitempty"`
	Location           model.Location `yaml:"location"`
	DefaultBillingCode string         `yaml:"default_billing_code,omitempty"`
	Inactive           bool           `yaml:"inactive,omitempty"`
}

func (p ParticipantDef) ToModel() model.Participant {
	return model.Participant{
		ID:                 p.ID,
		Name:               p.Name,
		SupervisionWeight:  p.SupervisionWeight,
		Wheelchair:         p.Wheelchair,
		NeedsTransport:     p.NeedsTransport,
		Location:           p.Location,
		DefaultBillingCode: p.DefaultBillingCode,
		Active:             !p.Inactive,
	}
}

type AvailabilityDef struct {
	Weekday string `yaml:"weekday"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
}

type StaffDef struct {
	ID                  string            `yaml:"id"`
	Name                string            `yaml:"name"`
	ClassificationLevel int               `yaml:"classification_level,omitempty"`
	HourlyRate          float64           `yaml:"hourly_rate,omitempty"`
	Qualifications      []string          `yaml:"qualifications,omitempty"`
	CanLead             bool              `yaml:"can_lead,omitempty"`
	CanDrive            bool              `yaml:"can_drive,omitempty"`
	Availability        []AvailabilityDef `yaml:"availability,omitempty"`
	Inactive            bool              `yaml:"inactive,omitempty"`
}

func (s StaffDef) ToModel() (model.Staff, error) {
	out := model.Staff{
		ID:                  s.ID,
		Name:                s.Name,
		ClassificationLevel: s.ClassificationLevel,
		HourlyRate:          s.HourlyRate,
		Qualifications:      s.Qualifications,
		CanLead:             s.CanLead,
		CanDrive:            s.CanDrive,
		Active:              !s.Inactive,
	}
	for _, a := range s.Availability {
		wd, err := ParseWeekday(a.Weekday)
		if err != nil {
			return model.Staff{}, fmt.Errorf("staff %s: %w", s.ID, err)
		}
		out.Availability = append(out.Availability, model.AvailabilityWindow{
			Weekday: wd,
			Start:   model.TimeOfDay(a.Start),
			End:     model.TimeOfDay(a.End),
		})
	}
	return out, nil
}

type VehicleDef struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	Seats            int    `yaml:"seats"`
	WheelchairSpaces int    `yaml:"wheelchair_spaces,omitempty"`
	Inactive         bool   `yaml:"inactive,omitempty"`
}

func (v VehicleDef) ToModel() model.Vehicle {
	return model.Vehicle{
		ID:               v.ID,
		Name:             v.Name,
		Seats:            v.Seats,
		WheelchairSpaces: v.WheelchairSpaces,
		Active:           !v.Inactive,
	}
}

type VenueDef struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Address  string         `yaml:"address,omitempty"`
	Location model.Location `yaml:"location"`
}

type BillingCodeDef struct {
	Code        string  `yaml:"code"`
	Description string  `yaml:"description,omitempty"`
	HourlyRate  float64 `yaml:"hourly_rate"`
}

// Catalog is the YAML document accepted by the seed command.
type Catalog struct {
	BillingCodes []BillingCodeDef `yaml:"billing_codes"`
	Venues       []VenueDef       `yaml:"venues"`
	Participants []ParticipantDef `yaml:"participants"`
	Staff        []StaffDef       `yaml:"staff"`
	Vehicles     []VehicleDef     `yaml:"vehicles"`
	Programs     []ProgramDef     `yaml:"programs"`
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Counts reports how many records Apply wrote per kind.
type Counts struct {
	BillingCodes int
	Venues       int
	Participants int
	Staff        int
	Vehicles     int
	Programs     int
}

// Apply upserts the catalog. Dependencies are written first so programs
// always reference existing rows.
func (c *Catalog) Apply(ctx context.Context, s store.CatalogStore) (Counts, error) {
	var n Counts
	for _, b := range c.BillingCodes {
		if err := s.UpsertBillingCode(ctx, model.BillingCode{Code: b.Code, Description: b.Description, HourlyRate: b.HourlyRate}); err != nil {
			return n, fmt.Errorf("billing code %s: %w", b.Code, err)
		}
		n.BillingCodes++
	}
	for _, v := range c.Venues {
		if err := s.UpsertVenue(ctx, model.Venue{ID: v.ID, Name: v.Name, Address: v.Address, Location: v.Location}); err != nil {
			return n, fmt.Errorf("venue %s: %w", v.ID, err)
		}
		n.Venues++
	}
	for _, p := range c.Participants {
		if err := s.UpsertParticipant(ctx, p.ToModel()); err != nil {
			return n, fmt.Errorf("participant %s: %w", p.ID, err)
		}
		n.Participants++
	}
	for _, def := range c.Staff {
		st, err := def.ToModel()
		if err != nil {
			return n, err
		}
		if err := s.UpsertStaff(ctx, st); err != nil {
			return n, fmt.Errorf("staff %s: %w", def.ID, err)
		}
		n.Staff++
	}
	for _, def := range c.Vehicles {
		v := def.ToModel()
		if err := v.Validate(); err != nil {
			return n, err
		}
		if err := s.UpsertVehicle(ctx, v); err != nil {
			return n, fmt.Errorf("vehicle %s: %w", def.ID, err)
		}
		n.Vehicles++
	}
	for _, def := range c.Programs {
		p, err := def.ToModel()
		if err != nil {
			return n, err
		}
		if err := s.UpsertProgram(ctx, p); err != nil {
			return n, fmt.Errorf("program %s: %w", def.ID, err)
		}
		n.Programs++
	}
	return n, nil
}

// ProgramIDs lists the ids of the catalog's programs.
func (c *Catalog) ProgramIDs() []string {
	ids := make([]string, len(c.Programs))
	for i, p := range c.Programs {
		ids[i] = p.ID
	}
	return ids
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if key == name || key == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
