package scenarios

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/infra/catalog"
)

// IntentDef is a rule created before the roll.
type IntentDef struct {
	Kind          string         `yaml:"kind"`
	ProgramID     string         `yaml:"program_id"`
	ParticipantID string         `yaml:"participant_id"`
	StaffID       string         `yaml:"staff_id"`
	VehicleID     string         `yaml:"vehicle_id"`
	VenueID       string         `yaml:"venue_id"`
	StartDate     string         `yaml:"start_date"`
	EndDate       string         `yaml:"end_date"`
	Payload       map[string]any `yaml:"payload"`
}

func (d IntentDef) ToModel() (model.Intent, error) {
	in := model.Intent{
		Kind:          model.IntentKind(d.Kind),
		ProgramID:     d.ProgramID,
		ParticipantID: d.ParticipantID,
		StaffID:       d.StaffID,
		VehicleID:     d.VehicleID,
		VenueID:       d.VenueID,
		CreatedBy:     "scenario",
	}
	start, err := model.ParseDate(d.StartDate)
	if err != nil {
		return in, err
	}
	in.Start = start
	if d.EndDate != "" {
		end, err := model.ParseDate(d.EndDate)
		if err != nil {
			return in, err
		}
		in.End = &end
	}
	var raw []byte
	if d.Payload != nil {
		if raw, err = json.Marshal(d.Payload); err != nil {
			return in, err
		}
	}
	if in.Payload, err = model.DecodePayload(in.Kind, raw); err != nil {
		return in, err
	}
	return in, nil
}

// ExceptionDef is a one-date override created before the roll.
type ExceptionDef struct {
	Kind          string `yaml:"kind"`
	ProgramID     string `yaml:"program_id"`
	ParticipantID string `yaml:"participant_id"`
	Date          string `yaml:"date"`
	StartTime     string `yaml:"start_time"`
	EndTime       string `yaml:"end_time"`
	VenueID       string `yaml:"venue_id"`
}

func (d ExceptionDef) ToModel() (model.Exception, error) {
	date, err := model.ParseDate(d.Date)
	if err != nil {
		return model.Exception{}, err
	}
	return model.Exception{
		Kind:          model.ExceptionKind(d.Kind),
		ProgramID:     d.ProgramID,
		ParticipantID: d.ParticipantID,
		Date:          date,
		Details: model.ExceptionDetails{
			StartTime: model.TimeOfDay(d.StartTime),
			EndTime:   model.TimeOfDay(d.EndTime),
			VenueID:   d.VenueID,
		},
		CreatedBy: "scenario",
	}, nil
}

// Expected is checked after the roll.
type Expected struct {
	Instances  int     `yaml:"instances"`
	Cards      int     `yaml:"cards"`
	Shortfalls int     `yaml:"shortfalls"`
	Revenue    float64 `yaml:"revenue"`
	// Rejected counts intents and exceptions the rule store refused.
	Rejected int `yaml:"rejected"`
}

type Scenario struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Today       string          `yaml:"today"`
	WindowWeeks int             `yaml:"window_weeks"`
	Catalog     catalog.Catalog `yaml:"catalog"`
	Intents     []IntentDef     `yaml:"intents,omitempty"`
	Exceptions  []ExceptionDef  `yaml:"exceptions,omitempty"`
	Expected    Expected        `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if _, err := model.ParseDate(sc.Today); err != nil {
		return nil, fmt.Errorf("scenario %s: today: %w", sc.Name, err)
	}
	if sc.WindowWeeks == 0 {
		sc.WindowWeeks = 1
	}
	return &sc, nil
}
