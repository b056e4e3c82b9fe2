package api

import (
	"time"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/roller"
)

type intentView struct {
	ID            string           `json:"id"`
	Kind          model.IntentKind `json:"kind"`
	ProgramID     string           `json:"program_id,omitempty"`
	ParticipantID string           `json:"participant_id,omitempty"`
	StaffID       string           `json:"staff_id,omitempty"`
	VehicleID     string           `json:"vehicle_id,omitempty"`
	VenueID       string           `json:"venue_id,omitempty"`
	Start         string           `json:"start_date"`
	End           *string          `json:"end_date"`
	Payload       model.Payload    `json:"payload,omitempty"`
	CreatedBy     string           `json:"created_by,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func newIntentView(in model.Intent) intentView {
	return intentView{
		ID:            in.ID,
		Kind:          in.Kind,
		ProgramID:     in.ProgramID,
		ParticipantID: in.ParticipantID,
		StaffID:       in.StaffID,
		VehicleID:     in.VehicleID,
		VenueID:       in.VenueID,
		Start:         model.FormatDate(in.Start),
		End:           formatOptional(in.End),
		Payload:       in.Payload,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     in.CreatedAt,
		UpdatedAt:     in.UpdatedAt,
	}
}

type deletedView struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type exceptionView struct {
	ID            string                 `json:"id"`
	Kind          model.ExceptionKind    `json:"kind"`
	ProgramID     string                 `json:"program_id"`
	ParticipantID string                 `json:"participant_id,omitempty"`
	Date          string                 `json:"date"`
	Details       model.ExceptionDetails `json:"details"`
	CreatedBy     string                 `json:"created_by,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

func newExceptionView(ex model.Exception) exceptionView {
	return exceptionView{
		ID:            ex.ID,
		Kind:          ex.Kind,
		ProgramID:     ex.ProgramID,
		ParticipantID: ex.ParticipantID,
		Date:          model.FormatDate(ex.Date),
		Details:       ex.Details,
		CreatedBy:     ex.CreatedBy,
		CreatedAt:     ex.CreatedAt,
	}
}

type windowView struct {
	Today string `json:"today"`
	Weeks int    `json:"weeks"`
	// End is exclusive.
	End string `json:"end"`
}

func newWindowView(w model.WindowContext) windowView {
	return windowView{Today: model.FormatDate(w.Today), Weeks: w.Weeks, End: model.FormatDate(w.End)}
}

type rollView struct {
	Window     windowView `json:"window"`
	Processed  int        `json:"processed"`
	Skipped    int        `json:"skipped"`
	Removed    int        `json:"removed"`
	Failed     int        `json:"failed"`
	Pruned     int        `json:"pruned"`
	Errors     []string   `json:"errors,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

func newRollView(r roller.RollReport) rollView {
	v := rollView{
		Window:     newWindowView(r.Window),
		Processed:  r.Processed,
		Skipped:    r.Skipped,
		Removed:    r.Removed,
		Failed:     r.Failed,
		Pruned:     r.Pruned,
		DurationMS: r.Duration.Milliseconds(),
	}
	for _, err := range r.Errors {
		v.Errors = append(v.Errors, err.Error())
	}
	return v
}

type instanceView struct {
	ID            string                        `json:"id"`
	ProgramID     string                        `json:"program_id"`
	ProgramName   string                        `json:"program_name"`
	Date          string                        `json:"date"`
	StartTime     model.TimeOfDay               `json:"start_time"`
	EndTime       model.TimeOfDay               `json:"end_time"`
	PickupTime    model.TimeOfDay               `json:"pickup_time,omitempty"`
	DropoffTime   model.TimeOfDay               `json:"dropoff_time,omitempty"`
	VenueID       string                        `json:"venue_id"`
	Status        model.InstanceStatus          `json:"status"`
	Stage         model.Stage                   `json:"stage"`
	CardsDirty    bool                          `json:"cards_dirty"`
	Overridden    bool                          `json:"overridden"`
	Rules         []string                      `json:"rules,omitempty"`
	Participants  []model.ParticipantAllocation `json:"participants"`
	Shifts        []model.StaffShift            `json:"shifts"`
	Runs          []model.VehicleRun            `json:"runs"`
	RequiredStaff int                           `json:"required_staff"`
	RouteMinutes  float64                       `json:"route_minutes"`
	Financials    model.Financials              `json:"financials"`
	Shortfalls    []model.ShortfallWarning      `json:"shortfalls,omitempty"`
	UpdatedAt     time.Time                     `json:"updated_at"`
}

func newInstanceView(i model.Instance) instanceView {
	return instanceView{
		ID:            i.ID,
		ProgramID:     i.ProgramID,
		ProgramName:   i.ProgramName,
		Date:          model.FormatDate(i.Date),
		StartTime:     i.StartTime,
		EndTime:       i.EndTime,
		PickupTime:    i.PickupTime,
		DropoffTime:   i.DropoffTime,
		VenueID:       i.VenueID,
		Status:        i.Status,
		Stage:         i.Stage,
		CardsDirty:    i.CardsDirty,
		Overridden:    i.Overridden,
		Rules:         i.Rules,
		Participants:  i.Participants,
		Shifts:        i.Shifts,
		Runs:          i.Runs,
		RequiredStaff: i.RequiredStaff,
		RouteMinutes:  i.RouteMinutes,
		Financials:    i.Financials,
		Shortfalls:    i.Shortfalls,
		UpdatedAt:     i.UpdatedAt,
	}
}

type cardView struct {
	ID             string          `json:"id"`
	InstanceID     string          `json:"instance_id"`
	ProgramID      string          `json:"program_id"`
	Date           string          `json:"date"`
	Type           model.CardType  `json:"type"`
	Sequence       int             `json:"sequence"`
	StartTime      model.TimeOfDay `json:"start_time,omitempty"`
	EndTime        model.TimeOfDay `json:"end_time,omitempty"`
	Location       string          `json:"location,omitempty"`
	ParticipantIDs []string        `json:"participant_ids"`
	StaffIDs       []string        `json:"staff_ids"`
	VehicleID      string          `json:"vehicle_id,omitempty"`
	Flagged        bool            `json:"flagged"`
	Meta           model.CardMeta  `json:"meta"`
}

func newCardViews(cards []model.Card) []cardView {
	out := make([]cardView, len(cards))
	for i, c := range cards {
		out[i] = cardView{
			ID:             c.ID,
			InstanceID:     c.InstanceID,
			ProgramID:      c.ProgramID,
			Date:           model.FormatDate(c.Date),
			Type:           c.Type,
			Sequence:       c.Sequence,
			StartTime:      c.StartTime,
			EndTime:        c.EndTime,
			Location:       c.Location,
			ParticipantIDs: c.ParticipantIDs,
			StaffIDs:       c.StaffIDs,
			VehicleID:      c.VehicleID,
			Flagged:        c.Flagged,
			Meta:           c.Meta,
		}
	}
	return out
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := model.FormatDate(*t)
	return &s
}
