package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
	"github.com/kilianp07/loom/core/temporal"
)

type intentRequest struct {
	Kind          model.IntentKind `json:"kind"`
	ProgramID     string           `json:"program_id"`
	ParticipantID string           `json:"participant_id"`
	StaffID       string           `json:"staff_id"`
	VehicleID     string           `json:"vehicle_id"`
	VenueID       string           `json:"venue_id"`
	Start         string           `json:"start_date"`
	End           *string          `json:"end_date"`
	Payload       json.RawMessage  `json:"payload"`
	CreatedBy     string           `json:"created_by"`
}

func (req intentRequest) intent() (model.Intent, error) {
	v := &model.ValidationError{}
	in := model.Intent{
		Kind:          req.Kind,
		ProgramID:     req.ProgramID,
		ParticipantID: req.ParticipantID,
		StaffID:       req.StaffID,
		VehicleID:     req.VehicleID,
		VenueID:       req.VenueID,
		CreatedBy:     req.CreatedBy,
	}
	if !req.Kind.Valid() {
		v.Add("kind", "unknown intent kind %q", req.Kind)
	} else if p, err := model.DecodePayload(req.Kind, req.Payload); err != nil {
		v.Add("payload", "%v", err)
	} else {
		in.Payload = p
	}
	if req.Start == "" {
		v.Add("start_date", "is required")
	} else if d, err := model.ParseDate(req.Start); err != nil {
		v.Add("start_date", "expected YYYY-MM-DD, got %q", req.Start)
	} else {
		in.Start = d
	}
	if req.End != nil {
		if d, err := model.ParseDate(*req.End); err != nil {
			v.Add("end_date", "expected YYYY-MM-DD, got %q", *req.End)
		} else {
			in.End = &d
		}
	}
	return in, v.OrNil()
}

func (s *Server) createIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.intent()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.rules.CreateIntent(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newIntentView(created))
}

func (s *Server) listIntents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.IntentFilter{
		ProgramID:     q.Get("program_id"),
		ParticipantID: q.Get("participant_id"),
		StaffID:       q.Get("staff_id"),
		Kind:          model.IntentKind(q.Get("kind")),
	}
	if f.Kind != "" && !f.Kind.Valid() {
		s.writeError(w, r, invalid("kind", "unknown intent kind %q", f.Kind))
		return
	}
	activeOn, err := queryDate(r, "active_on")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f.ActiveOn = activeOn
	list, err := s.rules.ListIntents(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]intentView, len(list))
	for i, in := range list {
		out[i] = newIntentView(in)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getIntent(w http.ResponseWriter, r *http.Request) {
	in, err := s.rules.GetIntent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIntentView(in))
}

type intentPatch struct {
	ProgramID     *string         `json:"program_id"`
	ParticipantID *string         `json:"participant_id"`
	StaffID       *string         `json:"staff_id"`
	VehicleID     *string         `json:"vehicle_id"`
	VenueID       *string         `json:"venue_id"`
	Start         *string         `json:"start_date"`
	End           *string         `json:"end_date"`
	ClearEnd      bool            `json:"clear_end"`
	Payload       json.RawMessage `json:"payload"`
}

func (p intentPatch) update(kind model.IntentKind) (temporal.IntentUpdate, error) {
	v := &model.ValidationError{}
	u := temporal.IntentUpdate{
		ProgramID:     p.ProgramID,
		ParticipantID: p.ParticipantID,
		StaffID:       p.StaffID,
		VehicleID:     p.VehicleID,
		VenueID:       p.VenueID,
		ClearEnd:      p.ClearEnd,
	}
	date := func(field string, raw *string) *time.Time {
		if raw == nil {
			return nil
		}
		d, err := model.ParseDate(*raw)
		if err != nil {
			v.Add(field, "expected YYYY-MM-DD, got %q", *raw)
			return nil
		}
		return &d
	}
	u.Start = date("start_date", p.Start)
	u.End = date("end_date", p.End)
	if len(p.Payload) > 0 {
		payload, err := model.DecodePayload(kind, p.Payload)
		if err != nil {
			v.Add("payload", "%v", err)
		}
		u.Payload = payload
	}
	return u, v.OrNil()
}

func (s *Server) updateIntent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch intentPatch
	if err := decodeBody(r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	current, err := s.rules.GetIntent(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := patch.update(current.Kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.rules.UpdateIntent(r.Context(), id, u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIntentView(updated))
}

func (s *Server) deleteIntent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.rules.DeleteIntent(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedView{ID: id, Deleted: true})
}
