package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
)

type exceptionRequest struct {
	Kind          model.ExceptionKind    `json:"kind"`
	ProgramID     string                 `json:"program_id"`
	ParticipantID string                 `json:"participant_id"`
	Date          string                 `json:"date"`
	Details       model.ExceptionDetails `json:"details"`
	CreatedBy     string                 `json:"created_by"`
}

func (s *Server) createException(w http.ResponseWriter, r *http.Request) {
	var req exceptionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.rules.CreateException(r.Context(), model.Exception{
		Kind:          req.Kind,
		ProgramID:     req.ProgramID,
		ParticipantID: req.ParticipantID,
		Date:          date,
		Details:       req.Details,
		CreatedBy:     req.CreatedBy,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newExceptionView(created))
}

func (s *Server) listExceptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ExceptionFilter{
		ProgramID:     q.Get("program_id"),
		ParticipantID: q.Get("participant_id"),
		Kind:          model.ExceptionKind(q.Get("kind")),
	}
	if f.Kind != "" && !f.Kind.Valid() {
		s.writeError(w, r, invalid("kind", "unknown exception kind %q", f.Kind))
		return
	}
	var err error
	for name, dst := range map[string]**time.Time{"date": &f.Date, "from": &f.From, "to": &f.To} {
		if *dst, err = queryDate(r, name); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	list, err := s.rules.ListExceptions(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]exceptionView, len(list))
	for i, ex := range list {
		out[i] = newExceptionView(ex)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getException(w http.ResponseWriter, r *http.Request) {
	ex, err := s.rules.GetException(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExceptionView(ex))
}

func (s *Server) deleteException(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.rules.DeleteException(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedView{ID: id, Deleted: true})
}
