package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kilianp07/loom/core/model"
	coremon "github.com/kilianp07/loom/core/monitoring"
)

// errorBody is the envelope of every failed request.
type errorBody struct {
	Error      string             `json:"error"`
	Message    string             `json:"message,omitempty"`
	Fields     []model.FieldError `json:"fields,omitempty"`
	Entity     string             `json:"entity,omitempty"`
	ExistingID string             `json:"existing_id,omitempty"`
	Retryable  bool               `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error kinds onto status codes. Anything that is
// not a validation, conflict or lookup failure is a system error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *model.ValidationError
		cerr *model.ConflictError
		serr *model.SystemError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation", Fields: verr.Fields})
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:      "conflict",
			Message:    cerr.Message,
			Entity:     cerr.Entity,
			ExistingID: cerr.ExistingID,
		})
	case model.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: err.Error()})
	default:
		retryable := errors.As(err, &serr) && serr.Retryable
		s.logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		coremon.CaptureException(err, map[string]string{
			"module":     "api",
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		})
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "system", Message: err.Error(), Retryable: retryable})
	}
}

// invalid builds a single-field validation error.
func invalid(field, format string, args ...any) error {
	v := &model.ValidationError{}
	v.Add(field, format, args...)
	return v
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return invalid("body", "%v", err)
	}
	return nil
}
