package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/loom/core/model"
)

func (s *Server) getWindow(w http.ResponseWriter, r *http.Request) {
	wc, err := s.window.Window(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWindowView(wc))
}

type resizeRequest struct {
	Weeks int `json:"weeks"`
}

func (s *Server) resizeWindow(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.window.Resize(r.Context(), req.Weeks)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRollView(report))
}

// rollWindow runs the same roll as the scheduled worker. Per-date failures
// are reported in the body, not as an error status.
func (s *Server) rollWindow(w http.ResponseWriter, r *http.Request) {
	report, err := s.window.RollForward(r.Context(), "manual")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRollView(report))
}

func (s *Server) listInstances(w http.ResponseWriter, r *http.Request) {
	list, err := s.window.Instances(r.Context(), r.URL.Query().Get("program_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]instanceView, len(list))
	for i, inst := range list {
		out[i] = newInstanceView(inst)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) reoptimize(w http.ResponseWriter, r *http.Request) {
	inst, err := s.window.Reoptimize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newInstanceView(inst))
}

type statusRequest struct {
	Status model.InstanceStatus `json:"status"`
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.window.SetStatus(r.Context(), id, req.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
}
