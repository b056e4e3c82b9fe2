package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) cardsForDate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		s.writeError(w, r, invalid("date", "is required"))
		return
	}
	date, err := parseDate("date", raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cards, err := s.cards.ForDate(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCardViews(cards))
}

func (s *Server) cardsForParticipant(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.queryRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cards, err := s.cards.ForParticipant(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCardViews(cards))
}

func (s *Server) cardsForStaff(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.queryRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cards, err := s.cards.ForStaff(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCardViews(cards))
}

type regenerateView struct {
	Regenerated int `json:"regenerated"`
}

func (s *Server) regenerateCards(w http.ResponseWriter, r *http.Request) {
	n, err := s.window.RegenerateDirty(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, regenerateView{Regenerated: n})
}
