// Package api binds the rule store, the window roller and the card queries
// to a JSON HTTP interface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kilianp07/loom/core/logger"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/roller"
	"github.com/kilianp07/loom/core/store"
	"github.com/kilianp07/loom/core/temporal"
)

// Rules is the intent and exception surface of temporal.Service.
type Rules interface {
	CreateIntent(ctx context.Context, in model.Intent) (model.Intent, error)
	UpdateIntent(ctx context.Context, id string, u temporal.IntentUpdate) (model.Intent, error)
	DeleteIntent(ctx context.Context, id string) error
	GetIntent(ctx context.Context, id string) (model.Intent, error)
	ListIntents(ctx context.Context, f store.IntentFilter) ([]model.Intent, error)
	CreateException(ctx context.Context, ex model.Exception) (model.Exception, error)
	DeleteException(ctx context.Context, id string) error
	GetException(ctx context.Context, id string) (model.Exception, error)
	ListExceptions(ctx context.Context, f store.ExceptionFilter) ([]model.Exception, error)
}

// Window is the roller surface exposed over HTTP.
type Window interface {
	Window(ctx context.Context) (model.WindowContext, error)
	RollForward(ctx context.Context, trigger string) (roller.RollReport, error)
	Resize(ctx context.Context, weeks int) (roller.RollReport, error)
	Instances(ctx context.Context, programID string) ([]model.Instance, error)
	Reoptimize(ctx context.Context, instanceID string) (model.Instance, error)
	SetStatus(ctx context.Context, instanceID string, status model.InstanceStatus) error
	RegenerateDirty(ctx context.Context) (int, error)
}

// Cards answers card queries.
type Cards interface {
	ForDate(ctx context.Context, date time.Time) ([]model.Card, error)
	ForParticipant(ctx context.Context, participantID string, from, to time.Time) ([]model.Card, error)
	ForStaff(ctx context.Context, staffID string, from, to time.Time) ([]model.Card, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	rules  Rules
	window Window
	cards  Cards
	logger logger.Logger
}

// NewRouter mounts every route. timeout bounds each request; zero disables
// it.
func NewRouter(rules Rules, win Window, cards Cards, log logger.Logger, timeout time.Duration) *chi.Mux {
	s := &Server{rules: rules, window: win, cards: cards, logger: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/intents", func(r chi.Router) {
		r.Post("/", s.createIntent)
		r.Get("/", s.listIntents)
		r.Get("/{id}", s.getIntent)
		r.Put("/{id}", s.updateIntent)
		r.Delete("/{id}", s.deleteIntent)
	})
	r.Route("/exceptions", func(r chi.Router) {
		r.Post("/", s.createException)
		r.Get("/", s.listExceptions)
		r.Get("/{id}", s.getException)
		r.Delete("/{id}", s.deleteException)
	})
	r.Route("/window", func(r chi.Router) {
		r.Get("/", s.getWindow)
		r.Put("/", s.resizeWindow)
		r.Post("/roll", s.rollWindow)
		r.Get("/instances", s.listInstances)
	})
	r.Post("/instances/{id}/reoptimize", s.reoptimize)
	r.Put("/instances/{id}/status", s.setStatus)
	r.Route("/cards", func(r chi.Router) {
		r.Get("/", s.cardsForDate)
		r.Get("/participants/{id}", s.cardsForParticipant)
		r.Get("/staff/{id}", s.cardsForStaff)
		r.Post("/regenerate", s.regenerateCards)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debugw("http request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}
