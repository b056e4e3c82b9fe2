package cards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/loom/core/events"
	"github.com/kilianp07/loom/core/logger"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
	"github.com/kilianp07/loom/internal/eventbus"
)

// Service regenerates and persists card sets.
type Service struct {
	store  store.Store
	base   model.AllocationConfig
	bus    eventbus.EventBus
	logger logger.Logger
}

// NewService creates a card Service. bus may be nil.
func NewService(s store.Store, base model.AllocationConfig, bus eventbus.EventBus, log logger.Logger) *Service {
	return &Service{store: s, base: base, bus: bus, logger: log}
}

// Generate rebuilds the cards of one instance in a single transaction. Any
// failure leaves the previous card set in place.
func (s *Service) Generate(ctx context.Context, instanceID string) ([]model.Card, error) {
	var (
		cards []model.Card
		inst  model.Instance
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		inst, err = tx.GetInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		cards, err = s.GenerateTx(ctx, tx, inst)
		return err
	})
	if err != nil {
		return nil, err
	}
	cardsGenerated.Add(float64(len(cards)))
	if s.bus != nil {
		s.bus.Publish(events.CardsGenerated{InstanceID: inst.ID, ProgramID: inst.ProgramID, Date: inst.Date, Counts: Count(cards)})
	}
	return cards, nil
}

// GenerateTx decomposes inst and replaces its cards using tx.
func (s *Service) GenerateTx(ctx context.Context, tx store.Tx, inst model.Instance) ([]model.Card, error) {
	cfg, err := store.AllocationConfig(ctx, tx, s.base)
	if err != nil {
		return nil, err
	}
	location := inst.VenueID
	if inst.VenueID != "" {
		venue, err := tx.GetVenue(ctx, inst.VenueID)
		switch {
		case err == nil && venue.Name != "":
			location = venue.Name
		case err != nil && !model.IsNotFound(err):
			return nil, fmt.Errorf("venue %s: %w", inst.VenueID, err)
		}
	}
	cards := Decompose(inst, location, cfg)
	if err := tx.ReplaceCards(ctx, inst.ID, cards); err != nil {
		return nil, err
	}
	if err := tx.SetStage(ctx, inst.ID, model.StageCardsGenerated, false); err != nil {
		return nil, err
	}
	return cards, nil
}

// RegenerateDirty regenerates every instance flagged as needing cards. Each
// instance runs in its own transaction; failures are collected and do not
// stop the others.
func (s *Service) RegenerateDirty(ctx context.Context) (int, error) {
	dirty := true
	list, err := s.store.ListInstances(ctx, store.InstanceFilter{CardsDirty: &dirty})
	if err != nil {
		return 0, err
	}
	var (
		done int
		errs []error
	)
	for _, inst := range list {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.Generate(ctx, inst.ID); err != nil {
			regenerationFailures.Inc()
			s.logger.Errorf("cards: regenerate %s: %v", inst.ID, err)
			errs = append(errs, fmt.Errorf("instance %s: %w", inst.ID, err))
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

// ForDate returns the cards of every instance on date.
func (s *Service) ForDate(ctx context.Context, date time.Time) ([]model.Card, error) {
	d := model.Day(date)
	return s.store.ListCards(ctx, store.CardFilter{Date: &d})
}

// ForParticipant returns the cards listing a participant in [from, to).
func (s *Service) ForParticipant(ctx context.Context, participantID string, from, to time.Time) ([]model.Card, error) {
	f, t := model.Day(from), model.Day(to)
	return s.store.ListCards(ctx, store.CardFilter{ParticipantID: participantID, From: &f, To: &t})
}

// ForStaff returns the cards listing a staff member in [from, to).
func (s *Service) ForStaff(ctx context.Context, staffID string, from, to time.Time) ([]model.Card, error) {
	f, t := model.Day(from), model.Day(to)
	return s.store.ListCards(ctx, store.CardFilter{StaffID: staffID, From: &f, To: &t})
}
