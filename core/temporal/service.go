// Package temporal stores intents and exceptions, enforcing validation and
// conflict rules, and asks the roller to reconcile affected dates.
package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/loom/core/clock"
	"github.com/kilianp07/loom/core/events"
	"github.com/kilianp07/loom/core/logger"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
	"github.com/kilianp07/loom/internal/eventbus"
)

// Reconciler re-applies rules to materialized instances after a commit.
type Reconciler interface {
	// SyncProgram creates or refreshes the program defined by a
	// CREATE_PROGRAM intent and materializes it across the window.
	SyncProgram(ctx context.Context, intentID string) error
	// Reconcile reprocesses programID on every window date in iv.
	Reconcile(ctx context.Context, programID string, iv model.Interval) error
}

// Service implements intent and exception CRUD.
type Service struct {
	store      store.Store
	clock      clock.Clock
	reconciler Reconciler
	bus        eventbus.EventBus
	logger     logger.Logger
	newID      func() string
}

// NewService wires a Service. reconciler and bus may be nil.
func NewService(s store.Store, c clock.Clock, rec Reconciler, bus eventbus.EventBus, log logger.Logger) *Service {
	return &Service{store: s, clock: c, reconciler: rec, bus: bus, logger: log, newID: uuid.NewString}
}

// SetReconciler attaches the reconciler after construction.
func (s *Service) SetReconciler(rec Reconciler) { s.reconciler = rec }

// IntentUpdate holds the fields to merge onto an existing intent. Nil
// fields keep their current value.
type IntentUpdate struct {
	ProgramID     *string
	ParticipantID *string
	StaffID       *string
	VehicleID     *string
	VenueID       *string
	Start         *time.Time
	End           *time.Time
	// ClearEnd makes the intent open-ended.
	ClearEnd bool
	Payload  model.Payload
}

func (u IntentUpdate) apply(in model.Intent) model.Intent {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&in.ProgramID, u.ProgramID)
	set(&in.ParticipantID, u.ParticipantID)
	set(&in.StaffID, u.StaffID)
	set(&in.VehicleID, u.VehicleID)
	set(&in.VenueID, u.VenueID)
	if u.Start != nil {
		in.Start = model.Day(*u.Start)
	}
	if u.ClearEnd {
		in.End = nil
	} else if u.End != nil {
		e := model.Day(*u.End)
		in.End = &e
	}
	if u.Payload != nil {
		in.Payload = u.Payload
	}
	return in
}

func normalizeIntent(in model.Intent) (model.Intent, error) {
	if !in.Start.IsZero() {
		in.Start = model.Day(in.Start)
	}
	if in.End != nil {
		e := model.Day(*in.End)
		in.End = &e
	}
	if in.Payload == nil && in.Kind.Valid() {
		p, err := model.DecodePayload(in.Kind, nil)
		if err != nil {
			return in, err
		}
		in.Payload = p
	}
	return in, nil
}

// checkReferences verifies that referenced catalog rows exist.
func checkReferences(ctx context.Context, tx store.Tx, in model.Intent) error {
	v := &model.ValidationError{}
	check := func(field, id string, get func(context.Context, string) error) error {
		if id == "" {
			return nil
		}
		err := get(ctx, id)
		if model.IsNotFound(err) {
			v.Add(field, "unknown %s", id)
			return nil
		}
		return err
	}
	program := func(ctx context.Context, id string) error { _, err := tx.GetProgram(ctx, id); return err }
	participant := func(ctx context.Context, id string) error { _, err := tx.GetParticipant(ctx, id); return err }
	staff := func(ctx context.Context, id string) error { _, err := tx.GetStaff(ctx, id); return err }
	vehicle := func(ctx context.Context, id string) error { _, err := tx.GetVehicle(ctx, id); return err }
	venue := func(ctx context.Context, id string) error { _, err := tx.GetVenue(ctx, id); return err }

	for _, c := range []struct {
		field, id string
		get       func(context.Context, string) error
	}{
		{"participant_id", in.ParticipantID, participant},
		{"staff_id", in.StaffID, staff},
		{"vehicle_id", in.VehicleID, vehicle},
		{"venue_id", in.VenueID, venue},
	} {
		if err := check(c.field, c.id, c.get); err != nil {
			return err
		}
	}
	if in.Kind != model.IntentCreateProgram {
		if err := check("program_id", in.ProgramID, program); err != nil {
			return err
		}
	}
	return v.OrNil()
}

// checkIntentSpan resolves a one-sided MODIFY_TIME against the program's
// own times.
func checkIntentSpan(ctx context.Context, tx store.Tx, in model.Intent) error {
	p, ok := in.Payload.(model.ModifyTimePayload)
	if in.Kind != model.IntentModifyTime || !ok {
		return nil
	}
	prog, err := tx.GetProgram(ctx, in.ProgramID)
	if err != nil {
		return err
	}
	return checkResolvedSpan("payload.", [2]model.TimeOfDay{prog.StartTime, prog.EndTime}, p.StartTime, p.EndTime)
}

// checkExceptionSpan resolves a one-sided ONE_OFF_CHANGE against the times
// the date would otherwise run at: the program's, then any MODIFY_TIME
// active that day.
func checkExceptionSpan(ctx context.Context, tx store.Tx, prog model.Program, ex model.Exception) error {
	if ex.Kind != model.ExceptionOneOffChange {
		return nil
	}
	if (ex.Details.StartTime == "") == (ex.Details.EndTime == "") {
		return nil
	}
	base := [2]model.TimeOfDay{prog.StartTime, prog.EndTime}
	d := ex.Date
	active, err := tx.ListIntents(ctx, store.IntentFilter{ProgramID: prog.ID, Kind: model.IntentModifyTime, ActiveOn: &d})
	if err != nil {
		return err
	}
	for _, in := range active {
		if p, ok := in.Payload.(model.ModifyTimePayload); ok {
			if p.StartTime != "" {
				base[0] = p.StartTime
			}
			if p.EndTime != "" {
				base[1] = p.EndTime
			}
		}
	}
	return checkResolvedSpan("details.", base, ex.Details.StartTime, ex.Details.EndTime)
}

func checkConflict(ctx context.Context, tx store.Tx, in model.Intent) error {
	rule := intentRules[in.Kind]
	if rule.key == nil {
		return nil
	}
	existing, err := tx.OverlappingIntents(ctx, rule.key(in), in.Interval(), in.ID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}
	e := existing[0]
	end := "open-ended"
	if e.End != nil {
		end = model.FormatDate(*e.End)
	}
	return &model.ConflictError{
		Entity:     "intent",
		ExistingID: e.ID,
		Message:    fmt.Sprintf("%s already active from %s to %s", e.Kind, model.FormatDate(e.Start), end),
	}
}

func (s *Service) audit(ctx context.Context, tx store.Tx, action, entity, id string, details map[string]any) {
	entry := model.AuditEntry{
		At:         s.clock.Now(),
		Action:     action,
		EntityType: entity,
		EntityID:   id,
		Severity:   model.SeverityInfo,
		Details:    details,
	}
	if err := tx.AppendAudit(ctx, entry); err != nil {
		s.logger.Warnf("audit %s %s %s: %v", action, entity, id, err)
	}
}

func intentDetails(in model.Intent) map[string]any {
	d := map[string]any{
		"kind":       string(in.Kind),
		"program_id": in.ProgramID,
		"start_date": model.FormatDate(in.Start),
	}
	if in.End != nil {
		d["end_date"] = model.FormatDate(*in.End)
	}
	if in.ParticipantID != "" {
		d["participant_id"] = in.ParticipantID
	}
	if in.StaffID != "" {
		d["staff_id"] = in.StaffID
	}
	return d
}

func (s *Service) publish(ev eventbus.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

// hookFailed records a best-effort post-commit failure without failing the
// request.
func (s *Service) hookFailed(hook, id string, err error) {
	hookFailures.WithLabelValues(hook).Inc()
	s.logger.Warnf("%s for %s failed: %v", hook, id, err)
	s.publish(events.HookFailed{Hook: hook, EntityID: id, Err: err})
}

func (s *Service) reconcile(ctx context.Context, programID string, iv model.Interval) {
	if s.reconciler == nil || programID == "" {
		return
	}
	if err := s.reconciler.Reconcile(ctx, programID, iv); err != nil {
		s.hookFailed("reconcile", programID, err)
	}
}

// CreateIntent validates and stores a new intent. CREATE_PROGRAM intents get
// a freshly generated program id and the program is created best-effort
// after commit.
func (s *Service) CreateIntent(ctx context.Context, in model.Intent) (model.Intent, error) {
	in, err := normalizeIntent(in)
	if err == nil {
		err = validateIntent(in, s.clock.Today(), true, true)
	}
	if err != nil {
		recordMutation("intent", "create", err)
		return in, err
	}
	now := s.clock.Now()
	in.ID = s.newID()
	in.CreatedAt, in.UpdatedAt = now, now
	if in.Kind == model.IntentCreateProgram {
		in.ProgramID = s.newID()
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if err := checkReferences(ctx, tx, in); err != nil {
			return err
		}
		if err := checkIntentSpan(ctx, tx, in); err != nil {
			return err
		}
		if err := checkConflict(ctx, tx, in); err != nil {
			return err
		}
		if err := tx.CreateIntent(ctx, in); err != nil {
			return err
		}
		if in.Kind != model.IntentCreateProgram {
			if _, err := tx.MarkStale(ctx, in.ProgramID, in.Interval()); err != nil {
				return err
			}
		}
		s.audit(ctx, tx, "create", "intent", in.ID, intentDetails(in))
		return nil
	})
	if err != nil {
		recordMutation("intent", "create", err)
		return in, err
	}
	recordMutation("intent", "create", nil)
	s.logger.Infof("intent %s created: %s program=%s from %s", in.ID, in.Kind, in.ProgramID, model.FormatDate(in.Start))
	s.publish(events.RuleChanged{Entity: "intent", ID: in.ID, Action: "create", Range: in.Interval()})

	if in.Kind == model.IntentCreateProgram {
		if s.reconciler != nil {
			if err := s.reconciler.SyncProgram(ctx, in.ID); err != nil {
				s.hookFailed("create_program", in.ID, err)
			}
		}
		return in, nil
	}
	s.reconcile(ctx, in.ProgramID, in.Interval())
	return in, nil
}

// UpdateIntent merges u onto the intent and replaces it. The not-in-the-past
// rule only applies to dates that changed. Both the old and new ranges are
// reconciled.
func (s *Service) UpdateIntent(ctx context.Context, id string, u IntentUpdate) (model.Intent, error) {
	var old, in model.Intent
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		old, err = tx.GetIntent(ctx, id)
		if err != nil {
			return err
		}
		if u.ProgramID != nil && old.Kind == model.IntentCreateProgram && *u.ProgramID != old.ProgramID {
			v := &model.ValidationError{}
			v.Add("program_id", "cannot change the program of a %s intent", old.Kind)
			return v
		}
		in, err = normalizeIntent(u.apply(old))
		if err != nil {
			return err
		}
		startChanged := !in.Start.Equal(old.Start)
		endChanged := !sameEnd(in.End, old.End)
		if err := validateIntent(in, s.clock.Today(), startChanged, endChanged); err != nil {
			return err
		}
		if err := checkReferences(ctx, tx, in); err != nil {
			return err
		}
		if err := checkIntentSpan(ctx, tx, in); err != nil {
			return err
		}
		if err := checkConflict(ctx, tx, in); err != nil {
			return err
		}
		in.UpdatedAt = s.clock.Now()
		if err := tx.UpdateIntent(ctx, in); err != nil {
			return err
		}
		if in.Kind != model.IntentCreateProgram {
			if _, err := tx.MarkStale(ctx, old.ProgramID, old.Interval()); err != nil {
				return err
			}
			if _, err := tx.MarkStale(ctx, in.ProgramID, in.Interval()); err != nil {
				return err
			}
		}
		d := intentDetails(in)
		d["previous"] = intentDetails(old)
		s.audit(ctx, tx, "update", "intent", in.ID, d)
		return nil
	})
	if err != nil {
		recordMutation("intent", "update", err)
		return in, err
	}
	recordMutation("intent", "update", nil)
	s.publish(events.RuleChanged{Entity: "intent", ID: in.ID, Action: "update", Range: old.Interval().Hull(in.Interval())})

	if in.Kind == model.IntentCreateProgram {
		if s.reconciler != nil {
			if err := s.reconciler.SyncProgram(ctx, in.ID); err != nil {
				s.hookFailed("create_program", in.ID, err)
			}
		}
		return in, nil
	}
	if old.ProgramID != in.ProgramID {
		s.reconcile(ctx, old.ProgramID, old.Interval())
		s.reconcile(ctx, in.ProgramID, in.Interval())
	} else {
		s.reconcile(ctx, in.ProgramID, old.Interval().Hull(in.Interval()))
	}
	return in, nil
}

func sameEnd(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// DeleteIntent hard-deletes an intent and reconciles its former range.
// Deleting a CREATE_PROGRAM intent deactivates the program it created.
func (s *Service) DeleteIntent(ctx context.Context, id string) error {
	var in model.Intent
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		in, err = tx.GetIntent(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteIntent(ctx, id); err != nil {
			return err
		}
		if in.Kind == model.IntentCreateProgram {
			p, err := tx.GetProgram(ctx, in.ProgramID)
			switch {
			case model.IsNotFound(err):
			case err != nil:
				return err
			default:
				p.Active = false
				if err := tx.UpsertProgram(ctx, p); err != nil {
					return err
				}
			}
		}
		if _, err := tx.MarkStale(ctx, in.ProgramID, in.Interval()); err != nil {
			return err
		}
		s.audit(ctx, tx, "delete", "intent", in.ID, intentDetails(in))
		return nil
	})
	if err != nil {
		recordMutation("intent", "delete", err)
		return err
	}
	recordMutation("intent", "delete", nil)
	s.publish(events.RuleChanged{Entity: "intent", ID: in.ID, Action: "delete", Range: in.Interval()})
	s.reconcile(ctx, in.ProgramID, in.Interval())
	return nil
}

// GetIntent returns one intent.
func (s *Service) GetIntent(ctx context.Context, id string) (model.Intent, error) {
	return s.store.GetIntent(ctx, id)
}

// ListIntents returns intents matching f.
func (s *Service) ListIntents(ctx context.Context, f store.IntentFilter) ([]model.Intent, error) {
	return s.store.ListIntents(ctx, f)
}

func dayInterval(d time.Time) model.Interval {
	end := d.AddDate(0, 0, 1)
	return model.NewInterval(d, &end)
}

// CreateException stores a one-off override and reconciles its date.
func (s *Service) CreateException(ctx context.Context, ex model.Exception) (model.Exception, error) {
	if !ex.Date.IsZero() {
		ex.Date = model.Day(ex.Date)
	}
	if err := validateException(ex, s.clock.Today()); err != nil {
		recordMutation("exception", "create", err)
		return ex, err
	}
	ex.ID = s.newID()
	ex.CreatedAt = s.clock.Now()

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		v := &model.ValidationError{}
		prog, err := tx.GetProgram(ctx, ex.ProgramID)
		if model.IsNotFound(err) {
			v.Add("program_id", "unknown %s", ex.ProgramID)
		} else if err != nil {
			return err
		}
		if ex.ParticipantID != "" {
			if _, err := tx.GetParticipant(ctx, ex.ParticipantID); model.IsNotFound(err) {
				v.Add("participant_id", "unknown %s", ex.ParticipantID)
			} else if err != nil {
				return err
			}
		}
		if ex.Details.VenueID != "" {
			if _, err := tx.GetVenue(ctx, ex.Details.VenueID); model.IsNotFound(err) {
				v.Add("details.venue_id", "unknown %s", ex.Details.VenueID)
			} else if err != nil {
				return err
			}
		}
		if err := v.OrNil(); err != nil {
			return err
		}
		if err := checkExceptionSpan(ctx, tx, prog, ex); err != nil {
			return err
		}

		d := ex.Date
		existing, err := tx.ListExceptions(ctx, store.ExceptionFilter{
			ProgramID:     ex.ProgramID,
			ParticipantID: ex.ParticipantID,
			Kind:          ex.Kind,
			Date:          &d,
		})
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.ParticipantID == ex.ParticipantID {
				return &model.ConflictError{
					Entity:     "exception",
					ExistingID: e.ID,
					Message:    fmt.Sprintf("%s already exists on %s", e.Kind, model.FormatDate(e.Date)),
				}
			}
		}
		if err := tx.CreateException(ctx, ex); err != nil {
			return err
		}
		if _, err := tx.MarkStale(ctx, ex.ProgramID, dayInterval(ex.Date)); err != nil {
			return err
		}
		s.audit(ctx, tx, "create", "exception", ex.ID, exceptionDetails(ex))
		return nil
	})
	if err != nil {
		recordMutation("exception", "create", err)
		return ex, err
	}
	recordMutation("exception", "create", nil)
	s.publish(events.RuleChanged{Entity: "exception", ID: ex.ID, Action: "create", Range: dayInterval(ex.Date)})
	s.reconcile(ctx, ex.ProgramID, dayInterval(ex.Date))
	return ex, nil
}

func exceptionDetails(ex model.Exception) map[string]any {
	d := map[string]any{
		"kind":       string(ex.Kind),
		"program_id": ex.ProgramID,
		"date":       model.FormatDate(ex.Date),
	}
	if ex.ParticipantID != "" {
		d["participant_id"] = ex.ParticipantID
	}
	if !ex.Details.Empty() || ex.Details.Reason != "" {
		d["details"] = ex.Details
	}
	return d
}

// DeleteException removes an override; the instance for its date is
// regenerated so no stale override survives.
func (s *Service) DeleteException(ctx context.Context, id string) error {
	var ex model.Exception
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		ex, err = tx.GetException(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteException(ctx, id); err != nil {
			return err
		}
		if _, err := tx.MarkStale(ctx, ex.ProgramID, dayInterval(ex.Date)); err != nil {
			return err
		}
		s.audit(ctx, tx, "delete", "exception", ex.ID, exceptionDetails(ex))
		return nil
	})
	if err != nil {
		recordMutation("exception", "delete", err)
		return err
	}
	recordMutation("exception", "delete", nil)
	s.publish(events.RuleChanged{Entity: "exception", ID: ex.ID, Action: "delete", Range: dayInterval(ex.Date)})
	s.reconcile(ctx, ex.ProgramID, dayInterval(ex.Date))
	return nil
}

// GetException returns one exception.
func (s *Service) GetException(ctx context.Context, id string) (model.Exception, error) {
	return s.store.GetException(ctx, id)
}

// ListExceptions returns exceptions matching f.
func (s *Service) ListExceptions(ctx context.Context, f store.ExceptionFilter) ([]model.Exception, error) {
	return s.store.ListExceptions(ctx, f)
}
