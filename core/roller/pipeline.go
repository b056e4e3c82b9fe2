package roller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/loom/core/allocation"
	"github.com/kilianp07/loom/core/events"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/monitoring"
	"github.com/kilianp07/loom/core/store"
)

// step is what the first transaction decided for a date.
type step int

const (
	stepSkip step = iota
	stepRemoved
	stepCards
	stepAllocated
)

// processDate serializes on program and date, then materializes, applies
// rules and allocates in one transaction and generates cards in a second.
// A card failure leaves the instance dirty for the next roll.
func (r *Roller) processDate(ctx context.Context, w model.WindowContext, cfg model.AllocationConfig, programID string, date time.Time, force bool) (ev events.InstanceProcessed, err error) {
	started := time.Now()
	date = model.Day(date)
	ev = events.InstanceProcessed{ProgramID: programID, Date: date, Outcome: events.OutcomeSkipped}
	defer func() {
		ev.Duration = time.Since(started)
		if err != nil {
			ev.Outcome = events.OutcomeFailed
			ev.Err = err
			r.recordFailure(ctx, programID, date, err)
		}
		r.publish(ev)
	}()

	unlock := r.locks.Lock(programID + "|" + model.FormatDate(date))
	defer unlock()

	var (
		inst   model.Instance
		result allocation.Result
		next   step
	)
	err = r.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		inst, next, result, err = r.allocateDate(ctx, tx, w, cfg, programID, date, force)
		return err
	})
	if err != nil {
		return ev, fmt.Errorf("program %s on %s: %w", programID, model.FormatDate(date), err)
	}
	ev.InstanceID = inst.ID

	switch next {
	case stepSkip:
		return ev, nil
	case stepRemoved:
		ev.Outcome = events.OutcomeRemoved
		r.logger.Infof("instance %s of program %s on %s removed", inst.ID, programID, model.FormatDate(date))
		return ev, nil
	case stepAllocated:
		for _, s := range result.Shortfalls {
			r.publish(events.ShortfallDetected{InstanceID: inst.ID, ProgramID: programID, Date: date, Warning: s})
		}
		for _, s := range result.Splits {
			r.logger.Warnf("instance %s: %s route of %.0f min on %s split into %d runs", inst.ID, s.Direction, s.EstimatedMinutes, s.VehicleID, s.Runs)
			r.publish(events.RouteSplit{InstanceID: inst.ID, Date: date, Warning: s})
		}
	}

	ev.Outcome = events.OutcomeProcessed
	ev.Financials = inst.Financials
	if _, err := r.cards.Generate(ctx, inst.ID); err != nil {
		return ev, fmt.Errorf("cards for instance %s: %w", inst.ID, err)
	}
	return ev, nil
}

func (r *Roller) allocateDate(ctx context.Context, tx store.Tx, w model.WindowContext, cfg model.AllocationConfig, programID string, date time.Time, force bool) (model.Instance, step, allocation.Result, error) {
	var (
		prev   *model.Instance
		result allocation.Result
	)
	existing, err := tx.FindInstance(ctx, programID, date)
	switch {
	case err == nil:
		prev = &existing
	case !model.IsNotFound(err):
		return existing, stepSkip, result, err
	}

	if prev != nil {
		if prev.Status == model.StatusFinalised {
			return *prev, stepSkip, result, nil
		}
		if !prev.Stale && !force && prev.Stage != model.StageMaterialized {
			if prev.CardsDirty || prev.Stage != model.StageCardsGenerated {
				return *prev, stepCards, result, nil
			}
			return *prev, stepSkip, result, nil
		}
	}

	if !w.Contains(date) && prev == nil {
		return model.Instance{}, stepSkip, result, nil
	}

	program, err := tx.GetProgram(ctx, programID)
	if err != nil && !model.IsNotFound(err) {
		return model.Instance{}, stepSkip, result, err
	}
	if model.IsNotFound(err) || !program.OccursOn(date) {
		return r.remove(ctx, tx, prev, "not scheduled")
	}

	inst := materialize(program, date, prev)
	active := date
	intents, err := tx.ListIntents(ctx, store.IntentFilter{ProgramID: programID, ActiveOn: &active})
	if err != nil {
		return inst, stepSkip, result, err
	}
	exceptions, err := tx.ListExceptions(ctx, store.ExceptionFilter{ProgramID: programID, Date: &active})
	if err != nil {
		return inst, stepSkip, result, err
	}
	if applyRules(&inst, intents, exceptions) {
		return r.remove(ctx, tx, prev, "cancelled")
	}
	if model.Span(inst.StartTime, inst.EndTime) <= 0 {
		v := &model.ValidationError{}
		v.Add("end_time", "resolved times %s-%s do not end after they start", inst.StartTime, inst.EndTime)
		return inst, stepSkip, result, fmt.Errorf("apply: %w", v)
	}

	result, err = r.engine.Allocate(ctx, tx, &inst, cfg)
	if err != nil {
		return inst, stepSkip, result, fmt.Errorf("allocate: %w", err)
	}
	inst.Stage = model.StageAllocated
	inst.Stale = false
	inst.CardsDirty = true
	inst.UpdatedAt = r.clock.Now()
	if err := tx.SaveInstance(ctx, inst); err != nil {
		return inst, stepSkip, result, err
	}
	for _, s := range result.Shortfalls {
		r.audit(ctx, tx, model.AuditEntry{
			Action:     "shortfall",
			EntityType: "instance",
			EntityID:   inst.ID,
			Severity:   model.SeverityWarning,
			Details: map[string]any{
				"resource": string(s.Resource),
				"required": s.Required,
				"assigned": s.Assigned,
				"detail":   s.Detail,
			},
		})
	}
	return inst, stepAllocated, result, nil
}

func (r *Roller) remove(ctx context.Context, tx store.Tx, prev *model.Instance, reason string) (model.Instance, step, allocation.Result, error) {
	if prev == nil {
		return model.Instance{}, stepSkip, allocation.Result{}, nil
	}
	if err := tx.DeleteInstance(ctx, prev.ID); err != nil {
		return *prev, stepSkip, allocation.Result{}, err
	}
	r.audit(ctx, tx, model.AuditEntry{
		Action:     "remove",
		EntityType: "instance",
		EntityID:   prev.ID,
		Severity:   model.SeverityInfo,
		Details:    map[string]any{"program_id": prev.ProgramID, "date": model.FormatDate(prev.Date), "reason": reason},
	})
	return *prev, stepRemoved, allocation.Result{}, nil
}

// recordFailure logs a failed date and writes an audit entry outside the
// rolled-back transaction.
func (r *Roller) recordFailure(ctx context.Context, programID string, date time.Time, cause error) {
	r.logger.Errorf("roll of program %s on %s failed: %v", programID, model.FormatDate(date), cause)
	if ctx.Err() != nil {
		return
	}
	stage := "pipeline"
	var se *model.SystemError
	if errors.As(cause, &se) && se.Op != "" {
		stage = se.Op
	}
	monitoring.CaptureException(cause, monitoring.Tags(
		"module", "roller",
		"program_id", programID,
		"date", model.FormatDate(date),
		"stage", stage,
	))
	r.audit(ctx, r.store, model.AuditEntry{
		Action:     "roll_failed",
		EntityType: "program",
		EntityID:   programID,
		Severity:   model.SeverityError,
		Details:    map[string]any{"date": model.FormatDate(date), "error": cause.Error(), "retryable": !model.IsValidation(cause)},
	})
}
