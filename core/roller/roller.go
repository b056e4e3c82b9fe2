// Package roller keeps the rolling window of instances materialized and
// reconciled with the intents and exceptions in force.
package roller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/loom/core/allocation"
	"github.com/kilianp07/loom/core/cards"
	"github.com/kilianp07/loom/core/clock"
	"github.com/kilianp07/loom/core/events"
	"github.com/kilianp07/loom/core/logger"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
	"github.com/kilianp07/loom/internal/eventbus"
)

// MaxWindowWeeks bounds Resize.
const MaxWindowWeeks = 52

// Options tune a Roller.
type Options struct {
	DefaultWeeks   int
	RetainPastDays int
	Allocation     model.AllocationConfig
}

// Roller materializes programs into dated instances and runs the
// allocation and card pipeline for each of them.
type Roller struct {
	store  store.Store
	clock  clock.Clock
	engine *allocation.Engine
	cards  *cards.Service
	bus    eventbus.EventBus
	logger logger.Logger
	opts   Options
	locks  *keyedMutex
}

// New creates a Roller. bus may be nil.
func New(s store.Store, c clock.Clock, engine *allocation.Engine, cs *cards.Service, bus eventbus.EventBus, log logger.Logger, opts Options) *Roller {
	if opts.DefaultWeeks <= 0 {
		opts.DefaultWeeks = model.DefaultWindowWeeks
	}
	if opts.RetainPastDays < 0 {
		opts.RetainPastDays = 0
	}
	return &Roller{
		store:  s,
		clock:  c,
		engine: engine,
		cards:  cs,
		bus:    bus,
		logger: log,
		opts:   opts,
		locks:  newKeyedMutex(),
	}
}

// RollReport summarises one roll.
type RollReport struct {
	Window    model.WindowContext
	Processed int
	Skipped   int
	Removed   int
	Failed    int
	Pruned    int
	Errors    []error
	Duration  time.Duration
}

func (r *RollReport) add(ev events.InstanceProcessed) {
	switch ev.Outcome {
	case events.OutcomeProcessed:
		r.Processed++
	case events.OutcomeRemoved:
		r.Removed++
	case events.OutcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

// Err joins every per-date failure.
func (r RollReport) Err() error { return errors.Join(r.Errors...) }

func (r *Roller) publish(ev eventbus.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

// Window snapshots the current window.
func (r *Roller) Window(ctx context.Context) (model.WindowContext, error) {
	weeks, err := store.WindowWeeks(ctx, r.store, r.opts.DefaultWeeks)
	if err != nil {
		return model.WindowContext{}, err
	}
	return model.NewWindowContext(r.clock.Today(), weeks), nil
}

func (r *Roller) config(ctx context.Context) (model.AllocationConfig, error) {
	return store.AllocationConfig(ctx, r.store, r.opts.Allocation)
}

// RollForward materializes and reconciles every program across the window.
// A failure on one date is recorded and does not stop the others.
func (r *Roller) RollForward(ctx context.Context, trigger string) (RollReport, error) {
	started := time.Now()
	w, err := r.Window(ctx)
	if err != nil {
		return RollReport{}, err
	}
	cfg, err := r.config(ctx)
	if err != nil {
		return RollReport{}, err
	}
	report := RollReport{Window: w}
	r.logger.Infof("roll (%s): window %s to %s (%d weeks)", trigger, model.FormatDate(w.Today), model.FormatDate(w.End), w.Weeks)

	if err := r.ensurePrograms(ctx); err != nil {
		report.Errors = append(report.Errors, err)
	}

	programs, err := r.store.ListPrograms(ctx, false)
	if err != nil {
		return report, err
	}
	from, to := w.Today, w.End
	existing, err := r.store.ListInstances(ctx, store.InstanceFilter{From: &from, To: &to})
	if err != nil {
		return report, err
	}
	tracked := make(map[string]bool, len(existing))
	for _, inst := range existing {
		tracked[inst.ProgramID+"|"+model.FormatDate(inst.Date)] = true
	}

	for _, d := range w.Dates() {
		for _, p := range programs {
			if ctx.Err() != nil {
				report.Errors = append(report.Errors, ctx.Err())
				report.Duration = time.Since(started)
				return report, report.Err()
			}
			if !p.OccursOn(d) && !tracked[p.ID+"|"+model.FormatDate(d)] {
				continue
			}
			ev, err := r.processDate(ctx, w, cfg, p.ID, d, false)
			report.add(ev)
			if err != nil {
				report.Errors = append(report.Errors, err)
			}
		}
	}

	pruned, err := r.prune(ctx, w)
	report.Pruned = pruned
	if err != nil {
		report.Errors = append(report.Errors, err)
	}
	report.Duration = time.Since(started)

	r.logger.Infof("roll (%s) done: %d processed, %d skipped, %d removed, %d failed, %d pruned in %s",
		trigger, report.Processed, report.Skipped, report.Removed, report.Failed, report.Pruned, report.Duration)
	r.publish(events.RollCompleted{
		Trigger:   trigger,
		Today:     w.Today,
		Weeks:     w.Weeks,
		Processed: report.Processed,
		Skipped:   report.Skipped,
		Removed:   report.Removed,
		Failed:    report.Failed,
		Pruned:    report.Pruned,
		Duration:  report.Duration,
	})
	return report, report.Err()
}

// prune drops untracked instances: those past the retention horizon and
// those beyond the window end. Finalised instances are kept.
func (r *Roller) prune(ctx context.Context, w model.WindowContext) (int, error) {
	cutoff := w.Today.AddDate(0, 0, -r.opts.RetainPastDays)
	past, err := r.store.PruneInstances(ctx, model.Interval{End: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("prune past instances: %w", err)
	}
	future, err := r.store.PruneInstances(ctx, model.Interval{Start: w.End})
	if err != nil {
		return past, fmt.Errorf("prune instances beyond window: %w", err)
	}
	return past + future, nil
}

// ensurePrograms creates programs for CREATE_PROGRAM intents whose
// immediate creation did not happen.
func (r *Roller) ensurePrograms(ctx context.Context) error {
	intents, err := r.store.ListIntents(ctx, store.IntentFilter{Kind: model.IntentCreateProgram})
	if err != nil {
		return err
	}
	var errs []error
	for _, in := range intents {
		_, err := r.store.GetProgram(ctx, in.ProgramID)
		if err == nil {
			continue
		}
		if !model.IsNotFound(err) {
			errs = append(errs, err)
			continue
		}
		prog, err := programFromIntent(in)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.store.UpsertProgram(ctx, prog); err != nil {
			errs = append(errs, fmt.Errorf("create program %s: %w", prog.ID, err))
			continue
		}
		r.logger.Infof("program %s created from intent %s", prog.ID, in.ID)
	}
	return errors.Join(errs...)
}

// SyncProgram creates or refreshes the program defined by a CREATE_PROGRAM
// intent and reprocesses it across the window.
func (r *Roller) SyncProgram(ctx context.Context, intentID string) error {
	var prog model.Program
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		in, err := tx.GetIntent(ctx, intentID)
		if err != nil {
			return err
		}
		prog, err = programFromIntent(in)
		if err != nil {
			return err
		}
		if err := tx.UpsertProgram(ctx, prog); err != nil {
			return err
		}
		_, err = tx.MarkStale(ctx, prog.ID, model.Interval{})
		return err
	})
	if err != nil {
		return err
	}
	w, err := r.Window(ctx)
	if err != nil {
		return err
	}
	return r.Reconcile(ctx, prog.ID, w.Interval())
}

// Reconcile reprocesses programID on every window date of iv in ascending
// order, one transaction per date.
func (r *Roller) Reconcile(ctx context.Context, programID string, iv model.Interval) error {
	w, err := r.Window(ctx)
	if err != nil {
		return err
	}
	clipped, ok := w.Clip(iv)
	if !ok {
		return nil
	}
	cfg, err := r.config(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, d := range clipped.Dates() {
		if _, err := r.processDate(ctx, w, cfg, programID, d, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ProcessDate runs the pipeline for one program and date.
func (r *Roller) ProcessDate(ctx context.Context, programID string, date time.Time) (events.InstanceProcessed, error) {
	w, err := r.Window(ctx)
	if err != nil {
		return events.InstanceProcessed{}, err
	}
	cfg, err := r.config(ctx)
	if err != nil {
		return events.InstanceProcessed{}, err
	}
	return r.processDate(ctx, w, cfg, programID, model.Day(date), false)
}

// Reoptimize forces a full reprocess of one instance.
func (r *Roller) Reoptimize(ctx context.Context, instanceID string) (model.Instance, error) {
	inst, err := r.store.GetInstance(ctx, instanceID)
	if err != nil {
		return inst, err
	}
	if inst.Status == model.StatusFinalised {
		return inst, &model.ConflictError{Entity: "instance", ExistingID: inst.ID, Message: "finalised instances cannot be reoptimized"}
	}
	w, err := r.Window(ctx)
	if err != nil {
		return inst, err
	}
	cfg, err := r.config(ctx)
	if err != nil {
		return inst, err
	}
	ev, err := r.processDate(ctx, w, cfg, inst.ProgramID, inst.Date, true)
	if err != nil {
		return inst, err
	}
	if ev.Outcome == events.OutcomeRemoved {
		return inst, fmt.Errorf("instance %s: %w", instanceID, model.ErrNotFound)
	}
	return r.store.GetInstance(ctx, instanceID)
}

// SetStatus changes the operator status of an instance.
func (r *Roller) SetStatus(ctx context.Context, instanceID string, status model.InstanceStatus) error {
	if !status.Valid() {
		v := &model.ValidationError{}
		v.Add("status", "unknown status %q", status)
		return v
	}
	return r.store.InTx(ctx, func(tx store.Tx) error {
		inst, err := tx.GetInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst.Status == model.StatusFinalised && status != model.StatusFinalised {
			return &model.ConflictError{Entity: "instance", ExistingID: inst.ID, Message: "instance is finalised"}
		}
		if err := tx.SetStatus(ctx, instanceID, status); err != nil {
			return err
		}
		r.audit(ctx, tx, model.AuditEntry{
			Action:     "status",
			EntityType: "instance",
			EntityID:   instanceID,
			Severity:   model.SeverityInfo,
			Details:    map[string]any{"from": string(inst.Status), "to": string(status)},
		})
		return nil
	})
}

// Finalise freezes an instance; later rolls never rebuild it.
func (r *Roller) Finalise(ctx context.Context, instanceID string) error {
	return r.SetStatus(ctx, instanceID, model.StatusFinalised)
}

// Confirm marks an instance as operator-approved.
func (r *Roller) Confirm(ctx context.Context, instanceID string) error {
	return r.SetStatus(ctx, instanceID, model.StatusConfirmed)
}

// Resize persists a new window size and rolls so added dates materialize
// and dates beyond the new end are dropped.
func (r *Roller) Resize(ctx context.Context, weeks int) (RollReport, error) {
	if weeks < 1 || weeks > MaxWindowWeeks {
		v := &model.ValidationError{}
		v.Add("weeks", "must be between 1 and %d", MaxWindowWeeks)
		return RollReport{}, v
	}
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		prev, err := store.WindowWeeks(ctx, tx, r.opts.DefaultWeeks)
		if err != nil {
			return err
		}
		if err := store.SetWindowWeeks(ctx, tx, weeks); err != nil {
			return err
		}
		r.audit(ctx, tx, model.AuditEntry{
			Action:     "resize",
			EntityType: "window",
			EntityID:   "window",
			Severity:   model.SeverityInfo,
			Details:    map[string]any{"from": prev, "to": weeks},
		})
		return nil
	})
	if err != nil {
		return RollReport{}, err
	}
	return r.RollForward(ctx, "resize")
}

// RegenerateDirty rebuilds cards for every dirty instance.
func (r *Roller) RegenerateDirty(ctx context.Context) (int, error) {
	return r.cards.RegenerateDirty(ctx)
}

// Instances lists the instances dated inside the current window.
func (r *Roller) Instances(ctx context.Context, programID string) ([]model.Instance, error) {
	w, err := r.Window(ctx)
	if err != nil {
		return nil, err
	}
	from, to := w.Today, w.End
	return r.store.ListInstances(ctx, store.InstanceFilter{ProgramID: programID, From: &from, To: &to})
}

func (r *Roller) audit(ctx context.Context, tx store.AuditStore, e model.AuditEntry) {
	if e.At.IsZero() {
		e.At = r.clock.Now()
	}
	if err := tx.AppendAudit(ctx, e); err != nil {
		r.logger.Warnf("audit %s %s %s: %v", e.Action, e.EntityType, e.EntityID, err)
	}
}
