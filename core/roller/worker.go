package roller

import (
	"context"
	"time"

	"github.com/kilianp07/loom/core/clock"
	"github.com/kilianp07/loom/core/logger"
	"github.com/kilianp07/loom/core/model"
)

// WorkerConfig schedules the background roll. RollAt wins over Interval
// when both are set.
type WorkerConfig struct {
	Interval   time.Duration
	RollAt     model.TimeOfDay
	RunOnStart bool
}

// Worker runs RollForward on a schedule. It shares the roller's per-date
// locking with manual triggers.
type Worker struct {
	roller *Roller
	clock  clock.Clock
	cfg    WorkerConfig
	logger logger.Logger
}

// NewWorker creates a Worker. Without a schedule it rolls daily.
func NewWorker(r *Roller, c clock.Clock, cfg WorkerConfig, log logger.Logger) *Worker {
	if cfg.Interval <= 0 && cfg.RollAt == "" {
		cfg.Interval = 24 * time.Hour
	}
	return &Worker{roller: r, clock: c, cfg: cfg, logger: log}
}

// UntilNext returns the wait before the next daily run at at, seen from now.
func UntilNext(now time.Time, at model.TimeOfDay) time.Duration {
	m, err := at.Minutes()
	if err != nil {
		return 24 * time.Hour
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), m/60, m%60, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func (w *Worker) wait() time.Duration {
	if w.cfg.RollAt != "" {
		return UntilNext(w.clock.Now(), w.cfg.RollAt)
	}
	return w.cfg.Interval
}

// Start blocks until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	if w.cfg.RunOnStart {
		w.run(ctx, "startup")
	}
	for {
		timer := time.NewTimer(w.wait())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			w.run(ctx, "scheduled")
		}
	}
}

func (w *Worker) run(ctx context.Context, trigger string) {
	report, err := w.roller.RollForward(ctx, trigger)
	if err != nil {
		w.logger.Errorf("roll (%s): %d dates failed: %v", trigger, report.Failed, err)
	}
	if n, err := w.roller.RegenerateDirty(ctx); err != nil {
		w.logger.Errorf("card regeneration: %v", err)
	} else if n > 0 {
		w.logger.Infof("regenerated cards for %d instances", n)
	}
}
