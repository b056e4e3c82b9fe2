package metrics

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/loom/core/events"
	"github.com/kilianp07/loom/core/logger"
	coremetrics "github.com/kilianp07/loom/core/metrics"
	"github.com/kilianp07/loom/internal/eventbus"
)

// rollStats accumulates the financials of instances allocated since the
// last RollCompleted.
type rollStats struct {
	mu       sync.Mutex
	margins  []float64
	revenues []float64
}

func (r *rollStats) add(ev events.InstanceProcessed) {
	if ev.Outcome != events.OutcomeProcessed || ev.Financials.Revenue == 0 {
		return
	}
	r.mu.Lock()
	r.margins = append(r.margins, ev.Financials.Margin)
	r.revenues = append(r.revenues, ev.Financials.Revenue)
	r.mu.Unlock()
}

// drain returns the revenue total, mean margin and margin standard
// deviation, then resets.
func (r *rollStats) drain() (revenue, mean, stddev float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.margins) > 0 {
		revenue = floats.Sum(r.revenues)
		mean = stat.Mean(r.margins, nil)
		if len(r.margins) > 1 {
			stddev = stat.StdDev(r.margins, nil)
		}
	}
	r.margins, r.revenues = r.margins[:0], r.revenues[:0]
	return revenue, mean, stddev
}

// StartEventCollector subscribes to the event bus and records metrics for events.
// It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink, log logger.Logger) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	stats := &rollStats{}
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, stats, ev, time.Now()); err != nil {
					log.Warnf("metrics sink: %v", err)
				}
			}
		}
	}()
}

func record(sink coremetrics.MetricsSink, stats *rollStats, ev eventbus.Event, now time.Time) error {
	switch e := ev.(type) {
	case events.RollCompleted:
		revenue, mean, stddev := stats.drain()
		return sink.RecordRoll(coremetrics.RollEvent{
			Trigger:      e.Trigger,
			Weeks:        e.Weeks,
			Processed:    e.Processed,
			Skipped:      e.Skipped,
			Removed:      e.Removed,
			Failed:       e.Failed,
			Pruned:       e.Pruned,
			Duration:     e.Duration,
			Revenue:      revenue,
			MeanMargin:   mean,
			MarginStdDev: stddev,
			Time:         now,
		})
	case events.InstanceProcessed:
		stats.add(e)
		if r, ok := sink.(coremetrics.InstanceRecorder); ok {
			return r.RecordInstance(coremetrics.InstanceEvent{
				InstanceID: e.InstanceID,
				ProgramID:  e.ProgramID,
				Date:       e.Date,
				Outcome:    string(e.Outcome),
				Financials: e.Financials,
				Duration:   e.Duration,
				Time:       now,
			})
		}
	case events.ShortfallDetected:
		if r, ok := sink.(coremetrics.ShortfallRecorder); ok {
			return r.RecordShortfall(coremetrics.ShortfallEvent{
				InstanceID: e.InstanceID,
				ProgramID:  e.ProgramID,
				Date:       e.Date,
				Resource:   e.Warning.Resource,
				Required:   e.Warning.Required,
				Assigned:   e.Warning.Assigned,
				Time:       now,
			})
		}
	case events.RouteSplit:
		if r, ok := sink.(coremetrics.RouteSplitRecorder); ok {
			return r.RecordRouteSplit(coremetrics.RouteSplitEvent{
				InstanceID:       e.InstanceID,
				VehicleID:        e.Warning.VehicleID,
				Direction:        e.Warning.Direction,
				Runs:             e.Warning.Runs,
				EstimatedMinutes: e.Warning.EstimatedMinutes,
				Time:             now,
			})
		}
	case events.CardsGenerated:
		if r, ok := sink.(coremetrics.CardsRecorder); ok {
			return r.RecordCards(coremetrics.CardsEvent{
				InstanceID: e.InstanceID,
				ProgramID:  e.ProgramID,
				Date:       e.Date,
				Counts:     e.Counts,
				Time:       now,
			})
		}
	case events.HookFailed:
		if r, ok := sink.(coremetrics.HookFailureRecorder); ok {
			msg := ""
			if e.Err != nil {
				msg = e.Err.Error()
			}
			return r.RecordHookFailure(coremetrics.HookFailureEvent{Hook: e.Hook, EntityID: e.EntityID, Error: msg, Time: now})
		}
	}
	return nil
}
