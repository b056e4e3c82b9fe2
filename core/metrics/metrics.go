package metrics

import (
	"time"

	"github.com/kilianp07/loom/core/model"
)

// RollEvent summarises one roll over the window.
type RollEvent struct {
	Trigger      string
	Weeks        int
	Processed    int
	Skipped      int
	Removed      int
	Failed       int
	Pruned       int
	Duration     time.Duration
	Revenue      float64
	MeanMargin   float64
	MarginStdDev float64
	Time         time.Time
}

// MetricsSink records roll summaries. Sinks may implement the optional
// recorder interfaces below for finer grained events.
type MetricsSink interface {
	RecordRoll(ev RollEvent) error
}

// InstanceEvent captures one program/date pass through the pipeline.
type InstanceEvent struct {
	InstanceID string
	ProgramID  string
	Date       time.Time
	Outcome    string
	Financials model.Financials
	Duration   time.Duration
	Time       time.Time
}

// InstanceRecorder records processed instances.
type InstanceRecorder interface {
	RecordInstance(ev InstanceEvent) error
}

// ShortfallEvent is an under-resourced instance.
type ShortfallEvent struct {
	InstanceID string
	ProgramID  string
	Date       time.Time
	Resource   model.Resource
	Required   int
	Assigned   int
	Time       time.Time
}

// ShortfallRecorder records shortfalls.
type ShortfallRecorder interface {
	RecordShortfall(ev ShortfallEvent) error
}

// RouteSplitEvent is a route split into several runs.
type RouteSplitEvent struct {
	InstanceID       string
	VehicleID        string
	Direction        model.Direction
	Runs             int
	EstimatedMinutes float64
	Time             time.Time
}

// RouteSplitRecorder records route splits.
type RouteSplitRecorder interface {
	RecordRouteSplit(ev RouteSplitEvent) error
}

// CardsEvent is a replaced card set.
type CardsEvent struct {
	InstanceID string
	ProgramID  string
	Date       time.Time
	Counts     map[model.CardType]int
	Time       time.Time
}

// CardsRecorder records card generation.
type CardsRecorder interface {
	RecordCards(ev CardsEvent) error
}

// HookFailureEvent is a failed post-commit side effect.
type HookFailureEvent struct {
	Hook     string
	EntityID string
	Error    string
	Time     time.Time
}

// HookFailureRecorder records hook failures.
type HookFailureRecorder interface {
	RecordHookFailure(ev HookFailureEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordRoll(RollEvent) error { return nil }

func (NopSink) RecordInstance(InstanceEvent) error       { return nil }
func (NopSink) RecordShortfall(ShortfallEvent) error     { return nil }
func (NopSink) RecordRouteSplit(RouteSplitEvent) error   { return nil }
func (NopSink) RecordCards(CardsEvent) error             { return nil }
func (NopSink) RecordHookFailure(HookFailureEvent) error { return nil }
