package events

import (
	"time"

	"github.com/kilianp07/loom/core/model"
)

// RuleChanged is published after an intent or exception mutation commits.
type RuleChanged struct {
	Entity string
	ID     string
	Action string
	Range  model.Interval
}

// Outcome of processing one program/date.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeRemoved   Outcome = "removed"
	OutcomeFailed    Outcome = "failed"
)

// InstanceProcessed is published for every program/date the roller touches.
type InstanceProcessed struct {
	InstanceID string
	ProgramID  string
	Date       time.Time
	Outcome    Outcome
	Financials model.Financials
	Err        error
	Duration   time.Duration
}

// CardsGenerated is published after a card set is persisted.
type CardsGenerated struct {
	InstanceID string
	ProgramID  string
	Date       time.Time
	Counts     map[model.CardType]int
}

// ShortfallDetected is published when an instance is under-resourced.
type ShortfallDetected struct {
	InstanceID string
	ProgramID  string
	Date       time.Time
	Warning    model.ShortfallWarning
}

// RouteSplit is published when a route is split into several runs.
type RouteSplit struct {
	InstanceID string
	Date       time.Time
	Warning    model.OptimizationWarning
}

// HookFailed is published when a best-effort post-commit hook fails.
type HookFailed struct {
	Hook     string
	EntityID string
	Err      error
}

// RollCompleted summarises a roll.
type RollCompleted struct {
	Trigger   string
	Today     time.Time
	Weeks     int
	Processed int
	Skipped   int
	Removed   int
	Failed    int
	Pruned    int
	Duration  time.Duration
}
