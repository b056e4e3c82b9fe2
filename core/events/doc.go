// Package events defines the scheduling events emitted on the event bus.
//
// Available event types:
//   - RuleChanged: an intent or exception was created, updated or deleted
//   - InstanceProcessed: one program/date went through the roll pipeline
//   - CardsGenerated: the card set of an instance was replaced
//   - ShortfallDetected: staff or vehicle capacity fell short
//   - RouteSplit: a route exceeded the run ceiling and was split
//   - HookFailed: a post-commit side effect failed
//   - RollCompleted: a roll over the window finished
package events
