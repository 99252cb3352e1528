// Package events defines the control loop events published on the event bus.
//
// Available event types:
//   - DecisionEvent: a decision was produced and emitted
//   - WarningEvent: the predicted temperature crossed the mode's hard limit
//   - FailureEvent: a tick failed (oracle, unknown mode, sink or source)
//   - StateEvent: the loop changed lifecycle state
package events
