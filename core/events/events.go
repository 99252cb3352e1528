package events

import (
	"time"

	"github.com/kilianp07/bmsctl/core/model"
)

// Event is implemented by every event published by the control loop.
type Event interface {
	Kind() string
}

// Failure kinds carried by FailureEvent.
const (
	FailureOracle      = "oracle"
	FailureUnknownMode = "unknown_mode"
	FailureSink        = "sink"
	FailureSource      = "source"
	FailureInput       = "input"
)

// DecisionEvent is published after a decision has been handed to the sink.
type DecisionEvent struct {
	RunID    string
	Tick     int
	Time     time.Time
	Decision model.ControlDecision
}

func (DecisionEvent) Kind() string { return "decision" }

// WarningEvent is published when a decision carries OverTempWarning.
type WarningEvent struct {
	RunID         string
	Tick          int
	Time          time.Time
	Mode          model.Mode
	PredictedTemp float64
	MaxTemp       float64
}

func (WarningEvent) Kind() string { return "warning" }

// FailureEvent is published for every failed tick, whatever the failure
// policy.
type FailureEvent struct {
	RunID  string
	Tick   int
	Time   time.Time
	Reason string // one of the Failure* constants
	Mode   model.Mode
	Err    error
}

func (FailureEvent) Kind() string { return "failure" }

// StateEvent is published on every lifecycle transition.
type StateEvent struct {
	RunID string
	From  string
	To    string
	Time  time.Time
	Err   error
}

func (StateEvent) Kind() string { return "state" }
