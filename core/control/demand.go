package control

import "github.com/kilianp07/bmsctl/core/model"

// CurrentDemand supplies the current requested from the pack for a tick.
type CurrentDemand interface {
	RequestedCurrent(sample model.FeatureVector) float64
}

// ConstantDemand requests the same current every tick.
type ConstantDemand float64

func (c ConstantDemand) RequestedCurrent(model.FeatureVector) float64 { return float64(c) }

// DemandFunc adapts a function to CurrentDemand.
type DemandFunc func(sample model.FeatureVector) float64

func (f DemandFunc) RequestedCurrent(sample model.FeatureVector) float64 { return f(sample) }
