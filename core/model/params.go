package model

import (
	"fmt"
	"math"
)

// ModeParams holds the thresholds and limits attached to a mode.
type ModeParams struct {
	CoolingThreshold float64 `json:"cooling_threshold" yaml:"cooling_threshold"` // °C, cooling goes High above it
	MaxCurrent       float64 `json:"max_current" yaml:"max_current"`             // A, cap on the requested current
	MaxTemp          float64 `json:"max_temp" yaml:"max_temp"`                   // °C, warning above it
}

// Validate checks that the row is usable. A mode must start cooling at or
// before its hard limit.
func (p ModeParams) Validate() error {
	if math.IsNaN(p.CoolingThreshold) || math.IsNaN(p.MaxCurrent) || math.IsNaN(p.MaxTemp) {
		return fmt.Errorf("%w: NaN value", ErrInvalidModeParams)
	}
	if p.CoolingThreshold > p.MaxTemp {
		return fmt.Errorf("%w: cooling_threshold %.2f above max_temp %.2f", ErrInvalidModeParams, p.CoolingThreshold, p.MaxTemp)
	}
	if p.MaxCurrent < 0 {
		return fmt.Errorf("%w: negative max_current %.2f", ErrInvalidModeParams, p.MaxCurrent)
	}
	return nil
}
