package model

import "time"

// ControlDecision is the controller output for one tick. The first four
// fields are the actuation; the remaining ones echo the inputs for sinks.
type ControlDecision struct {
	Mode            Mode             `json:"mode"`
	Cooling         CoolingIntensity `json:"cooling_intensity"`
	AdjustedCurrent float64          `json:"adjusted_current"`
	OverTempWarning bool             `json:"over_temp_warning"`

	PredictedTemp    float64 `json:"predicted_temp"`
	PredictedSoC     float64 `json:"predicted_soc"`
	RequestedCurrent float64 `json:"requested_current"`
}

// TickRecord is a decision stamped with the tick that produced it.
type TickRecord struct {
	Tick     int             `json:"tick"`
	Time     time.Time       `json:"time"`
	Decision ControlDecision `json:"decision"`
}
