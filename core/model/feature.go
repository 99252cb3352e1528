package model

import "fmt"

// FeatureCount is the number of readings carried by a FeatureVector.
const FeatureCount = 10

// FeatureNames lists the feature columns in canonical order.
var FeatureNames = [FeatureCount]string{
	"Voltage", "Current", "SOC", "SOH", "Temperature",
	"PumpDutyCycle", "FanSpeed", "LiquidLevel", "AmbientTemp", "SOC_change",
}

// FeatureVector is one normalized sensor sample. All readings are expected to
// be scaled to [0,1] before they reach the controller.
type FeatureVector struct {
	Voltage       float64 `json:"voltage"`
	Current       float64 `json:"current"`
	SoC           float64 `json:"soc"`
	SoH           float64 `json:"soh"`
	Temperature   float64 `json:"temperature"`
	PumpDutyCycle float64 `json:"pump_duty_cycle"`
	FanSpeed      float64 `json:"fan_speed"`
	LiquidLevel   float64 `json:"liquid_level"`
	AmbientTemp   float64 `json:"ambient_temp"`
	SoCChange     float64 `json:"soc_change"`
}

// Values returns the readings in canonical order.
func (f FeatureVector) Values() []float64 {
	return []float64{
		f.Voltage, f.Current, f.SoC, f.SoH, f.Temperature,
		f.PumpDutyCycle, f.FanSpeed, f.LiquidLevel, f.AmbientTemp, f.SoCChange,
	}
}

// FeatureVectorFromValues builds a vector from readings in canonical order.
func FeatureVectorFromValues(v []float64) (FeatureVector, error) {
	if len(v) != FeatureCount {
		return FeatureVector{}, fmt.Errorf("expected %d features, got %d", FeatureCount, len(v))
	}
	return FeatureVector{
		Voltage:       v[0],
		Current:       v[1],
		SoC:           v[2],
		SoH:           v[3],
		Temperature:   v[4],
		PumpDutyCycle: v[5],
		FanSpeed:      v[6],
		LiquidLevel:   v[7],
		AmbientTemp:   v[8],
		SoCChange:     v[9],
	}, nil
}
