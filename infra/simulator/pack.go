// Package simulator models a liquid-cooled battery pack. Used as the "sim"
// source it feeds the controller normalized samples and takes the emitted
// decisions back as its cooling and current set points.
package simulator

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/kilianp07/bmsctl/core/model"
)

// Physical spans used to normalize samples. Temperature matches the default
// range of the persistence oracle.
var (
	VoltageRange = [2]float64{300, 420}
	CurrentRange = [2]float64{0, 100}
	TempRange    = [2]float64{20, 45}
	AmbientRange = [2]float64{10, 40}
)

// PackConfig holds the electrical and thermal constants of the pack.
type PackConfig struct {
	CapacityAh    float64 `json:"capacity_ah"`
	ResistanceOhm float64 `json:"resistance_ohm"`
	HeatCapacity  float64 `json:"heat_capacity"` // J/K
	CoolingLow    float64 `json:"cooling_low"`   // W/K
	CoolingHigh   float64 `json:"cooling_high"`  // W/K
	AmbientTemp   float64 `json:"ambient_temp"`
	InitialSoC    float64 `json:"initial_soc"` // [0,1]
	InitialTemp   float64 `json:"initial_temp"`
	SoH           float64 `json:"soh"`
	LiquidLevel   float64 `json:"liquid_level"`
	Noise         float64 `json:"noise"` // stddev of the temperature sensor, °C
	Seed          uint64  `json:"seed"`
}

func (c *PackConfig) SetDefaults() {
	if c.CapacityAh == 0 {
		c.CapacityAh = 100
	}
	if c.ResistanceOhm == 0 {
		c.ResistanceOhm = 0.05
	}
	if c.HeatCapacity == 0 {
		c.HeatCapacity = 20000
	}
	if c.CoolingLow == 0 {
		c.CoolingLow = 5
	}
	if c.CoolingHigh == 0 {
		c.CoolingHigh = 25
	}
	if c.AmbientTemp == 0 {
		c.AmbientTemp = 25
	}
	if c.InitialSoC == 0 {
		c.InitialSoC = 0.8
	}
	if c.InitialTemp == 0 {
		c.InitialTemp = c.AmbientTemp
	}
	if c.SoH == 0 {
		c.SoH = 0.95
	}
	if c.LiquidLevel == 0 {
		c.LiquidLevel = 0.9
	}
}

// Pack is the simulated state. It is not safe for concurrent use; Simulator
// serializes access.
type Pack struct {
	cfg     PackConfig
	soc     float64
	temp    float64
	current float64
	cooling model.CoolingIntensity
	rng     *rand.Rand
}

func NewPack(cfg PackConfig) *Pack {
	cfg.SetDefaults()
	return &Pack{
		cfg:  cfg,
		soc:  cfg.InitialSoC,
		temp: cfg.InitialTemp,
		rng:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Drive sets the discharge current and cooling intensity for the next steps.
func (p *Pack) Drive(currentA float64, c model.CoolingIntensity) {
	if currentA < 0 {
		currentA = 0
	}
	p.current = currentA
	p.cooling = c
}

// Step advances the pack by dt and returns the SoC drop over the step.
// Joule heating warms the pack and the coolant pulls it towards ambient.
func (p *Pack) Step(dt time.Duration) float64 {
	s := dt.Seconds()
	if s <= 0 {
		return 0
	}
	drawn := p.current * s / 3600 / p.cfg.CapacityAh
	if drawn > p.soc {
		drawn = p.soc
		p.current = 0
	}
	p.soc -= drawn

	k := p.cfg.CoolingLow
	if p.cooling == model.CoolingHigh {
		k = p.cfg.CoolingHigh
	}
	heat := p.current * p.current * p.cfg.ResistanceOhm
	loss := k * (p.temp - p.cfg.AmbientTemp)
	p.temp += (heat - loss) * s / p.cfg.HeatCapacity
	return drawn
}

// SoC returns the state of charge in [0,1].
func (p *Pack) SoC() float64 { return p.soc }

// Temperature returns the pack temperature in °C.
func (p *Pack) Temperature() float64 { return p.temp }

// Voltage is a linear open-circuit curve minus the IR drop.
func (p *Pack) Voltage() float64 {
	return 330 + 80*p.soc - p.current*p.cfg.ResistanceOhm
}

// Sample returns the current readings normalized to [0,1]. socDrop is the
// change since the previous sample.
func (p *Pack) Sample(socDrop float64) model.FeatureVector {
	temp := p.temp
	if p.cfg.Noise > 0 {
		temp += p.rng.NormFloat64() * p.cfg.Noise
	}
	duty := 0.3
	if p.cooling == model.CoolingHigh {
		duty = 0.9
	}
	return model.FeatureVector{
		Voltage:       norm(p.Voltage(), VoltageRange),
		Current:       norm(p.current, CurrentRange),
		SoC:           clamp01(p.soc),
		SoH:           p.cfg.SoH,
		Temperature:   norm(temp, TempRange),
		PumpDutyCycle: duty,
		FanSpeed:      duty,
		LiquidLevel:   p.cfg.LiquidLevel,
		AmbientTemp:   norm(p.cfg.AmbientTemp, AmbientRange),
		SoCChange:     clamp01(socDrop * 100),
	}
}

func norm(v float64, r [2]float64) float64 {
	return clamp01((v - r[0]) / (r[1] - r[0]))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
