package simulator

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/source"
)

// Config configures the "sim" source.
type Config struct {
	PackConfig `json:",squash"`
	StepMS     int     `json:"step_ms"`
	Current    float64 `json:"current"` // A drawn until the first decision arrives
	Samples    int     `json:"samples"` // 0 runs until closed
}

func (c *Config) SetDefaults() {
	c.PackConfig.SetDefaults()
	if c.StepMS == 0 {
		c.StepMS = 1000
	}
	if c.Current == 0 {
		c.Current = 40
	}
}

func (c Config) Validate() error {
	if c.StepMS < 0 || c.Samples < 0 {
		return errors.New("simulator: step_ms and samples must not be negative")
	}
	if c.InitialSoC < 0 || c.InitialSoC > 1 {
		return errors.New("simulator: initial_soc must be within [0,1]")
	}
	if c.CoolingHigh < c.CoolingLow {
		return errors.New("simulator: cooling_high must be >= cooling_low")
	}
	return nil
}

// Simulator is both a source and a sink: Next advances the pack by one
// simulated step, Emit applies a decision to it.
type Simulator struct {
	mu     sync.Mutex
	pack   *Pack
	step   time.Duration
	limit  int
	n      int
	closed bool
}

func New(cfg Config) (*Simulator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := NewPack(cfg.PackConfig)
	p.Drive(cfg.Current, model.CoolingLow)
	return &Simulator{pack: p, step: time.Duration(cfg.StepMS) * time.Millisecond, limit: cfg.Samples}, nil
}

// Next returns the next sample. Simulated time is decoupled from the tick
// period of the loop.
func (s *Simulator) Next(ctx context.Context) (model.FeatureVector, error) {
	if err := ctx.Err(); err != nil {
		return model.FeatureVector{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (s.limit > 0 && s.n >= s.limit) {
		return model.FeatureVector{}, io.EOF
	}
	drop := 0.0
	if s.n > 0 {
		drop = s.pack.Step(s.step)
	}
	s.n++
	return s.pack.Sample(drop), nil
}

// Emit drives the pack with the decided current and cooling.
func (s *Simulator) Emit(_ int, d model.ControlDecision) error {
	s.mu.Lock()
	s.pack.Drive(d.AdjustedCurrent, d.Cooling)
	s.mu.Unlock()
	return nil
}

// State returns the physical SoC (percent) and temperature (°C).
func (s *Simulator) State() (soc, temp float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pack.SoC() * 100, s.pack.Temperature()
}

// SetPoint returns the current and cooling the pack is being driven with.
func (s *Simulator) SetPoint() (float64, model.CoolingIntensity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pack.current, s.pack.cooling
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func init() {
	_ = source.Register("sim", func(conf map[string]any) (source.Source, error) {
		var cfg Config
		if err := factory.Decode(conf, &cfg); err != nil {
			return nil, err
		}
		return New(cfg)
	})
}
