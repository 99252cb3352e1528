package prediction

import (
	"context"
	"errors"

	"github.com/kilianp07/bmsctl/core/model"
)

// Range is the physical span a normalized feature was scaled from.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Denormalize maps v from [0,1] back onto the range.
func (r Range) Denormalize(v float64) float64 {
	return r.Min + v*(r.Max-r.Min)
}

// PersistenceConfig holds the ranges used to denormalize the newest sample.
type PersistenceConfig struct {
	SoCRange  Range `json:"soc_range"`
	TempRange Range `json:"temp_range"`
}

// SetDefaults fills empty ranges.
func (c *PersistenceConfig) SetDefaults() {
	if c.SoCRange == (Range{}) {
		c.SoCRange = Range{Min: 0, Max: 100}
	}
	if c.TempRange == (Range{}) {
		c.TempRange = Range{Min: 20, Max: 45}
	}
}

// Persistence forecasts that the next step equals the newest observation.
type Persistence struct {
	cfg PersistenceConfig
}

// NewPersistence returns a Persistence oracle with defaults applied.
func NewPersistence(cfg PersistenceConfig) *Persistence {
	cfg.SetDefaults()
	return &Persistence{cfg: cfg}
}

var errEmptyWindow = errors.New("empty window")

func (p *Persistence) PredictSoC(_ context.Context, w []model.FeatureVector) (float64, error) {
	if len(w) == 0 {
		return 0, errEmptyWindow
	}
	return p.cfg.SoCRange.Denormalize(w[len(w)-1].SoC), nil
}

func (p *Persistence) PredictTemperature(_ context.Context, w []model.FeatureVector) (float64, error) {
	if len(w) == 0 {
		return 0, errEmptyWindow
	}
	return p.cfg.TempRange.Denormalize(w[len(w)-1].Temperature), nil
}
