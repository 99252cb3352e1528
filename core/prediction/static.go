package prediction

import (
	"context"
	"sync"

	"github.com/kilianp07/bmsctl/core/model"
)

// Static returns fixed predictions.
type Static struct {
	SoC         float64 `json:"soc"`
	Temperature float64 `json:"temperature"`
}

func (s Static) PredictSoC(context.Context, []model.FeatureVector) (float64, error) {
	return s.SoC, nil
}

func (s Static) PredictTemperature(context.Context, []model.FeatureVector) (float64, error) {
	return s.Temperature, nil
}

// Sequence replays scripted predictions, one pair per call of
// PredictTemperature. Once exhausted the last pair repeats.
type Sequence struct {
	mu    sync.Mutex
	SoC   []float64
	Temps []float64
	Err   error
	pos   int
}

func (s *Sequence) PredictSoC(ctx context.Context, _ []model.FeatureVector) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return pick(s.SoC, s.pos), nil
}

func (s *Sequence) PredictTemperature(ctx context.Context, _ []model.FeatureVector) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	v := pick(s.Temps, s.pos)
	s.pos++
	return v, nil
}

func pick(vals []float64, i int) float64 {
	if len(vals) == 0 {
		return 0
	}
	if i >= len(vals) {
		return vals[len(vals)-1]
	}
	return vals[i]
}
