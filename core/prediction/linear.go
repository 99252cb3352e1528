package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/bmsctl/core/model"
)

// Head is one linear regression output: y = Bias + Weights·x, where x is the
// mean of the last Lookback samples (the whole window when zero), then
// denormalized with Scale.
type Head struct {
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
	Lookback int       `json:"lookback"`
	Scale    Range     `json:"scale"`
}

func (h Head) validate(name string) error {
	if len(h.Weights) != model.FeatureCount {
		return fmt.Errorf("%s head: expected %d weights, got %d", name, model.FeatureCount, len(h.Weights))
	}
	if h.Lookback < 0 {
		return fmt.Errorf("%s head: negative lookback", name)
	}
	return nil
}

// LinearWeights is the on-disk format of a pre-trained Linear oracle.
type LinearWeights struct {
	SoC         Head `json:"soc"`
	Temperature Head `json:"temperature"`
}

// Linear applies pre-trained linear heads to the window.
type Linear struct {
	soc, temp Head
	socW      *mat.VecDense
	tempW     *mat.VecDense
}

// NewLinear validates the weights and returns the oracle.
func NewLinear(w LinearWeights) (*Linear, error) {
	if err := w.SoC.validate("soc"); err != nil {
		return nil, err
	}
	if err := w.Temperature.validate("temperature"); err != nil {
		return nil, err
	}
	return &Linear{
		soc:   w.SoC,
		temp:  w.Temperature,
		socW:  mat.NewVecDense(model.FeatureCount, append([]float64(nil), w.SoC.Weights...)),
		tempW: mat.NewVecDense(model.FeatureCount, append([]float64(nil), w.Temperature.Weights...)),
	}, nil
}

// LoadLinear reads a JSON weights file.
func LoadLinear(path string) (*Linear, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	var w LinearWeights
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("decode weights %s: %w", path, err)
	}
	return NewLinear(w)
}

func (l *Linear) PredictSoC(ctx context.Context, w []model.FeatureVector) (float64, error) {
	return l.apply(ctx, l.soc, l.socW, w)
}

func (l *Linear) PredictTemperature(ctx context.Context, w []model.FeatureVector) (float64, error) {
	return l.apply(ctx, l.temp, l.tempW, w)
}

func (l *Linear) apply(ctx context.Context, h Head, weights *mat.VecDense, w []model.FeatureVector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(w) == 0 {
		return 0, errEmptyWindow
	}
	n := h.Lookback
	if n == 0 || n > len(w) {
		n = len(w)
	}
	x := WindowMatrix(w[len(w)-n:])
	ones := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		ones.SetVec(i, 1/float64(n))
	}
	var mean mat.VecDense
	mean.MulVec(x.T(), ones)
	y := h.Bias + mat.Dot(weights, &mean)
	if h.Scale != (Range{}) {
		y = h.Scale.Denormalize(y)
	}
	return y, nil
}
