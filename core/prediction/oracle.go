package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/bmsctl/core/model"
)

// Oracle forecasts the next state of charge (percent) and temperature (°C)
// from a full window, oldest sample first. Outputs are not clamped.
type Oracle interface {
	PredictSoC(ctx context.Context, window []model.FeatureVector) (float64, error)
	PredictTemperature(ctx context.Context, window []model.FeatureVector) (float64, error)
}

// WindowMatrix lays the window out as a len(window)×FeatureCount matrix.
func WindowMatrix(window []model.FeatureVector) *mat.Dense {
	if len(window) == 0 {
		return nil
	}
	data := make([]float64, 0, len(window)*model.FeatureCount)
	for _, f := range window {
		data = append(data, f.Values()...)
	}
	return mat.NewDense(len(window), model.FeatureCount, data)
}

type timeoutOracle struct {
	next    Oracle
	timeout time.Duration
}

// WithTimeout bounds every call to o by d. Errors, panics, deadline overruns
// and NaN or infinite outputs are reported as model.ErrOracleFailure. A
// non-positive d skips the deadline only.
func WithTimeout(o Oracle, d time.Duration) Oracle {
	return &timeoutOracle{next: o, timeout: d}
}

func (t *timeoutOracle) PredictSoC(ctx context.Context, w []model.FeatureVector) (float64, error) {
	return t.call(ctx, "soc", w, t.next.PredictSoC)
}

func (t *timeoutOracle) PredictTemperature(ctx context.Context, w []model.FeatureVector) (float64, error) {
	return t.call(ctx, "temperature", w, t.next.PredictTemperature)
}

type result struct {
	v   float64
	err error
}

func (t *timeoutOracle) call(ctx context.Context, what string, w []model.FeatureVector, fn func(context.Context, []model.FeatureVector) (float64, error)) (float64, error) {
	var r result
	if t.timeout <= 0 {
		r = guard(ctx, w, fn)
	} else {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
		// buffered so a late oracle never blocks after we gave up
		ch := make(chan result, 1)
		go func() { ch <- guard(ctx, w, fn) }()
		select {
		case r = <-ch:
		case <-ctx.Done():
			r = result{err: ctx.Err()}
		}
	}
	if r.err != nil {
		return 0, fmt.Errorf("%w: predict %s: %w", model.ErrOracleFailure, what, r.err)
	}
	if math.IsNaN(r.v) || math.IsInf(r.v, 0) {
		return 0, fmt.Errorf("%w: predict %s: non-finite value %v", model.ErrOracleFailure, what, r.v)
	}
	return r.v, nil
}

// ErrPanic wraps a panic raised by an oracle.
var ErrPanic = errors.New("oracle panicked")

func guard(ctx context.Context, w []model.FeatureVector, fn func(context.Context, []model.FeatureVector) (float64, error)) (r result) {
	defer func() {
		if p := recover(); p != nil {
			r = result{err: fmt.Errorf("%w: %v", ErrPanic, p)}
		}
	}()
	v, err := fn(ctx, w)
	return result{v: v, err: err}
}
