// Package selector turns predictions into control decisions. It holds no
// state: the same inputs always produce the same decision.
package selector

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/bmsctl/core/classifier"
	"github.com/kilianp07/bmsctl/core/model"
)

// ParamsLookup resolves the parameters of a mode. *policy.Table implements it.
type ParamsLookup interface {
	Get(model.Mode) (model.ModeParams, error)
}

// Decide applies a parameter row to the predicted temperature and requested
// current. Comparisons are strict: a temperature equal to a threshold does not
// cross it.
func Decide(p model.ModeParams, mode model.Mode, temp, soc, current float64) model.ControlDecision {
	d := model.ControlDecision{
		Mode:             mode,
		Cooling:          model.CoolingLow,
		AdjustedCurrent:  math.Min(current, p.MaxCurrent),
		OverTempWarning:  temp > p.MaxTemp,
		PredictedTemp:    temp,
		PredictedSoC:     soc,
		RequestedCurrent: current,
	}
	if temp > p.CoolingThreshold {
		d.Cooling = model.CoolingHigh
	}
	return d
}

// Selector implements the fixed and AI-assisted policies over a table.
type Selector struct {
	table ParamsLookup
}

// New returns a Selector reading parameters from table.
func New(table ParamsLookup) *Selector {
	return &Selector{table: table}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Select applies the fixed policy for mode. NaN or infinite predictions fail
// with model.ErrOracleFailure and a non-finite current with
// model.ErrInvalidInput, so garbage never yields a calm decision.
func (s *Selector) Select(temp, soc, current float64, mode model.Mode) (model.ControlDecision, error) {
	if !finite(temp) || !finite(soc) {
		return model.ControlDecision{}, fmt.Errorf("%w: non-finite prediction (temp=%v soc=%v)", model.ErrOracleFailure, temp, soc)
	}
	if !finite(current) {
		return model.ControlDecision{}, fmt.Errorf("%w: requested current %v", model.ErrInvalidInput, current)
	}
	p, err := s.table.Get(mode)
	if err != nil {
		return model.ControlDecision{}, err
	}
	return Decide(p, mode, temp, soc, current), nil
}

// SelectAI asks c for a mode name and applies that mode. A name that does not
// parse or has no row fails with model.ErrUnknownMode; classifier errors are
// reported as model.ErrOracleFailure.
func (s *Selector) SelectAI(ctx context.Context, temp, soc, current float64, c classifier.Classifier) (model.ControlDecision, error) {
	name, err := classify(ctx, c, temp, soc, current)
	if err != nil {
		return model.ControlDecision{}, fmt.Errorf("%w: classifier: %w", model.ErrOracleFailure, err)
	}
	mode, err := model.ParseMode(name)
	if err != nil {
		return model.ControlDecision{}, fmt.Errorf("classifier output: %w", err)
	}
	return s.Select(temp, soc, current, mode)
}

// ErrClassifierPanic wraps a panic raised by a classifier.
var ErrClassifierPanic = errors.New("classifier panicked")

func classify(ctx context.Context, c classifier.Classifier, temp, soc, current float64) (name string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrClassifierPanic, p)
		}
	}()
	return c.Classify(ctx, temp, soc, current)
}
