// Package policy holds the mode to parameters table consulted by the selector.
package policy

import (
	"fmt"

	"github.com/kilianp07/bmsctl/core/model"
)

// Config maps mode names to parameter rows. Rows override the built-in
// defaults; a "Custom" row enables the Custom mode.
type Config map[string]model.ModeParams

// Defaults returns the built-in rows for Performance, Eco and Balanced.
func Defaults() map[model.Mode]model.ModeParams {
	return map[model.Mode]model.ModeParams{
		model.ModePerformance: {CoolingThreshold: 35, MaxCurrent: 50, MaxTemp: 40},
		model.ModeEco:         {CoolingThreshold: 30, MaxCurrent: 20, MaxTemp: 35},
		model.ModeBalanced:    {CoolingThreshold: 33, MaxCurrent: 35, MaxTemp: 37},
	}
}

// Table is an immutable lookup from mode to parameters. It is safe for
// concurrent readers.
type Table struct {
	rows map[model.Mode]model.ModeParams
}

// Load merges cfg over the defaults and validates every row.
func Load(cfg Config) (*Table, error) {
	rows := Defaults()
	for name, p := range cfg {
		m, err := model.ParseMode(name)
		if err != nil {
			return nil, fmt.Errorf("policy row %q: %w", name, err)
		}
		rows[m] = p
	}
	for m, p := range rows {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy row %s: %w", m, err)
		}
	}
	return &Table{rows: rows}, nil
}

// MustDefault returns the table holding only the built-in rows.
func MustDefault() *Table {
	t, err := Load(nil)
	if err != nil {
		panic(err)
	}
	return t
}

// Get returns the parameters of m. A missing row is an error, never a
// fallback.
func (t *Table) Get(m model.Mode) (model.ModeParams, error) {
	p, ok := t.rows[m]
	if !ok {
		return model.ModeParams{}, fmt.Errorf("%w: %s", model.ErrUnknownMode, m)
	}
	return p, nil
}

// Has reports whether m has a row.
func (t *Table) Has(m model.Mode) bool {
	_, ok := t.rows[m]
	return ok
}

// Require is Get for configuration checks: it reports a missing Custom row
// as model.ErrMissingCustomParams.
func (t *Table) Require(m model.Mode) error {
	if t.Has(m) {
		return nil
	}
	if m == model.ModeCustom {
		return model.ErrMissingCustomParams
	}
	return fmt.Errorf("%w: %s", model.ErrUnknownMode, m)
}

// Modes lists configured modes in enum order.
func (t *Table) Modes() []model.Mode {
	out := make([]model.Mode, 0, len(t.rows))
	for _, m := range model.AllModes() {
		if _, ok := t.rows[m]; ok {
			out = append(out, m)
		}
	}
	return out
}
