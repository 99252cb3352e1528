// Package classifier provides mode classifiers for the AI-assisted policy.
// A classifier returns a raw mode name; the selector parses and validates it.
package classifier

import (
	"context"

	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/model"
)

// Classifier picks a mode name from the predicted temperature, predicted SoC
// and requested current.
type Classifier interface {
	Classify(ctx context.Context, temp, soc, current float64) (string, error)
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, temp, soc, current float64) (string, error)

func (f Func) Classify(ctx context.Context, temp, soc, current float64) (string, error) {
	return f(ctx, temp, soc, current)
}

// Static always returns the same name.
type Static struct {
	Name string `json:"mode"`
}

func (s Static) Classify(context.Context, float64, float64, float64) (string, error) {
	return s.Name, nil
}

// RuleConfig holds the thresholds of RuleClassifier.
type RuleConfig struct {
	HotTemp     float64 `json:"hot_temp"`
	LowSoC      float64 `json:"low_soc"`
	HighCurrent float64 `json:"high_current"`
}

// SetDefaults fills zero thresholds.
func (c *RuleConfig) SetDefaults() {
	if c.HotTemp == 0 {
		c.HotTemp = 36
	}
	if c.LowSoC == 0 {
		c.LowSoC = 20
	}
	if c.HighCurrent == 0 {
		c.HighCurrent = 40
	}
}

// RuleClassifier favours Eco when the pack runs hot or low, Performance on
// high demand and Balanced otherwise.
type RuleClassifier struct {
	cfg RuleConfig
}

// NewRule returns a RuleClassifier with defaults applied to cfg.
func NewRule(cfg RuleConfig) *RuleClassifier {
	cfg.SetDefaults()
	return &RuleClassifier{cfg: cfg}
}

func (r *RuleClassifier) Classify(ctx context.Context, temp, soc, current float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case temp >= r.cfg.HotTemp:
		return model.ModeEco.String(), nil
	case soc <= r.cfg.LowSoC:
		return model.ModeEco.String(), nil
	case current >= r.cfg.HighCurrent:
		return model.ModePerformance.String(), nil
	default:
		return model.ModeBalanced.String(), nil
	}
}

var registry = factory.NewRegistry[Classifier]("classifier")

func init() {
	registry.MustRegister("rule", func(conf map[string]any) (Classifier, error) {
		var c RuleConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRule(c), nil
	})
	registry.MustRegister("static", func(conf map[string]any) (Classifier, error) {
		var s Static
		if err := factory.Decode(conf, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
}

// New creates a classifier from its module configuration.
func New(cfg factory.ModuleConfig) (Classifier, error) {
	return registry.Create(cfg)
}

// Register adds a classifier factory. It is used by packages wiring their own
// models.
func Register(name string, f factory.Factory[Classifier]) error {
	return registry.Register(name, f)
}

// Types lists the registered classifier types.
func Types() []string { return registry.Types() }
