package prediction

import (
	"fmt"
	"time"

	"github.com/kilianp07/bmsctl/core/factory"
)

var registry = factory.NewRegistry[Oracle]("oracle")

func init() {
	registry.MustRegister("static", func(conf map[string]any) (Oracle, error) {
		var s Static
		if err := factory.Decode(conf, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	registry.MustRegister("persistence", func(conf map[string]any) (Oracle, error) {
		var c PersistenceConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewPersistence(c), nil
	})
	registry.MustRegister("linear", func(conf map[string]any) (Oracle, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("linear oracle: path required")
		}
		return LoadLinear(c.Path)
	})
}

// New creates an oracle from its module configuration and bounds it with
// timeout.
func New(cfg factory.ModuleConfig, timeout time.Duration) (Oracle, error) {
	o, err := registry.Create(cfg)
	if err != nil {
		return nil, err
	}
	return WithTimeout(o, timeout), nil
}

// Register adds an oracle factory, typically for an externally hosted model.
func Register(name string, f factory.Factory[Oracle]) error {
	return registry.Register(name, f)
}

// Types lists the registered oracle types.
func Types() []string { return registry.Types() }
