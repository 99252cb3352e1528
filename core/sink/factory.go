package sink

import "github.com/kilianp07/bmsctl/core/factory"

var registry = factory.NewRegistry[Sink]("sink")

func init() {
	registry.MustRegister("nop", func(map[string]any) (Sink, error) {
		return NopSink{}, nil
	})
	registry.MustRegister("memory", func(map[string]any) (Sink, error) {
		return &MemorySink{}, nil
	})
}

// Register adds a sink factory identified by name.
func Register(name string, f factory.Factory[Sink]) error {
	return registry.Register(name, f)
}

// Types lists the registered sink types.
func Types() []string { return registry.Types() }

// New builds the configured sinks. No configuration yields a NopSink and
// several sinks are wrapped in a MultiSink.
func New(cfgs []factory.ModuleConfig) (Sink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return registry.Create(cfgs[0])
	}
	sinks := make([]Sink, 0, len(cfgs))
	for _, c := range cfgs {
		s, err := registry.Create(c)
		if err != nil {
			// release what was already built
			_ = NewMultiSink(sinks...).Close()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return NewMultiSink(sinks...), nil
}
