// Package source defines where feature vectors come from. Concrete
// transports (CSV replay, MQTT, serial) live under infra/ and register
// themselves with Register.
package source

import (
	"context"
	"io"
	"sync"

	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/model"
)

// Source yields one normalized sample per call. It returns io.EOF once no
// more samples will ever be produced, and must honour ctx while blocked.
type Source interface {
	Next(ctx context.Context) (model.FeatureVector, error)
}

// Func adapts a function to the Source interface.
type Func func(ctx context.Context) (model.FeatureVector, error)

func (f Func) Next(ctx context.Context) (model.FeatureVector, error) { return f(ctx) }

// SliceSource replays samples from memory.
type SliceSource struct {
	mu      sync.Mutex
	samples []model.FeatureVector
	loop    bool
	pos     int
}

// NewSlice returns a source yielding samples in order. With loop set it wraps
// around instead of returning io.EOF.
func NewSlice(samples []model.FeatureVector, loop bool) *SliceSource {
	return &SliceSource{samples: append([]model.FeatureVector(nil), samples...), loop: loop}
}

func (s *SliceSource) Next(ctx context.Context) (model.FeatureVector, error) {
	if err := ctx.Err(); err != nil {
		return model.FeatureVector{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return model.FeatureVector{}, io.EOF
	}
	if s.pos >= len(s.samples) {
		if !s.loop {
			return model.FeatureVector{}, io.EOF
		}
		s.pos = 0
	}
	v := s.samples[s.pos]
	s.pos++
	return v, nil
}

// Len returns the number of samples held.
func (s *SliceSource) Len() int { return len(s.samples) }

var registry = factory.NewRegistry[Source]("source")

func init() {
	registry.MustRegister("slice", func(conf map[string]any) (Source, error) {
		var c struct {
			Samples []model.FeatureVector `json:"samples"`
			Loop    bool                  `json:"loop"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSlice(c.Samples, c.Loop), nil
	})
}

// Register adds a source factory identified by name.
func Register(name string, f factory.Factory[Source]) error {
	return registry.Register(name, f)
}

// New builds the configured source.
func New(cfg factory.ModuleConfig) (Source, error) {
	return registry.Create(cfg)
}

// Close closes src when it implements io.Closer.
func Close(src Source) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Types lists the registered source types.
func Types() []string { return registry.Types() }
