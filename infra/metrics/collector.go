package metrics

import (
	"context"
	"errors"

	"github.com/kilianp07/bmsctl/core/events"
	"github.com/kilianp07/bmsctl/core/logger"
	"github.com/kilianp07/bmsctl/core/sink"
	"github.com/kilianp07/bmsctl/internal/eventbus"
)

// StateRecorder is implemented by sinks tracking controller lifecycle
// transitions.
type StateRecorder interface {
	RecordState(ev events.StateEvent) error
}

// StartEventCollector subscribes to the bus and forwards lifecycle events to
// rec. Decisions, warnings and failures reach sinks directly from the loop.
// It stops when ctx is cancelled or the bus is closed.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.Event], rec StateRecorder, log logger.Logger) {
	if bus == nil || rec == nil {
		return
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if e, ok := ev.(events.StateEvent); ok {
					if err := rec.RecordState(e); err != nil {
						log.Warnf("record state %s->%s: %v", e.From, e.To, err)
					}
				}
			}
		}
	}()
}

type stateFanout []StateRecorder

func (f stateFanout) RecordState(ev events.StateEvent) error {
	var errs []error
	for _, r := range f {
		if err := r.RecordState(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StateRecorders returns the state recorders found in s, looking inside a
// MultiSink. It returns nil when there are none.
func StateRecorders(s sink.Sink) StateRecorder {
	var found stateFanout
	var walk func(sink.Sink)
	walk = func(s sink.Sink) {
		if m, ok := s.(*sink.MultiSink); ok {
			for _, inner := range m.Sinks {
				walk(inner)
			}
			return
		}
		if r, ok := s.(StateRecorder); ok {
			found = append(found, r)
		}
	}
	walk(s)
	if len(found) == 0 {
		return nil
	}
	return found
}
