// Package sink defines where control decisions go once produced. Sinks such
// as the Prometheus, InfluxDB, MQTT and Kafka ones in infra/ are built from
// configuration through the registry and combined with NewMultiSink.
package sink

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/kilianp07/bmsctl/core/events"
	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/logger"
	"github.com/kilianp07/bmsctl/core/model"
)

// Sink receives one decision per successful tick.
type Sink interface {
	Emit(tick int, d model.ControlDecision) error
}

// WarningRecorder is implemented by sinks that track over-temperature
// warnings.
type WarningRecorder interface {
	RecordWarning(ev events.WarningEvent) error
}

// FailureRecorder is implemented by sinks that track tick failures.
type FailureRecorder interface {
	RecordFailure(ev events.FailureEvent) error
}

// Config lists the sinks to build.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) Emit(int, model.ControlDecision) error   { return nil }
func (NopSink) RecordWarning(events.WarningEvent) error { return nil }
func (NopSink) RecordFailure(events.FailureEvent) error { return nil }

// Func adapts a function to the Sink interface.
type Func func(tick int, d model.ControlDecision) error

func (f Func) Emit(tick int, d model.ControlDecision) error { return f(tick, d) }

// MultiSink fans out to several sinks. Every sink is called even when an
// earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) Emit(tick int, d model.ControlDecision) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.Emit(tick, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordWarning forwards to sinks implementing WarningRecorder.
func (m *MultiSink) RecordWarning(ev events.WarningEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(WarningRecorder); ok {
			if err := r.RecordWarning(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordFailure forwards to sinks implementing FailureRecorder.
func (m *MultiSink) RecordFailure(ev events.FailureEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(FailureRecorder); ok {
			if err := r.RecordFailure(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink implementing io.Closer.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes s when it implements io.Closer.
func Close(s Sink) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// LogSink writes one line per decision, in the format of the original demo
// console output.
type LogSink struct {
	log logger.Logger
}

// NewLogSink returns a LogSink writing to l.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.NopLogger{}
	}
	return &LogSink{log: l}
}

func (s *LogSink) Emit(tick int, d model.ControlDecision) error {
	s.log.Infof("%s", FormatLine(tick, d))
	return nil
}

func (s *LogSink) RecordWarning(ev events.WarningEvent) error {
	s.log.Warnf("Warning: predicted temperature %.2f°C exceeds %s limit %.2f°C", ev.PredictedTemp, ev.Mode, ev.MaxTemp)
	return nil
}

// FormatLine renders a decision as "Step i: Mode=..., ...".
func FormatLine(tick int, d model.ControlDecision) string {
	return fmt.Sprintf("Step %d: Mode=%s, Predicted Temp=%.2f°C, Cooling=%s, Adjusted Current=%.2fA",
		tick, d.Mode, d.PredictedTemp, d.Cooling, d.AdjustedCurrent)
}

// MemorySink keeps every emitted decision. It backs tests and the replay
// command.
type MemorySink struct {
	mu       sync.Mutex
	records  []model.TickRecord
	warnings []events.WarningEvent
	failures []events.FailureEvent
}

func (m *MemorySink) Emit(tick int, d model.ControlDecision) error {
	m.mu.Lock()
	m.records = append(m.records, model.TickRecord{Tick: tick, Decision: d})
	m.mu.Unlock()
	return nil
}

func (m *MemorySink) RecordWarning(ev events.WarningEvent) error {
	m.mu.Lock()
	m.warnings = append(m.warnings, ev)
	m.mu.Unlock()
	return nil
}

func (m *MemorySink) RecordFailure(ev events.FailureEvent) error {
	m.mu.Lock()
	m.failures = append(m.failures, ev)
	m.mu.Unlock()
	return nil
}

// Records returns a copy of the emitted decisions.
func (m *MemorySink) Records() []model.TickRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TickRecord(nil), m.records...)
}

// Warnings returns a copy of the recorded warnings.
func (m *MemorySink) Warnings() []events.WarningEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.WarningEvent(nil), m.warnings...)
}

// Failures returns a copy of the recorded failures.
func (m *MemorySink) Failures() []events.FailureEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.FailureEvent(nil), m.failures...)
}
