package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/sink"
)

// PromSink records emitted decisions in Prometheus metrics. Warnings and
// tick failures are counted by the controller itself
// (bms_overtemp_warnings_total, bms_tick_failures_total), so the sink does
// not record them again; warnings still show up here through the over_temp
// label of bms_decisions_total.
type PromSink struct {
	decisions *prometheus.CounterVec
	current   *prometheus.HistogramVec
}

// NewPromSink registers the sink metrics on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on reg. A nil registerer defaults
// to the global one. Collectors already registered by an earlier sink are
// reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	decisions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bms_decisions_total",
		Help: "Decisions emitted by the controller",
	}, []string{"mode", "cooling", "over_temp"}))
	if err != nil {
		return nil, err
	}
	current, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bms_decision_adjusted_current_amperes",
		Help:    "Adjusted current of emitted decisions",
		Buckets: []float64{5, 10, 15, 20, 25, 30, 35, 40, 45, 50},
	}, []string{"mode"}))
	if err != nil {
		return nil, err
	}
	return &PromSink{decisions: decisions, current: current}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Emit counts the decision and observes its adjusted current.
func (s *PromSink) Emit(_ int, d model.ControlDecision) error {
	mode := d.Mode.String()
	s.decisions.WithLabelValues(mode, d.Cooling.String(), strconv.FormatBool(d.OverTempWarning)).Inc()
	s.current.WithLabelValues(mode).Observe(d.AdjustedCurrent)
	return nil
}

var _ sink.Sink = (*PromSink)(nil)
