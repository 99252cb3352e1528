// Package app wires a configured controller: source, oracle, classifier,
// sinks, the control loop and its HTTP surfaces.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	apictl "github.com/kilianp07/bmsctl/api/controller"
	_ "github.com/kilianp07/bmsctl/app/plugins"
	"github.com/kilianp07/bmsctl/config"
	"github.com/kilianp07/bmsctl/core/classifier"
	"github.com/kilianp07/bmsctl/core/control"
	"github.com/kilianp07/bmsctl/core/events"
	coremon "github.com/kilianp07/bmsctl/core/monitoring"
	"github.com/kilianp07/bmsctl/core/policy"
	"github.com/kilianp07/bmsctl/core/prediction"
	"github.com/kilianp07/bmsctl/core/sink"
	"github.com/kilianp07/bmsctl/core/source"
	"github.com/kilianp07/bmsctl/infra/logger"
	"github.com/kilianp07/bmsctl/infra/metrics"
	"github.com/kilianp07/bmsctl/infra/monitoring"
	"github.com/kilianp07/bmsctl/internal/eventbus"
)

// Service owns one control loop and everything it was built from.
type Service struct {
	Loop  *control.Loop
	Table *policy.Table

	cfg  *config.Config
	src  source.Source
	sink sink.Sink
	bus  *eventbus.Bus[events.Event]
	mon  coremon.Monitor
	log  logger.Logger
}

// Option customizes the service before the loop is built.
type Option func(*options)

type options struct {
	src  source.Source
	sink sink.Sink
	loop []control.Option
}

// WithSource replaces the configured source.
func WithSource(s source.Source) Option { return func(o *options) { o.src = s } }

// WithSink replaces the configured sinks.
func WithSink(s sink.Sink) Option { return func(o *options) { o.sink = s } }

// WithLoopOptions appends options applied when the loop is built.
func WithLoopOptions(opts ...control.Option) Option {
	return func(o *options) { o.loop = append(o.loop, opts...) }
}

// New builds the service from cfg. Logging is set up first so module
// constructors log with the configured backend.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if err := logger.Setup(cfg.Logging); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	log := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	table, err := policy.Load(cfg.Modes)
	if err != nil {
		return nil, fmt.Errorf("modes: %w", err)
	}
	// the loop applies the configured oracle timeout itself
	oracle, err := prediction.New(cfg.Oracle, 0)
	if err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}

	loopOpts := []control.Option{
		control.WithLogger(logger.New("controller")),
		control.WithMonitor(mon),
		control.WithRunID(uuid.NewString()),
	}
	if cfg.Controller.Policy == control.PolicyAI {
		cls, err := classifier.New(cfg.Classifier)
		if err != nil {
			return nil, fmt.Errorf("classifier: %w", err)
		}
		loopOpts = append(loopOpts, control.WithClassifier(cls))
	}

	src := o.src
	if src == nil {
		if src, err = source.New(cfg.Source); err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
	}
	snk := o.sink
	if snk == nil {
		if snk, err = sink.New(cfg.Sinks); err != nil {
			_ = source.Close(src)
			return nil, fmt.Errorf("sinks: %w", err)
		}
	}

	// closed-loop sources such as the simulator take decisions back
	if fb, ok := src.(sink.Sink); ok {
		snk = sink.NewMultiSink(snk, sink.Func(fb.Emit))
	}

	bus := eventbus.New[events.Event](eventbus.DefaultBuffer)
	loopOpts = append(loopOpts, control.WithBus(bus))
	loopOpts = append(loopOpts, o.loop...)
	loop, err := control.NewLoop(cfg.Controller, src, oracle, table, snk, loopOpts...)
	if err != nil {
		bus.Close()
		_ = sink.Close(snk)
		_ = source.Close(src)
		return nil, err
	}
	log.Infof("controller %s ready: policy=%s mode=%s source=%s oracle=%s",
		loop.RunID(), cfg.Controller.Policy, loop.Mode(), cfg.Source.Type, cfg.Oracle.Type)
	return &Service{
		Loop:  loop,
		Table: table,
		cfg:   cfg,
		src:   src,
		sink:  snk,
		bus:   bus,
		mon:   mon,
		log:   log,
	}, nil
}

// Handler returns the status API router for this service.
func (s *Service) Handler() *apictl.Handler {
	return apictl.NewHandler(s.Loop, s.Table, s.cfg.API.HistoryLimit)
}

// Run starts the optional servers and blocks until the loop stops. A
// cancelled ctx is a normal shutdown.
func (s *Service) Run(ctx context.Context) error {
	defer s.mon.Recover()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if rec := metrics.StateRecorders(s.sink); rec != nil {
		metrics.StartEventCollector(ctx, s.bus, rec, logger.New("event-collector"))
	}
	if s.cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.Addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.cfg.API.Enabled {
		go func() {
			if err := apictl.Serve(ctx, s.cfg.API.Addr, apictl.NewRouter(s.Handler())); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	err := s.Loop.Run(ctx)
	st := s.Loop.Status()
	s.log.Infof("controller %s stopped after %d ticks (%d decisions, %d failures, %d warnings)",
		st.RunID, st.Ticks, st.Decisions, st.Failures, st.Warnings)
	return err
}

// Close releases the source, sinks and bus and flushes error reports.
func (s *Service) Close() error {
	s.Loop.Stop()
	s.bus.Close()
	err := errors.Join(sink.Close(s.sink), source.Close(s.src))
	s.mon.Flush(s.cfg.Sentry.FlushTimeout())
	if lerr := logger.Close(); lerr != nil {
		err = errors.Join(err, lerr)
	}
	return err
}
