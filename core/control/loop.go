// Package control drives the battery controller: it pulls samples, keeps the
// feature window, asks the oracle for predictions and turns them into
// decisions at a fixed cadence.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/bmsctl/core/classifier"
	"github.com/kilianp07/bmsctl/core/events"
	"github.com/kilianp07/bmsctl/core/logger"
	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/monitoring"
	"github.com/kilianp07/bmsctl/core/policy"
	"github.com/kilianp07/bmsctl/core/prediction"
	"github.com/kilianp07/bmsctl/core/selector"
	"github.com/kilianp07/bmsctl/core/sink"
	"github.com/kilianp07/bmsctl/core/source"
	"github.com/kilianp07/bmsctl/core/window"
	"github.com/kilianp07/bmsctl/internal/eventbus"
	"github.com/kilianp07/bmsctl/internal/ring"
)

// State is the lifecycle state of a Loop.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status is a point-in-time copy of the loop counters.
type Status struct {
	RunID        string            `json:"run_id"`
	State        State             `json:"state"`
	Policy       string            `json:"policy"`
	Mode         model.Mode        `json:"mode"`
	Ticks        int               `json:"ticks"`
	Decisions    int               `json:"decisions"`
	Warming      int               `json:"warming"`
	Failures     int               `json:"failures"`
	Warnings     int               `json:"warnings"`
	WindowLen    int               `json:"window_len"`
	WindowCap    int               `json:"window_cap"`
	StartedAt    time.Time         `json:"started_at,omitempty"`
	LastDecision *model.TickRecord `json:"last_decision,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
}

// Option customizes a Loop.
type Option func(*Loop)

// WithClassifier sets the classifier used by the AI policy.
func WithClassifier(c classifier.Classifier) Option { return func(l *Loop) { l.classifier = c } }

// WithBus publishes loop events on b.
func WithBus(b *eventbus.Bus[events.Event]) Option { return func(l *Loop) { l.bus = b } }

// WithLogger sets the loop logger.
func WithLogger(lg logger.Logger) Option { return func(l *Loop) { l.log = lg } }

// WithMonitor reports tick failures to m.
func WithMonitor(m monitoring.Monitor) Option { return func(l *Loop) { l.mon = m } }

// WithDemand replaces the constant requested current.
func WithDemand(d CurrentDemand) Option { return func(l *Loop) { l.demand = d } }

// WithTickPeriod overrides the configured cadence. Zero runs ticks back to
// back, which replay uses.
func WithTickPeriod(d time.Duration) Option {
	return func(l *Loop) {
		if d >= 0 {
			l.period = d
		}
	}
}

// WithRunID sets the identifier attached to events instead of a random one.
func WithRunID(id string) Option { return func(l *Loop) { l.runID = id } }

// Loop is a single-use controller run: Idle, then Running, then Stopped.
type Loop struct {
	cfg        Config
	src        source.Source
	oracle     prediction.Oracle
	table      *policy.Table
	sel        *selector.Selector
	sink       sink.Sink
	classifier classifier.Classifier
	bus        *eventbus.Bus[events.Event]
	log        logger.Logger
	mon        monitoring.Monitor
	demand     CurrentDemand
	period     time.Duration
	runID      string

	mu        sync.Mutex
	state     State
	mode      model.Mode
	win       *window.FeatureWindow
	history   *ring.Buffer[model.TickRecord]
	status    Status
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	doneOnce  sync.Once
	err       error
	cancelSrc context.CancelFunc
}

// NewLoop validates cfg and wires the loop. The oracle is bounded by the
// configured timeout.
func NewLoop(cfg Config, src source.Source, oracle prediction.Oracle, table *policy.Table, snk sink.Sink, opts ...Option) (*Loop, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}
	if src == nil || oracle == nil || table == nil {
		return nil, errors.New("controller: source, oracle and policy table are required")
	}
	mode, err := cfg.StartMode()
	if err != nil {
		return nil, err
	}
	if cfg.Policy == PolicyFixed {
		if err := table.Require(mode); err != nil {
			return nil, fmt.Errorf("controller mode %s: %w", mode, err)
		}
	}
	if snk == nil {
		snk = sink.NopSink{}
	}
	l := &Loop{
		cfg:     cfg,
		src:     src,
		oracle:  prediction.WithTimeout(oracle, cfg.OracleTimeout()),
		table:   table,
		sel:     selector.New(table),
		sink:    snk,
		log:     logger.NopLogger{},
		mon:     monitoring.NopMonitor{},
		demand:  ConstantDemand(cfg.Current()),
		period:  cfg.TickPeriod(),
		mode:    mode,
		history: ring.New[model.TickRecord](cfg.HistorySize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	if cfg.Policy == PolicyAI && l.classifier == nil {
		return nil, errors.New("controller: ai policy requires a classifier")
	}
	if l.runID == "" {
		l.runID = uuid.NewString()
	}
	l.status = Status{RunID: l.runID, Policy: cfg.Policy, WindowCap: cfg.WindowSize}
	return l, nil
}

// RunID returns the identifier attached to this run's events.
func (l *Loop) RunID() string { return l.runID }

// Start moves the loop from Idle to Running and returns while ticks proceed
// in the background.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateIdle {
		st := l.state
		l.mu.Unlock()
		return fmt.Errorf("%w: start while %s", model.ErrInvalidState, st)
	}
	win, err := window.New(l.cfg.WindowSize)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.win = win
	l.state = StateRunning
	l.status.StartedAt = time.Now()
	srcCtx, cancel := context.WithCancel(ctx)
	l.cancelSrc = cancel
	l.mu.Unlock()

	l.publishState(StateIdle, StateRunning, nil)
	l.log.Infof("controller %s started: policy=%s mode=%s window=%d period=%s", l.runID, l.cfg.Policy, l.Mode(), l.cfg.WindowSize, l.period)
	go l.run(ctx, srcCtx)
	return nil
}

// Stop requests the loop to stop. A tick in flight completes first. It is
// safe to call from any goroutine and more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateIdle:
		l.state = StateStopped
		l.closeDone()
	case StateRunning:
		l.stopOnce.Do(func() {
			close(l.stopCh)
			if l.cancelSrc != nil {
				l.cancelSrc()
			}
		})
	}
}

// Wait blocks until the loop has stopped and returns the error that stopped
// it. A stop request, a cancelled context or an exhausted source yield nil.
func (l *Loop) Wait() error {
	<-l.done
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run is Start followed by Wait.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	return l.Wait()
}

// State returns the lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Mode returns the mode applied by the fixed policy, or the mode of the last
// decision under the AI policy.
func (l *Loop) Mode() model.Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// SetMode changes the fixed-policy mode from the next tick on.
func (l *Loop) SetMode(m model.Mode) error {
	if l.cfg.Policy != PolicyFixed {
		return fmt.Errorf("%w: mode is chosen by the classifier", model.ErrInvalidState)
	}
	if _, err := l.table.Get(m); err != nil {
		return err
	}
	l.mu.Lock()
	prev := l.mode
	l.mode = m
	l.mu.Unlock()
	if prev != m {
		l.log.Infof("controller %s: mode %s -> %s", l.runID, prev, m)
	}
	return nil
}

// History returns up to n of the most recent decisions, oldest first. n <= 0
// returns everything retained.
func (l *Loop) History(n int) []model.TickRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 {
		return l.history.Items()
	}
	return l.history.Last(n)
}

// Status returns a copy of the loop counters.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.status
	st.State = l.state
	st.Mode = l.mode
	if l.win != nil {
		st.WindowLen = l.win.Len()
	}
	if st.LastDecision != nil {
		rec := *st.LastDecision
		st.LastDecision = &rec
	}
	return st
}

func (l *Loop) run(ctx, srcCtx context.Context) {
	var err error
	defer func() {
		l.finish(err)
	}()
	defer l.mon.Recover()

	for {
		if l.stopping(ctx) {
			return
		}
		start := time.Now()
		var stop bool
		stop, err = l.tick(ctx, srcCtx)
		tickDuration.Observe(time.Since(start).Seconds())
		if stop {
			return
		}
		if wait := time.Until(start.Add(l.period)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-l.stopCh:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}
}

// stopping is the suspension point between ticks.
func (l *Loop) stopping(ctx context.Context) bool {
	select {
	case <-l.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (l *Loop) finish(err error) {
	l.mu.Lock()
	from := l.state
	l.state = StateStopped
	l.err = err
	if err != nil {
		l.status.LastError = err.Error()
	}
	if l.cancelSrc != nil {
		l.cancelSrc()
	}
	l.closeDone()
	l.mu.Unlock()

	if err != nil {
		l.log.Errorf("controller %s stopped: %v", l.runID, err)
	} else {
		l.log.Infof("controller %s stopped", l.runID)
	}
	l.publishState(from, StateStopped, err)
}

func (l *Loop) closeDone() {
	l.doneOnce.Do(func() { close(l.done) })
}

// tick runs one control step. It reports whether the loop must stop and the
// error to return from Wait.
func (l *Loop) tick(ctx, srcCtx context.Context) (bool, error) {
	l.mu.Lock()
	idx := l.status.Ticks
	mode := l.mode
	l.mu.Unlock()

	sample, err := l.src.Next(srcCtx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			l.log.Infof("controller %s: source exhausted after %d ticks", l.runID, idx)
			return true, nil
		}
		if l.stopping(ctx) {
			return true, nil
		}
		return l.fail(idx, events.FailureSource, mode, fmt.Errorf("source: %w", err))
	}

	l.mu.Lock()
	l.status.Ticks++
	l.mu.Unlock()
	ticksTotal.Inc()

	l.win.Push(sample)
	snap, err := l.win.Snapshot()
	if err != nil {
		// warming up: no decision yet
		l.mu.Lock()
		l.status.Warming++
		l.mu.Unlock()
		ticksWarming.Inc()
		return false, nil
	}

	soc, err := l.oracle.PredictSoC(ctx, snap)
	if err != nil {
		return l.fail(idx, events.FailureOracle, mode, err)
	}
	temp, err := l.oracle.PredictTemperature(ctx, snap)
	if err != nil {
		return l.fail(idx, events.FailureOracle, mode, err)
	}
	current := l.demand.RequestedCurrent(sample)

	var d model.ControlDecision
	if l.cfg.Policy == PolicyAI {
		d, err = l.sel.SelectAI(ctx, temp, soc, current, l.classifier)
	} else {
		d, err = l.sel.Select(temp, soc, current, mode)
	}
	if err != nil {
		kind := events.FailureUnknownMode
		switch {
		case errors.Is(err, model.ErrOracleFailure):
			kind = events.FailureOracle
		case errors.Is(err, model.ErrInvalidInput):
			kind = events.FailureInput
		}
		return l.fail(idx, kind, mode, err)
	}

	rec := model.TickRecord{Tick: idx, Time: time.Now(), Decision: d}
	l.mu.Lock()
	l.history.Push(rec)
	l.status.Decisions++
	l.status.LastDecision = &rec
	if l.cfg.Policy == PolicyAI {
		l.mode = d.Mode
	}
	l.mu.Unlock()
	observeDecision(d)

	if err := l.sink.Emit(idx, d); err != nil {
		return l.fail(idx, events.FailureSink, d.Mode, fmt.Errorf("sink: %w", err))
	}
	l.publish(events.DecisionEvent{RunID: l.runID, Tick: idx, Time: rec.Time, Decision: d})
	l.log.Debugw("decision", map[string]any{
		"tick":             idx,
		"mode":             d.Mode.String(),
		"predicted_temp":   d.PredictedTemp,
		"predicted_soc":    d.PredictedSoC,
		"cooling":          d.Cooling.String(),
		"adjusted_current": d.AdjustedCurrent,
	})

	if d.OverTempWarning {
		l.warn(idx, d)
	}
	return false, nil
}

func (l *Loop) warn(idx int, d model.ControlDecision) {
	params, _ := l.table.Get(d.Mode)
	ev := events.WarningEvent{
		RunID:         l.runID,
		Tick:          idx,
		Time:          time.Now(),
		Mode:          d.Mode,
		PredictedTemp: d.PredictedTemp,
		MaxTemp:       params.MaxTemp,
	}
	l.mu.Lock()
	l.status.Warnings++
	l.mu.Unlock()
	l.log.Warnw("predicted temperature above mode limit", map[string]any{
		"tick":           idx,
		"mode":           d.Mode.String(),
		"predicted_temp": d.PredictedTemp,
		"max_temp":       params.MaxTemp,
	})
	if r, ok := l.sink.(sink.WarningRecorder); ok {
		if err := r.RecordWarning(ev); err != nil {
			l.log.Warnf("record warning: %v", err)
		}
	}
	l.publish(ev)
}

// fail reports a tick failure and applies the failure policy.
func (l *Loop) fail(idx int, kind string, mode model.Mode, err error) (bool, error) {
	tickFailures.WithLabelValues(kind).Inc()
	l.mu.Lock()
	l.status.Failures++
	l.status.LastError = err.Error()
	l.mu.Unlock()

	l.log.Warnw("tick failed", map[string]any{
		"tick":  idx,
		"kind":  kind,
		"mode":  mode.String(),
		"error": err.Error(),
	})
	ev := events.FailureEvent{RunID: l.runID, Tick: idx, Time: time.Now(), Reason: kind, Mode: mode, Err: err}
	if r, ok := l.sink.(sink.FailureRecorder); ok {
		if rerr := r.RecordFailure(ev); rerr != nil {
			l.log.Warnf("record failure: %v", rerr)
		}
	}
	l.publish(ev)
	l.mon.CaptureException(err, map[string]string{
		"mode": mode.String(),
		"tick": strconv.Itoa(idx),
		"kind": kind,
	})

	if l.cfg.OnFailure == OnFailureStop {
		return true, fmt.Errorf("tick %d: %w", idx, err)
	}
	return false, nil
}

func (l *Loop) publish(ev events.Event) {
	if l.bus != nil {
		l.bus.Publish(ev)
	}
}

func (l *Loop) publishState(from, to State, err error) {
	l.publish(events.StateEvent{RunID: l.runID, From: from.String(), To: to.String(), Time: time.Now(), Err: err})
}
