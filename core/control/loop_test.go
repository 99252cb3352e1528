package control

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bmsctl/core/classifier"
	"github.com/kilianp07/bmsctl/core/events"
	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/monitoring"
	"github.com/kilianp07/bmsctl/core/policy"
	"github.com/kilianp07/bmsctl/core/prediction"
	"github.com/kilianp07/bmsctl/core/sink"
	"github.com/kilianp07/bmsctl/core/source"
	"github.com/kilianp07/bmsctl/internal/eventbus"
)

func samples(n int) []model.FeatureVector {
	out := make([]model.FeatureVector, n)
	for i := range out {
		out[i] = model.FeatureVector{Voltage: float64(i)}
	}
	return out
}

func newTestLoop(t *testing.T, cfg Config, src source.Source, o prediction.Oracle, snk sink.Sink, opts ...Option) *Loop {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	opts = append([]Option{WithTickPeriod(0)}, opts...)
	l, err := NewLoop(cfg, src, o, policy.MustDefault(), snk, opts...)
	require.NoError(t, err)
	return l
}

func runWithin(t *testing.T, l *Loop, d time.Duration) error {
	t.Helper()
	require.NoError(t, l.Start(context.Background()))
	select {
	case <-l.Done():
	case <-time.After(d):
		l.Stop()
		t.Fatalf("loop did not stop within %s", d)
	}
	return l.Wait()
}

func TestLoopBalancedScenario(t *testing.T) {
	mem := &sink.MemorySink{}
	l := newTestLoop(t, Config{WindowSize: 3, Mode: "Balanced", RequestedCurrent: Float(40)},
		source.NewSlice(samples(5), false), prediction.Static{SoC: 60, Temperature: 34}, mem)

	require.NoError(t, runWithin(t, l, 2*time.Second))
	assert.Equal(t, StateStopped, l.State())

	recs := mem.Records()
	require.Len(t, recs, 3, "warm-up ticks produce no output")
	assert.Equal(t, []int{2, 3, 4}, []int{recs[0].Tick, recs[1].Tick, recs[2].Tick})
	for _, r := range recs {
		assert.Equal(t, model.ModeBalanced, r.Decision.Mode)
		assert.Equal(t, model.CoolingHigh, r.Decision.Cooling)
		assert.Equal(t, 35.0, r.Decision.AdjustedCurrent)
		assert.False(t, r.Decision.OverTempWarning)
	}

	st := l.Status()
	assert.Equal(t, 5, st.Ticks)
	assert.Equal(t, 2, st.Warming)
	assert.Equal(t, 3, st.Decisions)
	assert.Equal(t, 3, st.WindowLen)
	require.NotNil(t, st.LastDecision)
	assert.Equal(t, 4, st.LastDecision.Tick)

	assert.Equal(t, 5.0, testutil.ToFloat64(ticksTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(ticksWarming))
	assert.Equal(t, 3.0, testutil.ToFloat64(coolingHigh.WithLabelValues("Balanced")))
	assert.Equal(t, 35.0, testutil.ToFloat64(adjustedCurrent))
	assert.Equal(t, 1.0, testutil.ToFloat64(currentMode.WithLabelValues("Balanced")))
}

func TestLoopOverTempWarning(t *testing.T) {
	mem := &sink.MemorySink{}
	bus := eventbus.New[events.Event](64)
	sub := bus.Subscribe()
	l := newTestLoop(t, Config{WindowSize: 1, Mode: "Balanced"},
		source.NewSlice(samples(2), false), prediction.Static{Temperature: 38}, mem,
		WithBus(bus), WithDemand(ConstantDemand(10)))

	require.NoError(t, runWithin(t, l, 2*time.Second))
	recs := mem.Records()
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Decision.OverTempWarning)
	assert.Equal(t, 10.0, recs[0].Decision.AdjustedCurrent)
	assert.Equal(t, model.CoolingHigh, recs[0].Decision.Cooling)

	warns := mem.Warnings()
	require.Len(t, warns, 2)
	assert.Equal(t, 37.0, warns[0].MaxTemp)
	assert.Equal(t, 2, l.Status().Warnings)
	assert.Equal(t, 2.0, testutil.ToFloat64(overTempWarns.WithLabelValues("Balanced")))

	bus.Close()
	kinds := map[string]int{}
	for ev := range sub {
		kinds[ev.Kind()]++
	}
	assert.Equal(t, 2, kinds["decision"])
	assert.Equal(t, 2, kinds["warning"])
	assert.Equal(t, 2, kinds["state"])
}

func TestLoopEcoCapsCurrent(t *testing.T) {
	mem := &sink.MemorySink{}
	l := newTestLoop(t, Config{WindowSize: 1, Mode: "eco"},
		source.NewSlice(samples(1), false), prediction.Static{Temperature: 28}, mem,
		WithDemand(ConstantDemand(25)))
	require.NoError(t, runWithin(t, l, 2*time.Second))
	recs := mem.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, model.CoolingLow, recs[0].Decision.Cooling)
	assert.Equal(t, 20.0, recs[0].Decision.AdjustedCurrent)
	assert.False(t, recs[0].Decision.OverTempWarning)
}

func TestLoopOracleFailureSkip(t *testing.T) {
	mem := &sink.MemorySink{}
	rec := &monitoring.Recorder{}
	l := newTestLoop(t, Config{WindowSize: 1},
		source.NewSlice(samples(3), false), &prediction.Sequence{Err: errors.New("model offline")}, mem,
		WithMonitor(rec))

	require.NoError(t, runWithin(t, l, 2*time.Second))
	assert.Empty(t, mem.Records())
	fails := mem.Failures()
	require.Len(t, fails, 3)
	assert.Equal(t, events.FailureOracle, fails[0].Reason)
	assert.ErrorIs(t, fails[0].Err, model.ErrOracleFailure)

	errs := rec.Captured()
	require.Len(t, errs, 3)
	tags := rec.CapturedTags()
	assert.Equal(t, "oracle", tags[0]["kind"])
	assert.Equal(t, "0", tags[0]["tick"])
	assert.Equal(t, "Balanced", tags[0]["mode"])
	assert.Equal(t, 3.0, testutil.ToFloat64(tickFailures.WithLabelValues("oracle")))
	assert.Equal(t, 3, l.Status().Failures)
}

type panickyOracle struct{}

func (panickyOracle) PredictSoC(context.Context, []model.FeatureVector) (float64, error) {
	panic("model blew up")
}

func (panickyOracle) PredictTemperature(context.Context, []model.FeatureVector) (float64, error) {
	return 30, nil
}

func TestLoopOraclePanicIsSkipped(t *testing.T) {
	mem := &sink.MemorySink{}
	l := newTestLoop(t, Config{WindowSize: 2}, source.NewSlice(samples(5), false), panickyOracle{}, mem)

	require.NoError(t, runWithin(t, l, 2*time.Second))
	assert.Empty(t, mem.Records())
	fails := mem.Failures()
	require.Len(t, fails, 4)
	for _, f := range fails {
		assert.Equal(t, events.FailureOracle, f.Reason)
		assert.ErrorIs(t, f.Err, model.ErrOracleFailure)
		assert.ErrorIs(t, f.Err, prediction.ErrPanic)
	}
	assert.Equal(t, StateStopped, l.State())
}

func TestLoopClassifierPanicIsSkipped(t *testing.T) {
	mem := &sink.MemorySink{}
	boom := classifier.Func(func(context.Context, float64, float64, float64) (string, error) {
		panic("classifier blew up")
	})
	l := newTestLoop(t, Config{WindowSize: 1, Policy: PolicyAI},
		source.NewSlice(samples(2), false), prediction.Static{Temperature: 30}, mem, WithClassifier(boom))

	require.NoError(t, runWithin(t, l, 2*time.Second))
	fails := mem.Failures()
	require.Len(t, fails, 2)
	assert.Equal(t, events.FailureOracle, fails[0].Reason)
}

func TestLoopNonFiniteDemandIsSkipped(t *testing.T) {
	mem := &sink.MemorySink{}
	l := newTestLoop(t, Config{WindowSize: 1}, source.NewSlice(samples(2), false),
		prediction.Static{Temperature: 30}, mem, WithDemand(ConstantDemand(math.NaN())))

	require.NoError(t, runWithin(t, l, 2*time.Second))
	assert.Empty(t, mem.Records())
	fails := mem.Failures()
	require.Len(t, fails, 2)
	assert.Equal(t, events.FailureInput, fails[0].Reason)
	assert.ErrorIs(t, fails[0].Err, model.ErrInvalidInput)
}

func TestLoopOracleFailureStop(t *testing.T) {
	l := newTestLoop(t, Config{WindowSize: 1, OnFailure: OnFailureStop},
		source.NewSlice(samples(3), false), &prediction.Sequence{Err: errors.New("model offline")}, nil)

	err := runWithin(t, l, 2*time.Second)
	assert.ErrorIs(t, err, model.ErrOracleFailure)
	assert.Equal(t, StateStopped, l.State())
	assert.Equal(t, 1, l.Status().Ticks)
}

type slowOracle struct{ delay time.Duration }

func (s slowOracle) PredictSoC(ctx context.Context, _ []model.FeatureVector) (float64, error) {
	select {
	case <-time.After(s.delay):
		return 50, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s slowOracle) PredictTemperature(context.Context, []model.FeatureVector) (float64, error) {
	return 30, nil
}

func TestLoopOracleTimeout(t *testing.T) {
	mem := &sink.MemorySink{}
	l := newTestLoop(t, Config{WindowSize: 1, OracleTimeoutMS: 10},
		source.NewSlice(samples(1), false), slowOracle{delay: time.Second}, mem)
	require.NoError(t, runWithin(t, l, 2*time.Second))
	fails := mem.Failures()
	require.Len(t, fails, 1)
	assert.ErrorIs(t, fails[0].Err, model.ErrOracleFailure)
}

func TestLoopAIUnknownModeSkipsTick(t *testing.T) {
	mem := &sink.MemorySink{}
	l := newTestLoop(t, Config{WindowSize: 1, Policy: PolicyAI},
		source.NewSlice(samples(2), false), prediction.Static{Temperature: 30}, mem,
		WithClassifier(classifier.Static{Name: "Turbo"}))
	require.NoError(t, runWithin(t, l, 2*time.Second))
	assert.Empty(t, mem.Records())
	fails := mem.Failures()
	require.Len(t, fails, 2)
	assert.Equal(t, events.FailureUnknownMode, fails[0].Reason)
	assert.ErrorIs(t, fails[0].Err, model.ErrUnknownMode)
}

func TestLoopAIPolicy(t *testing.T) {
	mem := &sink.MemorySink{}
	l := newTestLoop(t, Config{WindowSize: 1, Policy: PolicyAI},
		source.NewSlice(samples(1), false), prediction.Static{SoC: 80, Temperature: 37}, mem,
		WithClassifier(classifier.NewRule(classifier.RuleConfig{})))
	require.NoError(t, runWithin(t, l, 2*time.Second))
	recs := mem.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, model.ModeEco, recs[0].Decision.Mode)
	assert.True(t, recs[0].Decision.OverTempWarning)
	assert.Equal(t, model.ModeEco, l.Mode())
	assert.ErrorIs(t, l.SetMode(model.ModeBalanced), model.ErrInvalidState)
}

func TestLoopAIRequiresClassifier(t *testing.T) {
	_, err := NewLoop(Config{Policy: PolicyAI}, source.NewSlice(nil, false), prediction.Static{}, policy.MustDefault(), nil)
	assert.Error(t, err)
}

func TestLoopCustomModeRequiresParams(t *testing.T) {
	_, err := NewLoop(Config{Mode: "Custom"}, source.NewSlice(nil, false), prediction.Static{}, policy.MustDefault(), nil)
	assert.ErrorIs(t, err, model.ErrMissingCustomParams)

	tbl, err := policy.Load(policy.Config{"Custom": {CoolingThreshold: 31, MaxCurrent: 25, MaxTemp: 36}})
	require.NoError(t, err)
	_, err = NewLoop(Config{Mode: "Custom"}, source.NewSlice(nil, false), prediction.Static{}, tbl, nil)
	assert.NoError(t, err)
}

func TestLoopSinkFailure(t *testing.T) {
	failing := sink.Func(func(int, model.ControlDecision) error { return errors.New("broker down") })
	l := newTestLoop(t, Config{WindowSize: 1}, source.NewSlice(samples(2), false), prediction.Static{}, failing)
	require.NoError(t, runWithin(t, l, 2*time.Second))
	st := l.Status()
	assert.Equal(t, 2, st.Failures)
	assert.Contains(t, st.LastError, "broker down")
	assert.Len(t, l.History(0), 2, "history keeps decisions even when the sink fails")
	assert.Equal(t, 2.0, testutil.ToFloat64(tickFailures.WithLabelValues("sink")))
}

func TestLoopSetModeNextTick(t *testing.T) {
	mem := &sink.MemorySink{}
	var l *Loop
	n := 0
	src := source.Func(func(ctx context.Context) (model.FeatureVector, error) {
		if n == 4 {
			return model.FeatureVector{}, io.EOF
		}
		if n == 2 {
			assert.NoError(t, l.SetMode(model.ModeEco))
		}
		n++
		return model.FeatureVector{}, nil
	})
	l = newTestLoop(t, Config{WindowSize: 1, Mode: "Performance"}, src, prediction.Static{Temperature: 31}, mem)
	require.NoError(t, runWithin(t, l, 2*time.Second))

	recs := mem.Records()
	require.Len(t, recs, 4)
	got := make([]model.Mode, len(recs))
	for i, r := range recs {
		got[i] = r.Decision.Mode
	}
	assert.Equal(t, []model.Mode{model.ModePerformance, model.ModePerformance, model.ModePerformance, model.ModeEco}, got)
	assert.ErrorIs(t, l.SetMode(model.ModeCustom), model.ErrUnknownMode)
}

func TestLoopHistoryBounded(t *testing.T) {
	l := newTestLoop(t, Config{WindowSize: 1, HistorySize: 2}, source.NewSlice(samples(5), false), prediction.Static{}, nil)
	require.NoError(t, runWithin(t, l, 2*time.Second))
	h := l.History(0)
	require.Len(t, h, 2)
	assert.Equal(t, 3, h[0].Tick)
	assert.Equal(t, 4, h[1].Tick)
	assert.Len(t, l.History(1), 1)
}

func TestLoopLifecycle(t *testing.T) {
	l := newTestLoop(t, Config{WindowSize: 1}, source.NewSlice(samples(1), false), prediction.Static{}, nil)
	assert.Equal(t, StateIdle, l.State())
	require.NoError(t, runWithin(t, l, 2*time.Second))
	assert.ErrorIs(t, l.Start(context.Background()), model.ErrInvalidState)
	l.Stop()
	l.Stop()
	assert.Equal(t, StateStopped, l.State())
}

func TestLoopStopBeforeStart(t *testing.T) {
	l := newTestLoop(t, Config{}, source.NewSlice(samples(1), false), prediction.Static{}, nil)
	l.Stop()
	assert.Equal(t, StateStopped, l.State())
	assert.NoError(t, l.Wait())
	assert.ErrorIs(t, l.Start(context.Background()), model.ErrInvalidState)
}

func TestLoopStopUnblocksSource(t *testing.T) {
	blocking := source.Func(func(ctx context.Context) (model.FeatureVector, error) {
		<-ctx.Done()
		return model.FeatureVector{}, ctx.Err()
	})
	l := newTestLoop(t, Config{}, blocking, prediction.Static{}, nil)
	require.NoError(t, l.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateRunning, l.State())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Stop()
		}()
	}
	wg.Wait()
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("stop not observed")
	}
	assert.NoError(t, l.Wait())
	assert.Equal(t, 0, l.Status().Failures)
}

func TestLoopContextCancel(t *testing.T) {
	l := newTestLoop(t, Config{WindowSize: 1}, source.NewSlice(samples(1), true), prediction.Static{}, nil,
		WithTickPeriod(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Start(ctx))
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("cancel not observed")
	}
	assert.NoError(t, l.Wait())
	assert.Greater(t, l.Status().Decisions, 0)
}

func TestLoopCadence(t *testing.T) {
	const period = 20 * time.Millisecond
	var mu sync.Mutex
	var stamps []time.Time
	n := 0
	src := source.Func(func(ctx context.Context) (model.FeatureVector, error) {
		mu.Lock()
		defer mu.Unlock()
		if n == 4 {
			return model.FeatureVector{}, io.EOF
		}
		n++
		stamps = append(stamps, time.Now())
		return model.FeatureVector{}, nil
	})
	l := newTestLoop(t, Config{WindowSize: 1}, src, prediction.Static{}, nil, WithTickPeriod(period))
	require.NoError(t, runWithin(t, l, 2*time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 4)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), period-2*time.Millisecond)
	}
}

func TestLoopOverrunDoesNotDropTicks(t *testing.T) {
	mem := &sink.MemorySink{}
	l := newTestLoop(t, Config{WindowSize: 2}, source.NewSlice(samples(6), false), slowOracle{delay: 15 * time.Millisecond}, mem,
		WithTickPeriod(5*time.Millisecond))
	require.NoError(t, runWithin(t, l, 3*time.Second))
	recs := mem.Records()
	require.Len(t, recs, 5)
	for i, r := range recs {
		assert.Equal(t, i+1, r.Tick)
	}
}
