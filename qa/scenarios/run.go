package scenarios

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bmsctl/core/classifier"
	"github.com/kilianp07/bmsctl/core/control"
	"github.com/kilianp07/bmsctl/core/logger"
	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/policy"
	"github.com/kilianp07/bmsctl/core/prediction"
	"github.com/kilianp07/bmsctl/core/sink"
	"github.com/kilianp07/bmsctl/core/source"
)

// windowRecorder keeps the SoC readings of the last window handed to the
// oracle.
type windowRecorder struct {
	prediction.Oracle
	mu  sync.Mutex
	soc []float64
}

func (w *windowRecorder) PredictSoC(ctx context.Context, win []model.FeatureVector) (float64, error) {
	w.mu.Lock()
	w.soc = w.soc[:0]
	for _, f := range win {
		w.soc = append(w.soc, f.SoC)
	}
	w.mu.Unlock()
	return w.Oracle.PredictSoC(ctx, win)
}

func (w *windowRecorder) last() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]float64(nil), w.soc...)
}

func demandOf(vals []float64) control.CurrentDemand {
	var mu sync.Mutex
	n := 0
	return control.DemandFunc(func(model.FeatureVector) float64 {
		mu.Lock()
		defer mu.Unlock()
		if len(vals) == 0 {
			return 0
		}
		i := n
		if i >= len(vals) {
			i = len(vals) - 1
		}
		n++
		return vals[i]
	})
}

// RunScenario drives a controller through sc and checks its expectations.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()

	cfg := control.Config{
		WindowSize: sc.Controller.WindowSize,
		Policy:     sc.Controller.Policy,
		Mode:       sc.Controller.Mode,
		OnFailure:  sc.Controller.OnFailure,
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	table, err := policy.Load(policyConfig(sc.Modes))
	require.NoError(t, err)

	seq := &prediction.Sequence{SoC: sc.Oracle.SoC, Temps: sc.Oracle.Temps}
	if sc.Oracle.Fail {
		seq.Err = errors.New("scripted oracle failure")
	}
	oracle := &windowRecorder{Oracle: seq}

	mem := &sink.MemorySink{}
	var loop *control.Loop
	var snk sink.Sink = mem
	if sc.SetMode != nil {
		target, err := model.ParseMode(sc.SetMode.Mode)
		require.NoError(t, err)
		at := sc.SetMode.Tick
		snk = sink.NewMultiSink(mem, sink.Func(func(tick int, _ model.ControlDecision) error {
			if tick == at {
				assert.NoError(t, loop.SetMode(target))
			}
			return nil
		}))
	}

	opts := []control.Option{
		control.WithDemand(demandOf(sc.Demand)),
		control.WithTickPeriod(0),
		control.WithLogger(logger.NopLogger{}),
		control.WithRunID(sc.Name),
	}
	if sc.Classifier != "" {
		opts = append(opts, control.WithClassifier(classifier.Static{Name: sc.Classifier}))
	}
	src := source.NewSlice(sc.Samples.Features(), false)
	loop, err = control.NewLoop(cfg, src, oracle, table, snk, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runErr := loop.Run(ctx)
	if sc.Controller.OnFailure != control.OnFailureStop {
		require.NoError(t, runErr)
	}

	checkDecisions(t, sc.Expected.Decisions, mem.Records())
	if sc.Expected.Warnings != nil {
		assert.Len(t, mem.Warnings(), *sc.Expected.Warnings, "warnings")
	}
	if sc.Expected.Failures != nil {
		assert.Len(t, mem.Failures(), *sc.Expected.Failures, "failures")
	}
	if sc.Expected.LastWindowSoC != nil {
		assert.Equal(t, sc.Expected.LastWindowSoC, oracle.last(), "last window")
	}
}

func policyConfig(rows map[string]model.ModeParams) policy.Config {
	if len(rows) == 0 {
		return nil
	}
	cfg := make(policy.Config, len(rows))
	for k, v := range rows {
		cfg[k] = v
	}
	return cfg
}

func checkDecisions(t *testing.T, want []DecisionDef, got []model.TickRecord) {
	t.Helper()
	if want == nil {
		return
	}
	require.Len(t, got, len(want), "decision count")
	for i, w := range want {
		g := got[i]
		assert.Equal(t, w.Tick, g.Tick, "tick of decision %d", i)
		assert.Equal(t, w.Mode, g.Decision.Mode.String(), "mode at tick %d", g.Tick)
		assert.Equal(t, w.Cooling, g.Decision.Cooling.String(), "cooling at tick %d", g.Tick)
		assert.InDelta(t, w.AdjustedCurrent, g.Decision.AdjustedCurrent, 1e-9, "current at tick %d", g.Tick)
		assert.Equal(t, w.OverTempWarning, g.Decision.OverTempWarning, "warning at tick %d", g.Tick)
	}
}
