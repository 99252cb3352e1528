package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apictl "github.com/kilianp07/bmsctl/api/controller"
	"github.com/kilianp07/bmsctl/config"
	"github.com/kilianp07/bmsctl/core/control"
	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/sink"
	"github.com/kilianp07/bmsctl/core/source"
	"github.com/kilianp07/bmsctl/infra/simulator"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Controller.WindowSize = 2
	cfg.Controller.TickMS = control.Int(1)
	cfg.Controller.Mode = "Eco"
	cfg.Oracle = factory.ModuleConfig{Type: "static", Conf: map[string]any{"soc": 60, "temperature": 36}}
	cfg.Logging.Level = "error"
	return cfg
}

func samples(n int) []model.FeatureVector {
	out := make([]model.FeatureVector, n)
	for i := range out {
		out[i] = model.FeatureVector{SoC: 0.5, Temperature: 0.4}
	}
	return out
}

func TestServiceRunsToEndOfSource(t *testing.T) {
	mem := &sink.MemorySink{}
	svc, err := New(testConfig(), WithSource(source.NewSlice(samples(5), false)), WithSink(mem))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Run(ctx))

	recs := mem.Records()
	// window of 2 warms on the first sample
	require.Len(t, recs, 4)
	d := recs[0].Decision
	assert.Equal(t, model.ModeEco, d.Mode)
	assert.Equal(t, model.CoolingHigh, d.Cooling)
	assert.Equal(t, 20.0, d.AdjustedCurrent)
	assert.True(t, d.OverTempWarning)
	assert.Len(t, mem.Warnings(), 4)
	assert.Equal(t, control.StateStopped, svc.Loop.State())
}

func TestServiceFromConfiguredModules(t *testing.T) {
	cfg := testConfig()
	cfg.Controller.Policy = control.PolicyAI
	cfg.Classifier = factory.ModuleConfig{Type: "static", Conf: map[string]any{"mode": "Performance"}}
	cfg.Source = factory.ModuleConfig{Type: "slice", Conf: map[string]any{
		"samples": []map[string]any{{"soc": 0.5}, {"soc": 0.6}, {"soc": 0.7}},
	}}
	cfg.Sinks = []factory.ModuleConfig{{Type: "memory"}, {Type: "nop"}}
	svc, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	require.NoError(t, svc.Run(context.Background()))
	hist := svc.Loop.History(0)
	require.Len(t, hist, 2)
	assert.Equal(t, model.ModePerformance, hist[1].Decision.Mode)
	assert.Equal(t, model.ModePerformance, svc.Loop.Mode())
}

func TestServiceHandlerServesStatus(t *testing.T) {
	svc, err := New(testConfig(), WithSource(source.NewSlice(samples(3), false)), WithSink(sink.NopSink{}))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()
	require.NoError(t, svc.Run(context.Background()))

	rr := httptest.NewRecorder()
	apictl.NewRouter(svc.Handler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/decisions?limit=1", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"mode":"Eco"`)
}

func TestNewRejectsBadModules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"oracle", func(c *config.Config) { c.Oracle.Type = "lstm" }},
		{"source", func(c *config.Config) { c.Source.Type = "carrier-pigeon" }},
		{"sink", func(c *config.Config) { c.Sinks = []factory.ModuleConfig{{Type: "fax"}} }},
		{"classifier", func(c *config.Config) {
			c.Controller.Policy = control.PolicyAI
			c.Classifier.Type = "oracle-bones"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestServiceClosesLoopWithSimulator(t *testing.T) {
	sim, err := simulator.New(simulator.Config{Samples: 6})
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Oracle = factory.ModuleConfig{Type: "persistence"}
	mem := &sink.MemorySink{}
	svc, err := New(cfg, WithSource(sim), WithSink(mem))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	require.NoError(t, svc.Run(context.Background()))
	require.Len(t, mem.Records(), 5)
	current, cooling := sim.SetPoint()
	// Eco caps the 40 A default draw at 20 A
	assert.Equal(t, 20.0, current)
	assert.Equal(t, model.CoolingLow, cooling)
}
