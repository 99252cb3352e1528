package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bmsctl/core/model"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `controller:
  tick_ms: 250
  policy: fixed
  mode: custom
  on_failure: stop
modes:
  Custom:
    cooling_threshold: 31
    max_current: 25
    max_temp: 36
source:
  type: mqtt
  conf:
    topics:
      samples: bms/p1/in
oracle:
  type: static
  conf:
    soc: 50
    temperature: 30
sinks:
  - type: mqtt
    conf:
      client_id: sink
  - type: prometheus
mqtt:
  broker: "tcp://localhost:1883"
  client_id: shared
api:
  enabled: true
  addr: ":9000"
logging:
  backend: logrus
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"tick_ms", *cfg.Controller.TickMS, 250},
		{"mode", cfg.Controller.Mode, "custom"},
		{"on_failure", cfg.Controller.OnFailure, "stop"},
		{"window default", cfg.Controller.WindowSize, 100},
		{"custom max_temp", cfg.Modes["Custom"].MaxTemp, 36.0},
		{"oracle", cfg.Oracle.Type, "static"},
		{"classifier default", cfg.Classifier.Type, "rule"},
		{"source broker merged", cfg.Source.Conf["broker"], "tcp://localhost:1883"},
		{"source client_id shared", cfg.Source.Conf["client_id"], "shared"},
		{"sink client_id own", cfg.Sinks[0].Conf["client_id"], "sink"},
		{"sink broker merged", cfg.Sinks[0].Conf["broker"], "tcp://localhost:1883"},
		{"prometheus untouched", len(cfg.Sinks[1].Conf), 0},
		{"api addr", cfg.API.Addr, ":9000"},
		{"api limit default", cfg.API.HistoryLimit, 1000},
		{"metrics addr default", cfg.Metrics.Addr, ":9100"},
		{"log backend", cfg.Logging.Backend, "logrus"},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}
}

func TestLoadJSONWithEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.json", `{"controller": {"tick_ms": 100, "mode": "Eco"}}`)
	t.Setenv("K_CONTROLLER__TICK_MS", "50")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, *cfg.Controller.TickMS)
	assert.Equal(t, "Eco", cfg.Controller.Mode)
	assert.Equal(t, "log", cfg.Sinks[0].Type)
}

func TestLoadKeepsExplicitZeroCurrent(t *testing.T) {
	path := writeConfig(t, "config.yaml", "controller:\n  tick_ms: 0\n  requested_current: 0\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Controller.Current())
	assert.Equal(t, time.Duration(0), cfg.Controller.TickPeriod())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"unsupported extension", "config.toml", "x = 1"},
		{"custom mode without row", "a.yaml", "controller:\n  mode: custom\n"},
		{"unknown mode", "b.yaml", "controller:\n  mode: turbo\n"},
		{"invalid row", "c.yaml", "modes:\n  Eco:\n    cooling_threshold: 50\n    max_current: 20\n    max_temp: 35\n"},
		{"bad log backend", "d.yaml", "logging:\n  backend: syslog\n"},
		{"bad policy", "e.yaml", "controller:\n  policy: random\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.data))
			assert.Error(t, err)
		})
	}
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCustomRowErrorKind(t *testing.T) {
	cfg := Default()
	cfg.Controller.Mode = "Custom"
	err := cfg.Validate()
	assert.ErrorIs(t, err, model.ErrMissingCustomParams)
}

func TestAIPolicySkipsModeRowCheck(t *testing.T) {
	cfg := Default()
	cfg.Controller.Policy = "ai"
	cfg.Controller.Mode = "Custom"
	assert.NoError(t, cfg.Validate())
}
