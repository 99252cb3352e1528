package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	require.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Infow("info", map[string]any{"k": 2})
	l.Warnf("warn")
	l.Warnw("warn", map[string]any{"k": 3})
	l.Errorf("error")
}

func TestZerologComponentAndLevel(t *testing.T) {
	t.Setenv("APP_ENV", "")
	var buf bytes.Buffer
	l := newZerolog("controller", "warn", &buf)
	l.Infof("hidden")
	l.Warnw("over temp", map[string]any{"tick": 3})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "controller", rec["component"])
	assert.Equal(t, "warn", rec["level"])
	assert.Equal(t, float64(3), rec["tick"])
}

func TestLogrusJSON(t *testing.T) {
	t.Setenv("APP_ENV", "")
	var buf bytes.Buffer
	l := newLogrus("api", "info", &buf)
	l.Debugf("hidden")
	l.Infow("request", map[string]any{"path": "/health"})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "api", rec["component"])
	assert.Equal(t, "/health", rec["path"])
	assert.Equal(t, "request", rec["msg"])
}

func TestSetupRotatingFile(t *testing.T) {
	t.Setenv("APP_ENV", "")
	path := filepath.Join(t.TempDir(), "logs", "bms.log")
	require.NoError(t, Setup(Options{Backend: BackendLogrus, File: path}))
	t.Cleanup(func() {
		_ = Close()
		_ = Setup(Options{Backend: BackendZerolog, Level: "debug"})
	})

	New("test").Infof("to file")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "to file")
}

func TestOptionsValidate(t *testing.T) {
	o := Options{}
	o.SetDefaults()
	assert.NoError(t, o.Validate())
	assert.Error(t, Options{Backend: "syslog", Level: "info"}.Validate())
	assert.Error(t, Options{Backend: BackendZerolog, Level: "loud"}.Validate())
}
