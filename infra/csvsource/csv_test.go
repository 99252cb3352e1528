package csvsource

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/source"
)

func TestLoadScalesAndDerivesSOCChange(t *testing.T) {
	ds, err := Load(filepath.Join("testdata", "battery.csv"), true)
	require.NoError(t, err)
	require.Len(t, ds.Samples, 3)

	first, mid, last := ds.Samples[0], ds.Samples[1], ds.Samples[2]
	assert.InDelta(t, 0.0, first.Voltage, 1e-9)
	assert.InDelta(t, 0.5, mid.Voltage, 1e-9)
	assert.InDelta(t, 1.0, last.Voltage, 1e-9)

	// SOC 80,70,75 -> 1, 0, 0.5
	assert.InDelta(t, 1.0, first.SoC, 1e-9)
	assert.InDelta(t, 0.0, mid.SoC, 1e-9)
	assert.InDelta(t, 0.5, last.SoC, 1e-9)

	// raw changes 0,-10,+5 -> min -10 max 5
	assert.InDelta(t, 10.0/15, first.SoCChange, 1e-9)
	assert.InDelta(t, 0.0, mid.SoCChange, 1e-9)
	assert.InDelta(t, 1.0, last.SoCChange, 1e-9)

	// constant columns scale to zero
	assert.Zero(t, first.SoH)
	assert.Zero(t, last.LiquidLevel)

	assert.Equal(t, Range{Min: 25, Max: 35}, ds.Ranges["Temperature"])
	assert.Equal(t, Range{Min: -10, Max: 5}, ds.Ranges["SOC_change"])
}

func TestReadRaw(t *testing.T) {
	ds, err := Load(filepath.Join("testdata", "battery.csv"), false)
	require.NoError(t, err)
	assert.Equal(t, 30.0, ds.Samples[1].Temperature)
	assert.Equal(t, -10.0, ds.Samples[1].SoCChange)
	assert.Equal(t, 0.0, ds.Samples[0].SoCChange)
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"header only", strings.Join(Columns, ",") + "\n"},
		{"missing column", "Voltage,Current\n1,2\n"},
		{"bad number", strings.Join(Columns, ",") + "\n1,2,x,4,5,6,7,8,9\n"},
		{"short row", strings.Join(Columns, ",") + "\n1,2,3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in), true)
			assert.Error(t, err)
		})
	}
}

func TestRegisteredSourceReplays(t *testing.T) {
	src, err := source.New(factory.ModuleConfig{
		Type: "csv",
		Conf: map[string]any{"path": filepath.Join("testdata", "battery.csv"), "loop": false},
	})
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := src.Next(ctx)
		require.NoError(t, err)
	}
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
