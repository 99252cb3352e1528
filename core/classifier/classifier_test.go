package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bmsctl/core/factory"
)

func TestRuleClassifier(t *testing.T) {
	c := NewRule(RuleConfig{})
	tests := []struct {
		name               string
		temp, soc, current float64
		want               string
	}{
		{"hot", 37, 80, 10, "Eco"},
		{"low soc", 30, 15, 60, "Eco"},
		{"high demand", 30, 80, 45, "Performance"},
		{"nominal", 30, 80, 10, "Balanced"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tt.temp, tt.soc, tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuleClassifierCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRule(RuleConfig{}).Classify(ctx, 30, 50, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFactory(t *testing.T) {
	c, err := New(factory.ModuleConfig{Type: "rule", Conf: map[string]any{"hot_temp": 32}})
	require.NoError(t, err)
	got, err := c.Classify(context.Background(), 33, 80, 10)
	require.NoError(t, err)
	assert.Equal(t, "Eco", got)

	c, err = New(factory.ModuleConfig{Type: "static", Conf: map[string]any{"mode": "Turbo"}})
	require.NoError(t, err)
	got, _ = c.Classify(context.Background(), 0, 0, 0)
	assert.Equal(t, "Turbo", got)

	_, err = New(factory.ModuleConfig{Type: "nope"})
	assert.ErrorIs(t, err, factory.ErrUnknownType)
}
