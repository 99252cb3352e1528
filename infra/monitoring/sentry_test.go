package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremon "github.com/kilianp07/bmsctl/core/monitoring"
)

type captured struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (c *captured) beforeSend(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	// drop the event, nothing leaves the process
	return nil
}

func (c *captured) all() []*sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*sentry.Event(nil), c.events...)
}

func TestNewSentryMonitorWithoutDSN(t *testing.T) {
	m, err := NewSentryMonitor(SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestSentryConfig(t *testing.T) {
	c := SentryConfig{}
	c.SetDefaults()
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 2*time.Second, c.FlushTimeout())
	assert.Error(t, SentryConfig{TracesSampleRate: 2}.Validate())
	assert.NoError(t, c.Validate())
}

func TestCaptureExceptionTags(t *testing.T) {
	rec := &captured{}
	m, err := newSentryMonitor(sentry.ClientOptions{BeforeSend: rec.beforeSend}, time.Second)
	require.NoError(t, err)

	m.CaptureException(nil, nil)
	m.CaptureException(errors.New("oracle timeout"), map[string]string{"kind": "oracle", "mode": "Eco"})
	m.Flush(time.Second)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, "oracle", events[0].Tags["kind"])
	assert.Equal(t, "Eco", events[0].Tags["mode"])
}

func TestRecoverRepanics(t *testing.T) {
	rec := &captured{}
	m, err := newSentryMonitor(sentry.ClientOptions{BeforeSend: rec.beforeSend}, 10*time.Millisecond)
	require.NoError(t, err)

	assert.PanicsWithValue(t, "boom", func() {
		defer m.Recover()
		panic("boom")
	})
	assert.Len(t, rec.all(), 1)
}
