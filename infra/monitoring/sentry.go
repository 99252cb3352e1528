// Package monitoring reports tick failures and panics to Sentry.
package monitoring

import (
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	coremon "github.com/kilianp07/bmsctl/core/monitoring"
)

// SentryConfig configures error reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	Release          string  `json:"release"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	FlushTimeoutMS   int     `json:"flush_timeout_ms"`
}

// SetDefaults fills the environment and flush timeout.
func (c *SentryConfig) SetDefaults() {
	if c.Environment == "" {
		c.Environment = "production"
	}
	if c.FlushTimeoutMS == 0 {
		c.FlushTimeoutMS = 2000
	}
}

// Validate checks the sample rate.
func (c SentryConfig) Validate() error {
	if c.TracesSampleRate < 0 || c.TracesSampleRate > 1 {
		return errors.New("sentry traces_sample_rate must be within [0,1]")
	}
	return nil
}

// FlushTimeout returns the flush timeout as a duration.
func (c SentryConfig) FlushTimeout() time.Duration {
	return time.Duration(c.FlushTimeoutMS) * time.Millisecond
}

// NewSentryMonitor returns a Monitor backed by Sentry, or a NopMonitor when
// no DSN is configured.
func NewSentryMonitor(cfg SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	cfg.SetDefaults()
	return newSentryMonitor(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		TracesSampleRate: cfg.TracesSampleRate,
	}, cfg.FlushTimeout())
}

func newSentryMonitor(opts sentry.ClientOptions, flush time.Duration) (*SentryMonitor, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &SentryMonitor{hub: sentry.NewHub(client, sentry.NewScope()), flush: flush}, nil
}

// SentryMonitor owns its hub so several controllers in one process keep
// separate scopes.
type SentryMonitor struct {
	hub   *sentry.Hub
	flush time.Duration
}

func (s *SentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		s.hub.CaptureException(err)
	})
}

// Recover reports a panic and re-raises it. It must be deferred directly.
func (s *SentryMonitor) Recover() {
	if r := recover(); r != nil {
		s.hub.Recover(r)
		s.hub.Flush(s.flush)
		panic(r)
	}
}

func (s *SentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
