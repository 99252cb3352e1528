// Package monitoring defines the error reporting hook used by the control
// loop. The Sentry implementation lives in infra/monitoring.
package monitoring

import (
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

// NopMonitor drops every report.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

// Recorder keeps captured errors in memory. Tests use it to assert what the
// loop reported.
type Recorder struct {
	mu     sync.Mutex
	errors []error
	tags   []map[string]string
}

func (r *Recorder) CaptureException(err error, tags map[string]string) {
	r.mu.Lock()
	r.errors = append(r.errors, err)
	r.tags = append(r.tags, tags)
	r.mu.Unlock()
}

// Captured returns a copy of the recorded errors.
func (r *Recorder) Captured() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}

// CapturedTags returns a copy of the tags recorded with each error.
func (r *Recorder) CapturedTags() []map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]string(nil), r.tags...)
}

func (r *Recorder) Recover()            {}
func (r *Recorder) Flush(time.Duration) {}
