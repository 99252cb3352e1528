// Package window holds the sliding history of feature vectors fed to the
// prediction oracle.
package window

import (
	"fmt"
	"sync"

	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/internal/ring"
)

// DefaultSize is the window length used by the reference models.
const DefaultSize = 100

// FeatureWindow is a FIFO of the most recent feature vectors. A snapshot is
// only available once the window has been filled once.
type FeatureWindow struct {
	mu  sync.RWMutex
	buf *ring.Buffer[model.FeatureVector]
}

// New returns an empty window of the given capacity.
func New(capacity int) (*FeatureWindow, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("window capacity must be >= 1, got %d", capacity)
	}
	return &FeatureWindow{buf: ring.New[model.FeatureVector](capacity)}, nil
}

// Push appends a sample, evicting the oldest one when full.
func (w *FeatureWindow) Push(f model.FeatureVector) {
	w.mu.Lock()
	w.buf.Push(f)
	w.mu.Unlock()
}

// Snapshot returns a copy of the window contents, oldest first. It fails
// with model.ErrNotWarmedUp until Cap() samples have been pushed.
func (w *FeatureWindow) Snapshot() ([]model.FeatureVector, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.buf.Full() {
		return nil, fmt.Errorf("%w: %d/%d samples", model.ErrNotWarmedUp, w.buf.Len(), w.buf.Cap())
	}
	return w.buf.Items(), nil
}

// Len returns the number of samples held.
func (w *FeatureWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.buf.Len()
}

// Cap returns the window length.
func (w *FeatureWindow) Cap() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.buf.Cap()
}

// Warm reports whether a snapshot can be taken.
func (w *FeatureWindow) Warm() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.buf.Full()
}

// Reset drops every sample. The window has to warm up again.
func (w *FeatureWindow) Reset() {
	w.mu.Lock()
	w.buf.Reset()
	w.mu.Unlock()
}
