// Package auditlog is an append-only sink writing every emitted decision to
// rotating JSONL files or SQLite for offline audit. The controller never
// reads it back; its own history stays in memory.
package auditlog

import (
	"context"
	"time"

	"github.com/kilianp07/bmsctl/core/model"
)

// Record is one persisted decision.
type Record struct {
	Pack  string `json:"pack"`
	RunID string `json:"run_id,omitempty"`
	model.TickRecord
}

// Query filters records. Zero values match everything.
type Query struct {
	Start        time.Time
	End          time.Time
	Pack         string
	Mode         *model.Mode
	OverTempOnly bool
	// Limit keeps only the most recent records when positive.
	Limit int
}

// Match reports whether r satisfies the filter, ignoring Limit.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Time.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Time.After(q.End) {
		return false
	}
	if q.Pack != "" && r.Pack != q.Pack {
		return false
	}
	if q.Mode != nil && r.Decision.Mode != *q.Mode {
		return false
	}
	if q.OverTempOnly && !r.Decision.OverTempWarning {
		return false
	}
	return true
}

func (q Query) limit(recs []Record) []Record {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}

// Store persists records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}
