package auditlog

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/sink"
)

// Sink appends every decision to a Store.
type Sink struct {
	store   Store
	pack    string
	timeout time.Duration
	now     func() time.Time
}

// NewSink wraps store. Records are tagged with pack.
func NewSink(store Store, pack string) *Sink {
	if pack == "" {
		pack = "default"
	}
	return &Sink{store: store, pack: pack, timeout: 2 * time.Second, now: time.Now}
}

func (s *Sink) Emit(tick int, d model.ControlDecision) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.store.Append(ctx, Record{
		Pack:       s.pack,
		TickRecord: model.TickRecord{Tick: tick, Time: s.now().UTC(), Decision: d},
	})
}

// Store returns the wrapped store.
func (s *Sink) Store() Store { return s.store }

func (s *Sink) Close() error { return s.store.Close() }

// JSONLConfig configures the "jsonl" sink.
type JSONLConfig struct {
	Path       string `json:"path"`
	Pack       string `json:"pack"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SQLiteConfig configures the "sqlite" sink.
type SQLiteConfig struct {
	Path string `json:"path"`
	Pack string `json:"pack"`
}

func init() {
	_ = sink.Register("jsonl", func(conf map[string]any) (sink.Sink, error) {
		c := JSONLConfig{Path: "decisions.jsonl", MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 30}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		st, err := NewJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
		if err != nil {
			return nil, err
		}
		return NewSink(st, c.Pack), nil
	})

	_ = sink.Register("sqlite", func(conf map[string]any) (sink.Sink, error) {
		c := SQLiteConfig{Path: "decisions.db"}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		st, err := NewSQLiteStore(c.Path)
		if err != nil {
			return nil, err
		}
		return NewSink(st, c.Pack), nil
	})
}

// Open returns the store for path, choosing the backend from the extension:
// .db, .sqlite and .sqlite3 open SQLite, anything else is read as JSONL.
func Open(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteStore(path)
	default:
		return NewJSONLStore(path, 50, 5, 30)
	}
}
