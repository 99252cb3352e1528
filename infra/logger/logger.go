// Package logger provides the zerolog and logrus adapters of the core Logger
// interface. Setup selects the backend, level and output once at start-up;
// New then hands out component loggers.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	corelogger "github.com/kilianp07/bmsctl/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.NopLogger

// Backends.
const (
	BackendZerolog = "zerolog"
	BackendLogrus  = "logrus"
)

// Options configures the process-wide logging output.
type Options struct {
	Backend    string `json:"backend"`
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (o *Options) SetDefaults() {
	if o.Backend == "" {
		o.Backend = BackendZerolog
	}
	if o.Level == "" {
		o.Level = "info"
	}
	if o.MaxSizeMB == 0 {
		o.MaxSizeMB = 50
	}
	if o.MaxBackups == 0 {
		o.MaxBackups = 3
	}
	if o.MaxAgeDays == 0 {
		o.MaxAgeDays = 14
	}
}

// Validate checks the backend and level names.
func (o Options) Validate() error {
	if o.Backend != BackendZerolog && o.Backend != BackendLogrus {
		return fmt.Errorf("unknown log backend %s", o.Backend)
	}
	switch strings.ToLower(o.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %s", o.Level)
	}
	return nil
}

var mu sync.RWMutex

var current = Options{Backend: BackendZerolog, Level: "debug"}

var out io.Writer = os.Stdout

var rotator *lumberjack.Logger

// Setup installs opts for every logger created afterwards. When a file is
// configured, lines go to stdout and to a rotated file.
func Setup(opts Options) error {
	opts.SetDefaults()
	if err := opts.Validate(); err != nil {
		return err
	}
	var w io.Writer = os.Stdout
	var lj *lumberjack.Logger
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		lj = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		w = io.MultiWriter(os.Stdout, lj)
	}
	mu.Lock()
	old := rotator
	current, out, rotator = opts, w, lj
	mu.Unlock()
	if old != nil {
		return old.Close()
	}
	return nil
}

// Close releases the rotated log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	out = os.Stdout
	return err
}

func settings() (Options, io.Writer) {
	mu.RLock()
	defer mu.RUnlock()
	return current, out
}

// New returns a Logger for the given component using the configured backend.
// The console format is selected with APP_ENV=dev.
func New(component string) Logger {
	opts, w := settings()
	if opts.Backend == BackendLogrus {
		return newLogrus(component, opts.Level, w)
	}
	return newZerolog(component, opts.Level, w)
}
