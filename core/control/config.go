package control

import (
	"fmt"
	"time"

	"github.com/kilianp07/bmsctl/core/model"
)

// Policy values.
const (
	PolicyFixed = "fixed"
	PolicyAI    = "ai"
)

// Failure policy values.
const (
	OnFailureSkip = "skip"
	OnFailureStop = "stop"
)

// Config holds the loop settings. It is fixed once the loop is built.
// TickMS and RequestedCurrent are pointers so an explicit 0 survives
// SetDefaults.
type Config struct {
	WindowSize       int      `json:"window_size"`
	TickMS           *int     `json:"tick_ms"`
	Policy           string   `json:"policy"`
	Mode             string   `json:"mode"`
	OnFailure        string   `json:"on_failure"`
	HistorySize      int      `json:"history_size"`
	OracleTimeoutMS  int      `json:"oracle_timeout_ms"`
	RequestedCurrent *float64 `json:"requested_current"`
}

// SetDefaults applies the reference settings of the demo controller.
func (c *Config) SetDefaults() {
	if c.WindowSize == 0 {
		c.WindowSize = 100
	}
	if c.TickMS == nil {
		c.TickMS = Int(100)
	}
	if c.Policy == "" {
		c.Policy = PolicyFixed
	}
	if c.Mode == "" {
		c.Mode = model.ModeBalanced.String()
	}
	if c.OnFailure == "" {
		c.OnFailure = OnFailureSkip
	}
	if c.HistorySize == 0 {
		c.HistorySize = 1000
	}
	if c.OracleTimeoutMS == 0 {
		c.OracleTimeoutMS = 1000
	}
	if c.RequestedCurrent == nil {
		c.RequestedCurrent = Float(40)
	}
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("window_size must be >= 1")
	}
	if c.TickMS != nil && *c.TickMS < 0 {
		return fmt.Errorf("tick_ms must not be negative")
	}
	if c.Policy != PolicyFixed && c.Policy != PolicyAI {
		return fmt.Errorf("unknown policy %q", c.Policy)
	}
	if _, err := model.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.OnFailure != OnFailureSkip && c.OnFailure != OnFailureStop {
		return fmt.Errorf("unknown on_failure %q", c.OnFailure)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("history_size must be >= 1")
	}
	if c.OracleTimeoutMS < 0 {
		return fmt.Errorf("oracle_timeout_ms must not be negative")
	}
	if c.RequestedCurrent != nil && *c.RequestedCurrent < 0 {
		return fmt.Errorf("requested_current must not be negative")
	}
	return nil
}

// TickPeriod returns the configured cadence.
func (c Config) TickPeriod() time.Duration {
	if c.TickMS == nil {
		return 0
	}
	return time.Duration(*c.TickMS) * time.Millisecond
}

// Current returns the constant requested current in amperes.
func (c Config) Current() float64 {
	if c.RequestedCurrent == nil {
		return 0
	}
	return *c.RequestedCurrent
}

// Int returns a pointer to v, for optional settings.
func Int(v int) *int { return &v }

// Float returns a pointer to v, for optional settings.
func Float(v float64) *float64 { return &v }

// OracleTimeout returns the per-call oracle deadline.
func (c Config) OracleTimeout() time.Duration {
	return time.Duration(c.OracleTimeoutMS) * time.Millisecond
}

// StartMode parses Mode.
func (c Config) StartMode() (model.Mode, error) {
	return model.ParseMode(c.Mode)
}
