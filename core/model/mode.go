package model

import (
	"fmt"
	"strings"
)

// Mode identifies an operating policy of the pack.
type Mode int

const (
	ModePerformance Mode = iota
	ModeEco
	ModeBalanced
	ModeCustom
)

// AllModes lists every mode in declaration order.
func AllModes() []Mode {
	return []Mode{ModePerformance, ModeEco, ModeBalanced, ModeCustom}
}

// String returns the display name of the mode.
func (m Mode) String() string {
	switch m {
	case ModePerformance:
		return "Performance"
	case ModeEco:
		return "Eco"
	case ModeBalanced:
		return "Balanced"
	case ModeCustom:
		return "Custom"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	return m >= ModePerformance && m <= ModeCustom
}

// ParseMode converts a mode name into a Mode. Matching ignores case and
// surrounding spaces.
func ParseMode(s string) (Mode, error) {
	name := strings.TrimSpace(s)
	for _, m := range AllModes() {
		if strings.EqualFold(name, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// CoolingIntensity is the binary actuation level for fans and pumps.
type CoolingIntensity int

const (
	CoolingLow CoolingIntensity = iota
	CoolingHigh
)

func (c CoolingIntensity) String() string {
	if c == CoolingHigh {
		return "High"
	}
	return "Low"
}

// MarshalText encodes the intensity as "Low" or "High".
func (c CoolingIntensity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes "Low" or "High" (case-insensitive).
func (c *CoolingIntensity) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "low":
		*c = CoolingLow
	case "high":
		*c = CoolingHigh
	default:
		return fmt.Errorf("unknown cooling intensity %q", string(b))
	}
	return nil
}
