package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"Performance": ModePerformance,
		"eco":         ModeEco,
		" BALANCED ":  ModeBalanced,
		"custom":      ModeCustom,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseMode(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseMode("Turbo"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestModeJSON(t *testing.T) {
	b, err := json.Marshal(ControlDecision{Mode: ModeEco, Cooling: CoolingHigh})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var d ControlDecision
	if err := json.Unmarshal(b, &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Mode != ModeEco || d.Cooling != CoolingHigh {
		t.Fatalf("unexpected decision %+v", d)
	}
	if _, err := Mode(42).MarshalText(); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode for out-of-range mode")
	}
}

func TestModeParamsValidate(t *testing.T) {
	if err := (ModeParams{CoolingThreshold: 33, MaxCurrent: 35, MaxTemp: 37}).Validate(); err != nil {
		t.Fatalf("balanced row rejected: %v", err)
	}
	if err := (ModeParams{CoolingThreshold: 40, MaxCurrent: 35, MaxTemp: 37}).Validate(); !errors.Is(err, ErrInvalidModeParams) {
		t.Fatalf("expected ErrInvalidModeParams, got %v", err)
	}
	if err := (ModeParams{CoolingThreshold: math.NaN(), MaxTemp: 37}).Validate(); !errors.Is(err, ErrInvalidModeParams) {
		t.Fatalf("expected NaN rejection, got %v", err)
	}
}

func TestFeatureVectorRoundTrip(t *testing.T) {
	in := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}
	fv, err := FeatureVectorFromValues(in)
	if err != nil {
		t.Fatalf("from values: %v", err)
	}
	out := fv.Values()
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("feature %s: got %v want %v", FeatureNames[i], out[i], in[i])
		}
	}
	if _, err := FeatureVectorFromValues(in[:3]); err == nil {
		t.Fatalf("expected length error")
	}
}
