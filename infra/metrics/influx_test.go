package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/bmsctl/core/events"
	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/sink"
)

type bodyRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (b *bodyRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies = append(b.bodies, strings.TrimSpace(string(data)))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (b *bodyRecorder) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.bodies...)
}

func TestInfluxSink_Emit(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)

	s := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket", Pack: "p1"})
	defer s.Close()
	now := time.Now()
	s.now = func() time.Time { return now }

	d := model.ControlDecision{
		Mode: model.ModeBalanced, Cooling: model.CoolingHigh, AdjustedCurrent: 35,
		PredictedTemp: 34.12345, PredictedSoC: 60, RequestedCurrent: 40,
	}
	if err := s.Emit(7, d); err != nil {
		t.Fatalf("emit error: %v", err)
	}
	p := write.NewPointWithMeasurement("control_decision").
		AddTag("pack", "p1").
		AddTag("mode", "Balanced").
		AddTag("cooling", "High").
		AddTag("over_temp", "false").
		AddField("tick", 7).
		AddField("adjusted_current", 35.0).
		AddField("requested_current", 40.0).
		AddField("predicted_temp", 34.123).
		AddField("predicted_soc", 60.0).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	bodies := rec.all()
	if len(bodies) != 1 || bodies[0] != expected {
		t.Errorf("unexpected bodies: %#v", bodies)
	}
}

func TestInfluxSink_Events(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)
	s := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Org: "org", Bucket: "bucket"})
	now := time.Now()

	if err := s.RecordWarning(events.WarningEvent{RunID: "r1", Tick: 3, Time: now, Mode: model.ModeEco, PredictedTemp: 36, MaxTemp: 35}); err != nil {
		t.Fatalf("warning: %v", err)
	}
	if err := s.RecordFailure(events.FailureEvent{RunID: "r1", Tick: 4, Time: now, Reason: events.FailureOracle, Err: errors.New("timeout")}); err != nil {
		t.Fatalf("failure: %v", err)
	}
	if err := s.RecordState(events.StateEvent{RunID: "r1", From: "running", To: "stopped", Time: now}); err != nil {
		t.Fatalf("state: %v", err)
	}
	bodies := rec.all()
	if len(bodies) != 3 {
		t.Fatalf("expected 3 writes got %d", len(bodies))
	}
	if !strings.HasPrefix(bodies[0], "overtemp_warning,") || !strings.Contains(bodies[0], "mode=Eco") || !strings.Contains(bodies[0], "pack=default") {
		t.Errorf("warning line: %s", bodies[0])
	}
	if !strings.Contains(bodies[1], `error="timeout"`) || !strings.Contains(bodies[1], "kind=oracle") {
		t.Errorf("failure line: %s", bodies[1])
	}
	if !strings.Contains(bodies[2], `to="stopped"`) {
		t.Errorf("state line: %s", bodies[2])
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	s := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	if _, ok := s.(sink.NopSink); !ok {
		t.Fatalf("expected NopSink on failing health check, got %T", s)
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
