package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/bmsctl/core/events"
	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/sink"
	"github.com/kilianp07/bmsctl/infra/logger"
)

// InfluxConfig holds the connection settings of InfluxSink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Pack tags every point so several controllers can share a bucket.
	Pack string `json:"pack"`
}

// InfluxSink writes decisions and loop events to InfluxDB using the official
// client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	pack     string
	log      logger.Logger
	now      func() time.Time
}

// NewInfluxSink creates a sink for the given endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	pack := cfg.Pack
	if pack == "" {
		pack = "default"
	}
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		pack:     pack,
		log:      logger.New("influx-sink"),
		now:      time.Now,
	}
}

// NewInfluxSinkWithFallback pings InfluxDB and returns a NopSink when the
// health check fails, so a missing database never blocks the controller.
func NewInfluxSinkWithFallback(cfg InfluxConfig) sink.Sink {
	s := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := s.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			s.log.Errorf("influx health check error: %v", err)
		} else {
			s.log.Errorf("influx health status: %s", health.Status)
		}
		s.client.Close()
		return sink.NopSink{}
	}
	return s
}

// Emit writes the decision as a control_decision point.
func (s *InfluxSink) Emit(tick int, d model.ControlDecision) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("control_decision").
		AddTag("pack", s.pack).
		AddTag("mode", d.Mode.String()).
		AddTag("cooling", d.Cooling.String()).
		AddTag("over_temp", strconv.FormatBool(d.OverTempWarning)).
		AddField("tick", tick).
		AddField("adjusted_current", round3(d.AdjustedCurrent)).
		AddField("requested_current", round3(d.RequestedCurrent)).
		AddField("predicted_temp", round3(d.PredictedTemp)).
		AddField("predicted_soc", round3(d.PredictedSoC)).
		SetTime(s.now())
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordWarning writes an overtemp_warning point.
func (s *InfluxSink) RecordWarning(ev events.WarningEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("overtemp_warning").
		AddTag("pack", s.pack).
		AddTag("mode", ev.Mode.String()).
		AddTag("run_id", ev.RunID).
		AddField("tick", ev.Tick).
		AddField("predicted_temp", round3(ev.PredictedTemp)).
		AddField("max_temp", round3(ev.MaxTemp)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFailure writes a tick_failure point.
func (s *InfluxSink) RecordFailure(ev events.FailureEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg := ""
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	p := write.NewPointWithMeasurement("tick_failure").
		AddTag("pack", s.pack).
		AddTag("kind", ev.Reason).
		AddTag("mode", ev.Mode.String()).
		AddTag("run_id", ev.RunID).
		AddField("tick", ev.Tick).
		AddField("error", msg).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordState writes a controller_state point for a lifecycle transition.
func (s *InfluxSink) RecordState(ev events.StateEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("controller_state").
		AddTag("pack", s.pack).
		AddTag("run_id", ev.RunID).
		AddField("from", ev.From).
		AddField("to", ev.To).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
