package mqtt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/bmsctl/core/events"
	"github.com/kilianp07/bmsctl/core/model"
)

// Topics names the MQTT topics the controller publishes to and reads from.
// Empty entries are derived from Prefix and the pack id.
type Topics struct {
	Prefix    string `json:"prefix"`
	Decisions string `json:"decisions"`
	Warnings  string `json:"warnings"`
	Failures  string `json:"failures"`
	Samples   string `json:"samples"`
}

func (t *Topics) setDefaults(pack string) {
	if t.Prefix == "" {
		t.Prefix = "bms"
	}
	base := t.Prefix + "/" + pack
	if t.Decisions == "" {
		t.Decisions = base + "/decision"
	}
	if t.Warnings == "" {
		t.Warnings = base + "/warning"
	}
	if t.Failures == "" {
		t.Failures = base + "/failure"
	}
	if t.Samples == "" {
		t.Samples = base + "/features"
	}
}

// DecisionMessage is the JSON payload published for every decision.
type DecisionMessage struct {
	MessageID string    `json:"message_id"`
	Pack      string    `json:"pack"`
	Tick      int       `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
	model.ControlDecision
}

// WarningMessage is published when the predicted temperature exceeds the
// mode's limit.
type WarningMessage struct {
	MessageID     string     `json:"message_id"`
	Pack          string     `json:"pack"`
	RunID         string     `json:"run_id"`
	Tick          int        `json:"tick"`
	Timestamp     time.Time  `json:"timestamp"`
	Mode          model.Mode `json:"mode"`
	PredictedTemp float64    `json:"predicted_temp"`
	MaxTemp       float64    `json:"max_temp"`
}

// FailureMessage is published when a tick fails.
type FailureMessage struct {
	MessageID string     `json:"message_id"`
	Pack      string     `json:"pack"`
	RunID     string     `json:"run_id"`
	Tick      int        `json:"tick"`
	Timestamp time.Time  `json:"timestamp"`
	Reason    string     `json:"reason"`
	Mode      model.Mode `json:"mode"`
	Error     string     `json:"error"`
}

// Sink publishes decisions, warnings and failures as JSON.
type Sink struct {
	client *Client
	topics Topics
	pack   string
	retain bool
	now    func() time.Time
}

// NewSink creates a sink publishing through client.
func NewSink(client *Client, pack string, topics Topics, retain bool) *Sink {
	if pack == "" {
		pack = "default"
	}
	topics.setDefaults(pack)
	return &Sink{client: client, topics: topics, pack: pack, retain: retain, now: time.Now}
}

// Emit publishes the decision on the decisions topic.
func (s *Sink) Emit(tick int, d model.ControlDecision) error {
	return s.publish(s.topics.Decisions, "decision", DecisionMessage{
		MessageID:       uuid.NewString(),
		Pack:            s.pack,
		Tick:            tick,
		Timestamp:       s.now().UTC(),
		ControlDecision: d,
	})
}

// RecordWarning publishes the warning on the warnings topic.
func (s *Sink) RecordWarning(ev events.WarningEvent) error {
	return s.publish(s.topics.Warnings, "warning", WarningMessage{
		MessageID:     uuid.NewString(),
		Pack:          s.pack,
		RunID:         ev.RunID,
		Tick:          ev.Tick,
		Timestamp:     ev.Time.UTC(),
		Mode:          ev.Mode,
		PredictedTemp: ev.PredictedTemp,
		MaxTemp:       ev.MaxTemp,
	})
}

// RecordFailure publishes the failure on the failures topic.
func (s *Sink) RecordFailure(ev events.FailureEvent) error {
	msg := FailureMessage{
		MessageID: uuid.NewString(),
		Pack:      s.pack,
		RunID:     ev.RunID,
		Tick:      ev.Tick,
		Timestamp: ev.Time.UTC(),
		Reason:    ev.Reason,
		Mode:      ev.Mode,
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return s.publish(s.topics.Failures, "failure", msg)
}

func (s *Sink) publish(topic, kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Publish(topic, kind, s.retain && kind == "decision", payload)
}

// Close disconnects from the broker.
func (s *Sink) Close() error {
	s.client.Disconnect()
	return nil
}
