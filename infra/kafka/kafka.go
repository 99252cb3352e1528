// Package kafka publishes decisions to and reads samples from Kafka topics
// with segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/kilianp07/bmsctl/core/events"
	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/sink"
	"github.com/kilianp07/bmsctl/core/source"
	"github.com/kilianp07/bmsctl/infra/logger"
)

// Config holds the broker list and topics.
type Config struct {
	Brokers        []string `json:"brokers"`
	DecisionTopic  string   `json:"decision_topic"`
	EventTopic     string   `json:"event_topic"`
	SampleTopic    string   `json:"sample_topic"`
	GroupID        string   `json:"group_id"`
	Pack           string   `json:"pack"`
	WriteTimeoutMS int      `json:"write_timeout_ms"`
}

// SetDefaults fills topic names and timeouts.
func (c *Config) SetDefaults() {
	if c.DecisionTopic == "" {
		c.DecisionTopic = "bms.decisions"
	}
	if c.EventTopic == "" {
		c.EventTopic = "bms.events"
	}
	if c.SampleTopic == "" {
		c.SampleTopic = "bms.features"
	}
	if c.GroupID == "" {
		c.GroupID = "bmsctl"
	}
	if c.Pack == "" {
		c.Pack = "default"
	}
	if c.WriteTimeoutMS == 0 {
		c.WriteTimeoutMS = 2000
	}
}

// Validate checks that brokers are configured.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka brokers are required")
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

var newWriter = func(brokers []string, topic string) messageWriter {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafkago.RequireOne,
		Balancer:     &kafkago.Hash{},
		Async:        false,
	}
}

var newReader = func(brokers []string, topic, group string) messageReader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		GroupID:  group,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
}

// Envelope is the message value written for decisions and events.
type Envelope struct {
	MessageID string                 `json:"message_id"`
	Kind      string                 `json:"kind"`
	Pack      string                 `json:"pack"`
	Tick      int                    `json:"tick"`
	Timestamp time.Time              `json:"timestamp"`
	Decision  *model.ControlDecision `json:"decision,omitempty"`
	Mode      *model.Mode            `json:"mode,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Predicted float64                `json:"predicted_temp,omitempty"`
	MaxTemp   float64                `json:"max_temp,omitempty"`
}

// Sink writes decisions to DecisionTopic and warnings and failures to
// EventTopic, keyed by pack.
type Sink struct {
	decisions messageWriter
	events    messageWriter
	pack      string
	timeout   time.Duration
	now       func() time.Time
}

// NewSink creates writers for the configured topics.
func NewSink(cfg Config) (*Sink, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sink{
		decisions: newWriter(cfg.Brokers, cfg.DecisionTopic),
		events:    newWriter(cfg.Brokers, cfg.EventTopic),
		pack:      cfg.Pack,
		timeout:   time.Duration(cfg.WriteTimeoutMS) * time.Millisecond,
		now:       time.Now,
	}, nil
}

func (s *Sink) Emit(tick int, d model.ControlDecision) error {
	return s.write(s.decisions, Envelope{Kind: "decision", Tick: tick, Timestamp: s.now().UTC(), Decision: &d})
}

func (s *Sink) RecordWarning(ev events.WarningEvent) error {
	mode := ev.Mode
	return s.write(s.events, Envelope{
		Kind:      ev.Kind(),
		Tick:      ev.Tick,
		Timestamp: ev.Time.UTC(),
		Mode:      &mode,
		Predicted: ev.PredictedTemp,
		MaxTemp:   ev.MaxTemp,
	})
}

func (s *Sink) RecordFailure(ev events.FailureEvent) error {
	mode := ev.Mode
	env := Envelope{Kind: ev.Kind(), Tick: ev.Tick, Timestamp: ev.Time.UTC(), Mode: &mode, Reason: ev.Reason}
	if ev.Err != nil {
		env.Error = ev.Err.Error()
	}
	return s.write(s.events, env)
}

func (s *Sink) write(w messageWriter, env Envelope) error {
	env.MessageID = uuid.NewString()
	env.Pack = s.pack
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return w.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(s.pack),
		Value: b,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(env.Kind)},
			{Key: "tick", Value: []byte(strconv.Itoa(env.Tick))},
		},
	})
}

// Close closes both writers.
func (s *Sink) Close() error {
	return errors.Join(s.decisions.Close(), s.events.Close())
}

// Source consumes JSON feature vectors from SampleTopic.
type Source struct {
	reader messageReader
	log    logger.Logger
}

// NewSource joins the consumer group on the sample topic.
func NewSource(cfg Config) (*Source, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Source{reader: newReader(cfg.Brokers, cfg.SampleTopic, cfg.GroupID), log: logger.New("kafka_source")}, nil
}

// Next returns the next decodable sample. Malformed messages are skipped.
// A closed reader ends the stream with io.EOF.
func (s *Source) Next(ctx context.Context) (model.FeatureVector, error) {
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return model.FeatureVector{}, ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return model.FeatureVector{}, io.EOF
			}
			return model.FeatureVector{}, err
		}
		var v model.FeatureVector
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			s.log.Warnf("skipping malformed sample at offset %d: %v", msg.Offset, err)
			continue
		}
		return v, nil
	}
}

func (s *Source) Close() error { return s.reader.Close() }

func init() {
	_ = sink.Register("kafka", func(conf map[string]any) (sink.Sink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSink(c)
	})
	_ = source.Register("kafka", func(conf map[string]any) (source.Source, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSource(c)
	})
}
