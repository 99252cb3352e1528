package mqtt

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/infra/logger"
)

// DefaultSourceBuffer is the number of samples queued before new ones are
// dropped.
const DefaultSourceBuffer = 256

// Source yields feature vectors received on an MQTT topic. Payloads are JSON
// objects using the FeatureVector field names.
type Source struct {
	client *Client
	topic  string
	ch     chan model.FeatureVector
	done   chan struct{}
	once   sync.Once
	log    logger.Logger
}

// NewSource subscribes to topic and starts queuing samples.
func NewSource(client *Client, topic string, buffer int) (*Source, error) {
	if buffer <= 0 {
		buffer = DefaultSourceBuffer
	}
	s := &Source{
		client: client,
		topic:  topic,
		ch:     make(chan model.FeatureVector, buffer),
		done:   make(chan struct{}),
		log:    logger.New("mqtt_source"),
	}
	if err := client.Subscribe(topic, "sample", s.handle); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) handle(_ paho.Client, msg paho.Message) {
	var v model.FeatureVector
	if err := json.Unmarshal(msg.Payload(), &v); err != nil {
		s.log.Warnf("discarding sample on %s: %v", msg.Topic(), err)
		return
	}
	select {
	case <-s.done:
	case s.ch <- v:
	default:
		s.log.Warnf("sample queue full, dropping sample on %s", msg.Topic())
	}
}

// Next blocks until a sample arrives, ctx is cancelled or the source closes.
func (s *Source) Next(ctx context.Context) (model.FeatureVector, error) {
	select {
	case v := <-s.ch:
		return v, nil
	case <-s.done:
		return model.FeatureVector{}, io.EOF
	case <-ctx.Done():
		return model.FeatureVector{}, ctx.Err()
	}
}

// Close unsubscribes and disconnects. Pending Next calls return io.EOF.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.client.Unsubscribe(s.topic)
		s.client.Disconnect()
	})
	return err
}
