package mqtt

import (
	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/sink"
	"github.com/kilianp07/bmsctl/core/source"
)

// SinkConfig configures the "mqtt" sink.
type SinkConfig struct {
	Config `json:",squash"`
	Pack   string `json:"pack"`
	Topics Topics `json:"topics"`
	Retain bool   `json:"retain"`
}

// SourceConfig configures the "mqtt" source.
type SourceConfig struct {
	Config `json:",squash"`
	Pack   string `json:"pack"`
	Topics Topics `json:"topics"`
	Buffer int    `json:"buffer"`
}

func init() {
	_ = sink.Register("mqtt", func(conf map[string]any) (sink.Sink, error) {
		var c SinkConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		client, err := NewClient(c.Config)
		if err != nil {
			return nil, err
		}
		return NewSink(client, c.Pack, c.Topics, c.Retain), nil
	})

	_ = source.Register("mqtt", func(conf map[string]any) (source.Source, error) {
		var c SourceConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		pack := c.Pack
		if pack == "" {
			pack = "default"
		}
		c.Topics.setDefaults(pack)
		client, err := NewClient(c.Config)
		if err != nil {
			return nil, err
		}
		src, err := NewSource(client, c.Topics.Samples, c.Buffer)
		if err != nil {
			client.Disconnect()
			return nil, err
		}
		return src, nil
	})
}
