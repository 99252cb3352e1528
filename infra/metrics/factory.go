package metrics

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/sink"
	"github.com/kilianp07/bmsctl/infra/logger"
	"github.com/kilianp07/bmsctl/pkg/export"
)

// init registers the built-in observability sinks.
func init() {
	_ = sink.Register("prometheus", func(map[string]any) (sink.Sink, error) {
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = sink.Register("influx", func(conf map[string]any) (sink.Sink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})

	_ = sink.Register("log", func(conf map[string]any) (sink.Sink, error) {
		var c struct {
			Component string `json:"component"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Component == "" {
			c.Component = "decisions"
		}
		return sink.NewLogSink(logger.New(c.Component)), nil
	})

	_ = sink.Register("console", func(conf map[string]any) (sink.Sink, error) {
		var c struct {
			Format string `json:"format"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Format == "" {
			c.Format = "json"
		}
		return export.NewWriterSink(os.Stdout, c.Format)
	})
}
