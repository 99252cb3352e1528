package inference

import (
	"github.com/kilianp07/bmsctl/core/classifier"
	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/prediction"
)

func fromConf(conf map[string]any) (*Client, error) {
	var cfg Config
	if err := factory.Decode(conf, &cfg); err != nil {
		return nil, err
	}
	return NewClient(cfg)
}

func init() {
	_ = prediction.Register("http", func(conf map[string]any) (prediction.Oracle, error) {
		return fromConf(conf)
	})
	_ = classifier.Register("http", func(conf map[string]any) (classifier.Classifier, error) {
		return fromConf(conf)
	})
}
