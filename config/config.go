// Package config loads the controller configuration from a YAML or JSON file
// with environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/bmsctl/core/control"
	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/policy"
	"github.com/kilianp07/bmsctl/infra/logger"
	"github.com/kilianp07/bmsctl/infra/monitoring"
)

// EnvPrefix marks environment overrides. K_CONTROLLER__TICK_MS=50 sets
// controller.tick_ms.
const EnvPrefix = "K_"

type Config struct {
	Controller control.Config         `json:"controller"`
	Modes      policy.Config          `json:"modes"`
	Source     factory.ModuleConfig   `json:"source"`
	Oracle     factory.ModuleConfig   `json:"oracle"`
	Classifier factory.ModuleConfig   `json:"classifier"`
	Sinks      []factory.ModuleConfig `json:"sinks"`
	// MQTT and Kafka hold connection settings shared by every mqtt or kafka
	// source and sink. Keys set in a module's own conf win.
	MQTT    map[string]any          `json:"mqtt"`
	Kafka   map[string]any          `json:"kafka"`
	Metrics MetricsConfig           `json:"metrics"`
	API     APIConfig               `json:"api"`
	Logging logger.Options          `json:"logging"`
	Sentry  monitoring.SentryConfig `json:"sentry"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// SetDefaults applies sane defaults.
func (c *MetricsConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":9100"
	}
}

// APIConfig controls the status API.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// HistoryLimit caps the limit accepted by /api/decisions.
	HistoryLimit int `json:"history_limit"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 1000
	}
}

// Validate checks that the limit is usable.
func (c APIConfig) Validate() error {
	if c.HistoryLimit < 0 {
		return fmt.Errorf("api history_limit must be positive")
	}
	return nil
}

// Default returns a configuration replaying nothing: a looping empty slice
// source, the persistence oracle and the log sink. Callers usually override
// Source.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Controller.SetDefaults()
	if c.Source.Type == "" {
		c.Source.Type = "slice"
	}
	if c.Oracle.Type == "" {
		c.Oracle.Type = "persistence"
	}
	if c.Classifier.Type == "" {
		c.Classifier.Type = "rule"
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []factory.ModuleConfig{{Type: "log"}}
	}
	c.Metrics.SetDefaults()
	c.API.SetDefaults()
	c.Logging.SetDefaults()
	c.Sentry.SetDefaults()
}

// Validate checks every section, including that the policy table can be
// built and holds the configured starting mode.
func (c *Config) Validate() error {
	if err := c.Controller.Validate(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	table, err := policy.Load(c.Modes)
	if err != nil {
		return fmt.Errorf("modes: %w", err)
	}
	if c.Controller.Policy == control.PolicyFixed {
		m, err := c.Controller.StartMode()
		if err != nil {
			return fmt.Errorf("controller: %w", err)
		}
		if err := table.Require(m); err != nil {
			return fmt.Errorf("controller: %w", err)
		}
	}
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Sentry.Validate(); err != nil {
		return err
	}
	return nil
}

// Resolve merges the shared mqtt and kafka sections into every module of
// that type.
func (c *Config) Resolve() {
	shared := map[string]map[string]any{"mqtt": c.MQTT, "kafka": c.Kafka}
	c.Source = withShared(c.Source, shared)
	for i := range c.Sinks {
		c.Sinks[i] = withShared(c.Sinks[i], shared)
	}
}

func withShared(mc factory.ModuleConfig, shared map[string]map[string]any) factory.ModuleConfig {
	base := shared[mc.Type]
	if len(base) == 0 {
		return mc
	}
	merged := make(map[string]any, len(base)+len(mc.Conf))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range mc.Conf {
		merged[k] = v
	}
	mc.Conf = merged
	return mc
}

// Load reads path, applies K_ environment overrides, fills defaults and
// validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
