// Package mqtt connects the controller to an MQTT broker with Eclipse Paho:
// decisions and events are published as JSON and live sensor samples can be
// consumed from a topic.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/bmsctl/core/monitoring"
	"github.com/kilianp07/bmsctl/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string          `json:"broker"`
	ClientID   string          `json:"client_id"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	UseTLS     bool            `json:"use_tls"`
	ClientCert string          `json:"client_cert"`
	ClientKey  string          `json:"client_key"`
	CABundle   string          `json:"ca_bundle"`
	AuthMethod string          `json:"auth_method"`
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	MaxRetries int             `json:"max_retries"`
	BackoffMS  int             `json:"backoff_ms"`
	TLSConfig  *tls.Config     `json:"-"`
}

// SetDefaults fills the client id and retry policy.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "bmsctl-" + uuid.NewString()[:8]
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt broker is required")
	}
	switch c.AuthMethod {
	case "", "username_password", "certificate", "both":
	default:
		return fmt.Errorf("unknown mqtt auth_method %s", c.AuthMethod)
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Client is a connected Paho client with publish retries.
type Client struct {
	cli        pahoClient
	qos        map[string]byte
	log        logger.Logger
	mon        monitoring.Monitor
	maxRetries int
	backoff    time.Duration
	onConnect  []func()
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithMonitor reports publish failures to m.
func WithMonitor(m monitoring.Monitor) ClientOption {
	return func(c *Client) { c.mon = m }
}

// NewClient connects to the broker.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	popts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{
		qos:        cfg.QoS,
		log:        logger.New("mqtt_client"),
		mon:        monitoring.NopMonitor{},
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	popts.OnConnect = func(paho.Client) {
		c.log.Infof("MQTT connected to %s", cfg.Broker)
		for _, f := range c.onConnect {
			f()
		}
	}
	popts.OnConnectionLost = func(_ paho.Client, err error) {
		c.log.Errorf("connection lost: %v", err)
	}
	popts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		c.log.Warnf("reconnecting to MQTT broker")
	}
	cli := newMQTTClient(popts)
	c.cli = cli
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS || cfg.AuthMethod == "certificate" || cfg.AuthMethod == "both" {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("ca bundle %s holds no certificate", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// QoS returns the configured QoS for a message kind ("decision", "warning",
// "failure", "sample"), 0 when unset.
func (c *Client) QoS(kind string) byte {
	return c.qos[kind]
}

// Publish sends payload to topic, retrying with exponential backoff.
func (c *Client) Publish(topic, kind string, retained bool, payload []byte) error {
	qos := c.QoS(kind)
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		token := c.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		if err = token.Error(); err == nil {
			return nil
		}
		c.log.Errorf("publish to %s attempt %d failed: %v", topic, attempt+1, err)
		if attempt < c.maxRetries {
			time.Sleep(c.backoff * time.Duration(1<<attempt))
		}
	}
	c.mon.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic, "kind": kind})
	return fmt.Errorf("publish %s: %w", topic, err)
}

// Subscribe registers handler on topic and re-subscribes after reconnects.
func (c *Client) Subscribe(topic, kind string, handler paho.MessageHandler) error {
	qos := c.QoS(kind)
	sub := func() error {
		token := c.cli.Subscribe(topic, qos, handler)
		token.Wait()
		return token.Error()
	}
	if err := sub(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	c.onConnect = append(c.onConnect, func() {
		if err := sub(); err != nil {
			c.log.Errorf("resubscribe %s: %v", topic, err)
		}
	})
	return nil
}

// Unsubscribe removes the subscription on topic.
func (c *Client) Unsubscribe(topic string) error {
	token := c.cli.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

// Disconnect gracefully closes the MQTT connection.
func (c *Client) Disconnect() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}
