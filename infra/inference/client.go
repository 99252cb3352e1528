// Package inference talks to an externally hosted model server. It provides
// the "http" oracle and the "http" classifier.
//
// The server exposes three JSON endpoints:
//
//	POST {url}/predict/soc          {"window": [[10 features], ...]} -> {"value": 61.2}
//	POST {url}/predict/temperature  {"window": [[10 features], ...]} -> {"value": 34.8}
//	POST {url}/classify             {"temperature": t, "soc": s, "current": c} -> {"mode": "Eco"}
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kilianp07/bmsctl/core/model"
)

// Config configures the model server client.
type Config struct {
	URL       string     `json:"url"`
	TimeoutMS int        `json:"timeout_ms"`
	Auth      AuthConfig `json:"auth"`
}

func (c *Config) SetDefaults() {
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 2000
	}
	c.URL = strings.TrimRight(c.URL, "/")
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("inference: url required")
	}
	if c.TimeoutMS < 0 {
		return errors.New("inference: timeout_ms must not be negative")
	}
	if c.Auth.enabled() && c.Auth.ClientID == "" {
		return errors.New("inference: auth.client_id required with token_url")
	}
	return nil
}

// Client is a thin JSON client for the model server. It is safe for
// concurrent use.
type Client struct {
	base string
	http *http.Client
	auth *ClientCred
}

func NewClient(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		base: cfg.URL,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
	}
	if cfg.Auth.enabled() {
		c.auth = NewClientCred(cfg.Auth)
	}
	return c, nil
}

type windowRequest struct {
	Window [][]float64 `json:"window"`
}

type valueResponse struct {
	Value *float64 `json:"value"`
}

type classifyRequest struct {
	Temperature float64 `json:"temperature"`
	SoC         float64 `json:"soc"`
	Current     float64 `json:"current"`
}

type classifyResponse struct {
	Mode string `json:"mode"`
}

// StatusError reports a non-2xx answer.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference %s: status %d: %s", e.Path, e.Code, e.Body)
}

func (c *Client) predict(ctx context.Context, path string, window []model.FeatureVector) (float64, error) {
	req := windowRequest{Window: make([][]float64, len(window))}
	for i, f := range window {
		req.Window[i] = f.Values()
	}
	var resp valueResponse
	if err := c.post(ctx, path, req, &resp); err != nil {
		return 0, err
	}
	if resp.Value == nil {
		return 0, fmt.Errorf("inference %s: response has no value", path)
	}
	return *resp.Value, nil
}

func (c *Client) PredictSoC(ctx context.Context, window []model.FeatureVector) (float64, error) {
	return c.predict(ctx, "/predict/soc", window)
}

func (c *Client) PredictTemperature(ctx context.Context, window []model.FeatureVector) (float64, error) {
	return c.predict(ctx, "/predict/temperature", window)
}

// Classify asks the server for a mode name. The name is not validated here.
func (c *Client) Classify(ctx context.Context, temp, soc, current float64) (string, error) {
	var resp classifyResponse
	if err := c.post(ctx, "/classify", classifyRequest{Temperature: temp, SoC: soc, Current: current}, &resp); err != nil {
		return "", err
	}
	if resp.Mode == "" {
		return "", errors.New("inference /classify: empty mode")
	}
	return resp.Mode, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	code, data, err := c.do(ctx, path, body)
	if err != nil {
		return err
	}
	// one retry with a fresh token when the server rejects the cached one
	if code == http.StatusUnauthorized && c.auth != nil {
		c.auth.Invalidate()
		code, data, err = c.do(ctx, path, body)
		if err != nil {
			return err
		}
	}
	if code/100 != 2 {
		return &StatusError{Path: path, Code: code, Body: strings.TrimSpace(string(data))}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("inference %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.auth != nil {
		if err := c.auth.SetAuthHeader(req); err != nil {
			return 0, nil, err
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("inference %s: %w", path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}
