// Package serial reads feature vectors from a BMS board over a serial line.
// Each line is either a JSON object using the FeatureVector field names or
// ten comma-separated normalized values in canonical feature order.
package serial

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/source"
	"github.com/kilianp07/bmsctl/infra/logger"
)

// Config configures the "serial" source.
type Config struct {
	Device        string `json:"device"`
	Baud          int    `json:"baud"`
	ReadTimeoutMS int    `json:"read_timeout_ms"`
	Buffer        int    `json:"buffer"`
}

// SetDefaults fills the baud rate and queue size.
func (c *Config) SetDefaults() {
	if c.Baud == 0 {
		c.Baud = 115200
	}
	if c.Buffer == 0 {
		c.Buffer = 64
	}
}

const idlePoll = 20 * time.Millisecond

var openPort = func(c Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{
		Name:        c.Device,
		Baud:        c.Baud,
		ReadTimeout: time.Duration(c.ReadTimeoutMS) * time.Millisecond,
	})
}

// Source yields samples parsed from the port.
type Source struct {
	port    io.ReadWriteCloser
	device  string
	samples chan model.FeatureVector
	done    chan struct{}
	once    sync.Once
	log     logger.Logger

	mu  sync.Mutex
	err error
}

// Open opens the device and starts reading lines.
func Open(cfg Config) (*Source, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial device is required")
	}
	cfg.SetDefaults()
	port, err := openPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", cfg.Device, err)
	}
	s := &Source{
		port:    port,
		device:  cfg.Device,
		samples: make(chan model.FeatureVector, cfg.Buffer),
		done:    make(chan struct{}),
		log:     logger.New("serial_source"),
	}
	go s.readLoop()
	return s, nil
}

func (s *Source) readLoop() {
	defer close(s.samples)
	rd := bufio.NewReader(s.port)
	for {
		line, err := rd.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			v, perr := ParseLine(line)
			if perr != nil {
				s.log.Warnf("%s: discarding line: %v", s.device, perr)
			} else {
				select {
				case s.samples <- v:
				case <-s.done:
					return
				}
			}
		}
		if err != nil {
			// tarm/serial reports a read timeout as io.EOF with no data
			if errors.Is(err, io.EOF) {
				select {
				case <-s.done:
					return
				case <-time.After(idlePoll):
					continue
				}
			}
			select {
			case <-s.done:
			default:
				s.setErr(err)
			}
			return
		}
	}
}

func (s *Source) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Next returns the next parsed sample. A port error ends the stream with
// that error; Close ends it with io.EOF.
func (s *Source) Next(ctx context.Context) (model.FeatureVector, error) {
	select {
	case v, ok := <-s.samples:
		if ok {
			return v, nil
		}
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return model.FeatureVector{}, err
		}
		return model.FeatureVector{}, io.EOF
	case <-ctx.Done():
		return model.FeatureVector{}, ctx.Err()
	}
}

// Close stops the reader and closes the port.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.port.Close()
	})
	return err
}

// ParseLine decodes a JSON or CSV sample line.
func ParseLine(line string) (model.FeatureVector, error) {
	if strings.HasPrefix(line, "{") {
		var v model.FeatureVector
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return model.FeatureVector{}, err
		}
		return v, nil
	}
	parts := strings.Split(line, ",")
	vals := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.FeatureVector{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = f
	}
	return model.FeatureVectorFromValues(vals)
}

func init() {
	_ = source.Register("serial", func(conf map[string]any) (source.Source, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return Open(c)
	})
}
