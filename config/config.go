// Package config loads simulation parameters.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"pipelined.dev/chain"
)

// Config contains parameters of the simulation.
type Config struct {
	Chain   Chain   `yaml:"chain"`
	Code    Code    `yaml:"code"`
	Sweep   Sweep   `yaml:"sweep"`
	Monitor Monitor `yaml:"monitor"`
	Task    Task    `yaml:"task"`
	Metrics Metrics `yaml:"metrics"`
	Seed    uint64  `yaml:"seed"`
}

// Chain defines blocks parameters.
type Chain struct {
	BufferSize int `yaml:"buffer_size"`
	Threads    int `yaml:"threads"`
}

// Code defines repetition code dimensions.
type Code struct {
	K int `yaml:"k"`
	N int `yaml:"n"`
}

// Sweep defines range of Eb/N0 values in dB and the period of progress
// reports. Zero period disables reports.
type Sweep struct {
	Min      float64       `yaml:"min"`
	Max      float64       `yaml:"max"`
	Step     float64       `yaml:"step"`
	Progress time.Duration `yaml:"progress"`
}

// Monitor defines limits of a single point.
type Monitor struct {
	MaxFE     int    `yaml:"max_fe"`
	MaxFrames uint64 `yaml:"max_frames"`
}

// Task defines execution mode of tasks.
type Task struct {
	Checked    bool `yaml:"checked"`
	Stats      bool `yaml:"stats"`
	Debug      bool `yaml:"debug"`
	DebugLimit int  `yaml:"debug_limit"`
}

// Metrics defines prometheus endpoint.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Chain:   Chain{BufferSize: 16, Threads: 1},
		Code:    Code{K: 32, N: 128},
		Sweep:   Sweep{Min: 0, Max: 10.01, Step: 1, Progress: 500 * time.Millisecond},
		Monitor: Monitor{MaxFE: 100},
		Task:    Task{Stats: true, DebugLimit: 16},
	}
}

// Load reads configuration from YAML file. Missing values are taken from
// defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads configuration from YAML stream. Unknown fields are
// rejected.
func Decode(r io.Reader) (Config, error) {
	c := Default()
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return c, c.Validate()
}

// Encode writes configuration as YAML.
func (c Config) Encode(w io.Writer) error {
	var buf bytes.Buffer
	e := yaml.NewEncoder(&buf)
	e.SetIndent(2)
	if err := e.Encode(c); err != nil {
		return err
	}
	if err := e.Close(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Validate checks all parameters and returns every found problem.
func (c Config) Validate() error {
	var err error
	if c.Chain.BufferSize < 1 {
		err = multierr.Append(err, fmt.Errorf("chain.buffer_size %d must be positive", c.Chain.BufferSize))
	}
	if c.Chain.Threads < 1 {
		err = multierr.Append(err, fmt.Errorf("chain.threads %d must be positive", c.Chain.Threads))
	}
	if c.Code.K < 1 || c.Code.N < c.Code.K || c.Code.N%c.Code.K != 0 {
		err = multierr.Append(err, fmt.Errorf("code.n %d must be a multiple of code.k %d", c.Code.N, c.Code.K))
	}
	if c.Sweep.Step <= 0 {
		err = multierr.Append(err, fmt.Errorf("sweep.step %v must be positive", c.Sweep.Step))
	}
	if c.Sweep.Max < c.Sweep.Min {
		err = multierr.Append(err, fmt.Errorf("sweep.max %v is less than sweep.min %v", c.Sweep.Max, c.Sweep.Min))
	}
	if c.Sweep.Progress < 0 {
		err = multierr.Append(err, fmt.Errorf("sweep.progress %v must not be negative", c.Sweep.Progress))
	}
	if c.Monitor.MaxFE < 1 {
		err = multierr.Append(err, fmt.Errorf("monitor.max_fe %d must be positive", c.Monitor.MaxFE))
	}
	if c.Task.DebugLimit < 0 {
		err = multierr.Append(err, fmt.Errorf("task.debug_limit %d must not be negative", c.Task.DebugLimit))
	}
	return err
}

// TaskConfig returns execution mode of tasks.
func (c Config) TaskConfig() chain.Config {
	return chain.Config{
		Checked:    c.Task.Checked,
		Stats:      c.Task.Stats,
		Debug:      c.Task.Debug,
		DebugLimit: c.Task.DebugLimit,
	}
}
