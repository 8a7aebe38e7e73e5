// Package config loads gcpipe settings from TOML or YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mastercactapus/gcpipe/pipeline"
)

// Duration is a time.Duration written as text, e.g. "5s" or "100ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	Serial   SerialConfig  `toml:"serial" yaml:"serial"`
	HTTP     HTTPConfig    `toml:"http" yaml:"http"`
	DataDir  string        `toml:"data_dir" yaml:"data_dir"`
	Motion   MotionConfig  `toml:"motion" yaml:"motion"`
	Queues   QueueConfig   `toml:"queues" yaml:"queues"`
	Timeouts TimeoutConfig `toml:"timeouts" yaml:"timeouts"`
	Fault    FaultConfig   `toml:"fault" yaml:"fault"`
	Debug    bool          `toml:"debug" yaml:"debug"`
}

// SerialConfig is the interactive link. An empty port means stdin/stdout.
type SerialConfig struct {
	Port string `toml:"port" yaml:"port"`
	Baud int    `toml:"baud" yaml:"baud"`
}

type HTTPConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// MotionConfig is where validated commands are written. An empty port means
// stdout. With Bridge set, Port names the port on a serial-port-json-server
// reachable at that websocket URL.
type MotionConfig struct {
	Port   string `toml:"port" yaml:"port"`
	Baud   int    `toml:"baud" yaml:"baud"`
	Bridge string `toml:"bridge" yaml:"bridge"`
}

type QueueConfig struct {
	Lines  int `toml:"lines" yaml:"lines"`
	Files  int `toml:"files" yaml:"files"`
	Motion int `toml:"motion" yaml:"motion"`
}

type TimeoutConfig struct {
	Line   Duration `toml:"line" yaml:"line"`
	File   Duration `toml:"file" yaml:"file"`
	Motion Duration `toml:"motion" yaml:"motion"`
}

type FaultConfig struct {
	Limit  int      `toml:"limit" yaml:"limit"`
	Window Duration `toml:"window" yaml:"window"`
}

func Default() Config {
	opts := pipeline.DefaultOptions()
	return Config{
		Serial:  SerialConfig{Baud: 115200},
		HTTP:    HTTPConfig{Addr: ":9091"},
		DataDir: "./data",
		Motion:  MotionConfig{Baud: 115200},
		Queues: QueueConfig{
			Lines:  opts.LineCapacity,
			Files:  opts.FileCapacity,
			Motion: opts.MotionCapacity,
		},
		Timeouts: TimeoutConfig{
			Line:   Duration{opts.LineTimeout},
			File:   Duration{opts.FileTimeout},
			Motion: Duration{opts.MotionTimeout},
		},
		Fault: FaultConfig{
			Limit:  opts.FaultLimit,
			Window: Duration{opts.FaultWindow},
		},
	}
}

// Load reads path over the defaults. The format is picked by extension:
// .yaml and .yml are YAML, anything else TOML. An empty path or a missing
// file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		_, err = toml.Decode(string(data), &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Queues.Lines <= 0, c.Queues.Files <= 0, c.Queues.Motion <= 0:
		return fmt.Errorf("queue capacities must be positive: %+v", c.Queues)
	case c.Timeouts.Line.Duration <= 0, c.Timeouts.File.Duration <= 0, c.Timeouts.Motion.Duration <= 0:
		return fmt.Errorf("timeouts must be positive")
	case c.Serial.Baud <= 0 || c.Motion.Baud <= 0:
		return fmt.Errorf("baud rate must be positive")
	case c.Fault.Limit < 0 || c.Fault.Window.Duration < 0:
		return fmt.Errorf("fault limit and window must not be negative")
	}
	return nil
}

// PipelineOptions returns the pipeline settings. Collaborators (files,
// indicator, echo) are left for the caller.
func (c Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		LineCapacity:   c.Queues.Lines,
		FileCapacity:   c.Queues.Files,
		MotionCapacity: c.Queues.Motion,

		LineTimeout:   c.Timeouts.Line.Duration,
		FileTimeout:   c.Timeouts.File.Duration,
		MotionTimeout: c.Timeouts.Motion.Duration,

		FaultLimit:  c.Fault.Limit,
		FaultWindow: c.Fault.Window.Duration,

		Debug: c.Debug,
	}
}
