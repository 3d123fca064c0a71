// Package config loads the capture-probe YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
)

// Config represents the complete capture-probe configuration
type Config struct {
	InstanceID string        `yaml:"instance_id"`
	Capture    CaptureConfig `yaml:"capture"`
	Source     SourceConfig  `yaml:"source"`
	Metrics    MetricsConfig `yaml:"metrics"`
	MQTT       MQTTConfig    `yaml:"mqtt"`
	Output     OutputConfig  `yaml:"output"`
	Log        LogConfig     `yaml:"log"`
}

// CaptureConfig contains pipeline settings
type CaptureConfig struct {
	Name           string   `yaml:"name"`
	Streams        int      `yaml:"streams"`
	StreamNames    []string `yaml:"stream_names"`
	MaxBufferBytes int64    `yaml:"max_buffer_bytes"` // 0 = 3041280
	DropSchedule   []uint8  `yaml:"drop_schedule"`    // percent thresholds, default [62, 75, 87, 100]
	CounterScope   string   `yaml:"counter_scope"`    // shared, per_stream
	NonBlocking    bool     `yaml:"non_blocking"`     // poll with Read(false) instead of blocking
	ProbeDurationS int      `yaml:"probe_duration_s"` // 0 = skip rate probe
	MaxReopen      int      `yaml:"max_reopen"`       // reopen attempts after end-of-stream (0 = never)
}

// SourceConfig selects the capture device
type SourceConfig struct {
	Kind     string    `yaml:"kind"`      // sim, gst
	Launch   string    `yaml:"launch"`    // gst-launch pipeline description (kind: gst)
	SinkName string    `yaml:"sink_name"` // appsink element name (default "sink")
	Sim      SimConfig `yaml:"sim"`
}

// SimConfig configures the simulated device
type SimConfig struct {
	FrameSize  int `yaml:"frame_size"`
	IntervalMS int `yaml:"interval_ms"`
	Frames     int `yaml:"frames"` // 0 = unlimited
}

// Interval returns the frame interval as a duration
func (s SimConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMS) * time.Millisecond
}

// MetricsConfig contains Prometheus exporter settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// MQTTConfig contains MQTT broker settings for remote control
type MQTTConfig struct {
	Broker   string     `yaml:"broker"` // empty disables remote control
	ClientID string     `yaml:"client_id"`
	Topics   MQTTTopics `yaml:"topics"`
	QoS      byte       `yaml:"qos"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Control string `yaml:"control"`
	Status  string `yaml:"status"`
}

// OutputConfig controls the packet dump
type OutputConfig struct {
	Path     string `yaml:"path"` // empty disables dumping
	Compress bool   `yaml:"compress"`
}

// LogConfig controls logging
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text, json
	File       string `yaml:"file"`   // empty = stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates YAML configuration
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a validated configuration for a simulated device
func Default() *Config {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		panic(err) // defaults are always valid
	}
	return cfg
}

// counterScope converts the configured scope name.
func (c CaptureConfig) counterScope() (devicecapture.CounterScope, error) {
	switch c.CounterScope {
	case "", "shared":
		return devicecapture.SharedCounter, nil
	case "per_stream":
		return devicecapture.PerStreamCounter, nil
	default:
		return 0, fmt.Errorf("capture.counter_scope %q unknown (must be shared or per_stream)", c.CounterScope)
	}
}

// Pipeline builds the library configuration
func (c *Config) Pipeline() devicecapture.Config {
	scope, _ := c.Capture.counterScope() // checked by Validate
	return devicecapture.Config{
		Name:           c.Capture.Name,
		Streams:        c.Capture.Streams,
		StreamNames:    c.Capture.StreamNames,
		MaxBufferBytes: c.Capture.MaxBufferBytes,
		DropSchedule:   c.Capture.DropSchedule,
		CounterScope:   scope,
	}
}
