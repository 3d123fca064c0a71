package config

import (
	"fmt"
	"regexp"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		cfg.InstanceID = "capture-probe"
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if err := validateCapture(&cfg.Capture); err != nil {
		return err
	}
	if err := validateSource(&cfg.Source); err != nil {
		return err
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9108"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	// MQTT is optional; topics default per instance
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = cfg.InstanceID
		}
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("care/capture/%s/control", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Status == "" {
			cfg.MQTT.Topics.Status = fmt.Sprintf("care/capture/%s/status", cfg.InstanceID)
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	return validateLog(&cfg.Log)
}

func validateCapture(c *CaptureConfig) error {
	if c.Name == "" {
		c.Name = "capture"
	}
	if c.Streams < 0 {
		return fmt.Errorf("capture.streams must be >= 0")
	}
	if c.Streams == 0 {
		c.Streams = 2
	}
	if len(c.StreamNames) > 0 && len(c.StreamNames) != c.Streams {
		return fmt.Errorf("capture.stream_names has %d entries for %d streams", len(c.StreamNames), c.Streams)
	}
	if c.MaxBufferBytes < 0 {
		return fmt.Errorf("capture.max_buffer_bytes must be >= 0")
	}
	for i, th := range c.DropSchedule {
		if th == 0 || th > 100 {
			return fmt.Errorf("capture.drop_schedule[%d] = %d (must be 1-100)", i, th)
		}
	}
	if _, err := c.counterScope(); err != nil {
		return err
	}
	if c.ProbeDurationS < 0 || c.MaxReopen < 0 {
		return fmt.Errorf("capture.probe_duration_s and capture.max_reopen must be >= 0")
	}
	return nil
}

func validateSource(s *SourceConfig) error {
	switch s.Kind {
	case "":
		s.Kind = "sim"
	case "sim", "gst":
	default:
		return fmt.Errorf("source.kind %q unknown (must be sim or gst)", s.Kind)
	}

	if s.Kind == "gst" && s.Launch == "" {
		return fmt.Errorf("source.launch is required for kind gst")
	}
	if s.SinkName == "" {
		s.SinkName = "sink"
	}

	if s.Sim.FrameSize <= 0 {
		s.Sim.FrameSize = 64 * 1024
	}
	if s.Sim.IntervalMS <= 0 {
		s.Sim.IntervalMS = 33 // ~30 fps
	}
	if s.Sim.Frames < 0 {
		return fmt.Errorf("source.sim.frames must be >= 0")
	}
	return nil
}

func validateLog(l *LogConfig) error {
	switch l.Level {
	case "":
		l.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown", l.Level)
	}

	switch l.Format {
	case "":
		l.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q unknown (must be text or json)", l.Format)
	}

	if l.File != "" {
		if l.MaxSizeMB <= 0 {
			l.MaxSizeMB = 50
		}
		if l.MaxBackups <= 0 {
			l.MaxBackups = 3
		}
		if l.MaxAgeDays <= 0 {
			l.MaxAgeDays = 28
		}
	}
	return nil
}
