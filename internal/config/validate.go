package config

import (
	"errors"
	"fmt"

	"ingest/internal/capability"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProbe(); err != nil {
		return err
	}
	if err := c.validateNegotiation(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateProbe() error {
	if c.Probe.FFProbeBinary == "" {
		return errors.New("probe.ffprobe_binary must be set")
	}
	if c.Probe.ReorderWindow < 1 {
		return fmt.Errorf("probe.reorder_window must be at least 1, got %d", c.Probe.ReorderWindow)
	}
	return nil
}

func (c *Config) validateNegotiation() error {
	if _, err := capability.ParseOutputType(c.Negotiation.AudioOutput); err != nil {
		return fmt.Errorf("negotiation.audio_output: %w", err)
	}
	if _, err := capability.ParseOutputType(c.Negotiation.VideoOutput); err != nil {
		return fmt.Errorf("negotiation.video_output: %w", err)
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.PollIntervalMillis < 0 {
		return errors.New("session.poll_interval_ms must be positive")
	}
	if c.Session.WatchdogSeconds < 0 {
		return errors.New("session.watchdog_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
