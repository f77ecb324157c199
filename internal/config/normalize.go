package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProbe()
	c.normalizeNegotiation()
	c.normalizeSession()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeProbe() {
	c.Probe.FFProbeBinary = strings.TrimSpace(c.Probe.FFProbeBinary)
	if c.Probe.FFProbeBinary == "" {
		if value, ok := os.LookupEnv("INGEST_FFPROBE"); ok && strings.TrimSpace(value) != "" {
			c.Probe.FFProbeBinary = strings.TrimSpace(value)
		} else {
			c.Probe.FFProbeBinary = defaultFFProbeBinary
		}
	}
	if c.Probe.ReorderWindow == 0 {
		c.Probe.ReorderWindow = defaultReorderWindow
	}
}

func (c *Config) normalizeNegotiation() {
	c.Negotiation.AudioOutput = strings.ToLower(strings.TrimSpace(c.Negotiation.AudioOutput))
	c.Negotiation.VideoOutput = strings.ToLower(strings.TrimSpace(c.Negotiation.VideoOutput))
}

func (c *Config) normalizeSession() {
	if c.Session.PollIntervalMillis == 0 {
		c.Session.PollIntervalMillis = defaultPollIntervalMillis
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
