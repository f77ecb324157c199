package config

const (
	defaultConfigPath         = "~/.config/ingest/config.toml"
	defaultStateDir           = "~/.local/share/ingest"
	defaultLogDir             = "~/.local/share/ingest/logs"
	defaultFFProbeBinary      = "ffprobe"
	defaultReorderWindow      = 16
	defaultPollIntervalMillis = 500
	defaultWatchdogSeconds    = 0
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Probe: Probe{
			FFProbeBinary: defaultFFProbeBinary,
			ReorderWindow: defaultReorderWindow,
		},
		Session: Session{
			PollIntervalMillis: defaultPollIntervalMillis,
			WatchdogSeconds:    defaultWatchdogSeconds,
			JournalEnabled:     true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
