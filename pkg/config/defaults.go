package config

import (
	"path/filepath"
	"time"
)

// Default values for configuration fields.
const (
	// Listener defaults
	DefaultAddr = "0.0.0.0"
	DefaultPort = 80

	// Proxy defaults
	DefaultConnectTimeout    = 10 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second

	// Reload defaults
	DefaultReloadDebounce = 100 * time.Millisecond

	// History defaults
	DefaultHistoryDriver        = "sqlite"
	DefaultHistoryBufferSize    = 1024
	DefaultHistoryRetentionDays = 7

	// KeepHistoryForever disables age-based pruning when set as
	// history.retention_days.
	KeepHistoryForever = -1
	DefaultHistoryPruneSchedule = "0 3 * * *"
	DefaultDBFile               = "incipit.db"

	// Repo defaults
	DefaultRepoBranch = "main"

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "incipit"
)

// ApplyDefaults applies default values to any unset configuration fields.
// Host derivation happens here too: a service without a host gets
// <name>.<domain>.
//
// configDir is the directory of the file the configuration was read from. It
// is the fallback for root_directory; pass "" when there is no file.
//
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config, configDir string) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	if cfg.RootDirectory == "" {
		cfg.RootDirectory = configDir
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.RootDirectory, DefaultDBFile)
	} else if !filepath.IsAbs(cfg.DBPath) && cfg.RootDirectory != "" {
		cfg.DBPath = filepath.Join(cfg.RootDirectory, cfg.DBPath)
	}

	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if svc.Host == "" && svc.Name != "" && cfg.Domain != "" {
			svc.Host = svc.Name + "." + cfg.Domain
		}
		if svc.Repo != nil && svc.Repo.Branch == "" {
			svc.Repo.Branch = DefaultRepoBranch
		}
	}

	// Proxy defaults
	if cfg.Proxy.ConnectTimeout == 0 {
		cfg.Proxy.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Proxy.HandshakeTimeout == 0 {
		cfg.Proxy.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Proxy.ReadHeaderTimeout == 0 {
		cfg.Proxy.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Reload defaults
	if cfg.Reload.Debounce == 0 {
		cfg.Reload.Debounce = DefaultReloadDebounce
	}

	// History defaults
	if cfg.History.Driver == "" {
		cfg.History.Driver = DefaultHistoryDriver
	}
	if cfg.History.BufferSize == 0 {
		cfg.History.BufferSize = DefaultHistoryBufferSize
	}
	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = DefaultHistoryRetentionDays
	}
	if cfg.History.PruneSchedule == "" {
		cfg.History.PruneSchedule = DefaultHistoryPruneSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// NewDefaultConfig returns a configuration with all default values applied
// and no services.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg, "")
	return cfg
}
